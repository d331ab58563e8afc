package models

import (
	"sort"
	"time"
)

// Channel is one guide channel inside a snapshot. Immutable once published.
// ID is the canonical DVR-safe form; RawID preserves the id as the upstream
// listed it, for the unescaped guide rendering.
type Channel struct {
	ID          string `json:"id"`
	RawID       string `json:"-"`
	DisplayName string `json:"displayName"`
	IconURL     string `json:"iconUrl,omitempty"`
	Source      string `json:"source"`
}

// Programme is a single scheduled entry for a channel. Times are UTC.
// Immutable once published.
type Programme struct {
	ChannelID   string    `json:"channelId"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Icons       []string  `json:"icons,omitempty"`

	// Source names the adapter that contributed this entry. Used by the
	// normalizer's overlap resolution, not part of the published payload.
	Source string `json:"-"`
}

// Duration returns the programme's scheduled length.
func (p Programme) Duration() time.Duration {
	return p.Stop.Sub(p.Start)
}

// SourceVersion carries conditional-fetch state for one upstream source.
type SourceVersion struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"lastModified,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// Snapshot is one complete, internally consistent version of the guide
// cache. It is the unit of atomicity: fully constructed before publish,
// never patched in place afterwards.
type Snapshot struct {
	GenerationID   uint64                   `json:"generationId"`
	GeneratedAt    time.Time                `json:"generatedAt"`
	Channels       []Channel                `json:"channels"`
	Programmes     map[string][]Programme   `json:"programmes"`
	SourceVersions map[string]SourceVersion `json:"sourceVersions,omitempty"`
	SkippedEntries int                      `json:"skippedEntries"`
	CarriedForward int                      `json:"carriedForward"`
}

// ProgrammeCount returns the total number of programmes across all channels.
func (s *Snapshot) ProgrammeCount() int {
	n := 0
	for _, progs := range s.Programmes {
		n += len(progs)
	}
	return n
}

// ChannelIDs returns the snapshot's channel ids in ascending order.
func (s *Snapshot) ChannelIDs() []string {
	ids := make([]string, 0, len(s.Channels))
	for _, ch := range s.Channels {
		ids = append(ids, ch.ID)
	}
	sort.Strings(ids)
	return ids
}

// RefreshResult is the outcome of one scheduler-driven refresh cycle.
type RefreshResult struct {
	CycleID        string            `json:"cycleId"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     time.Time         `json:"finishedAt"`
	Success        bool              `json:"success"`
	GenerationID   uint64            `json:"generationId,omitempty"`
	FailureReason  string            `json:"failureReason,omitempty"`
	SourceErrors   map[string]string `json:"sourceErrors,omitempty"`
	ChannelCount   int               `json:"channelCount"`
	ProgrammeCount int               `json:"programmeCount"`
	SkippedEntries int               `json:"skippedEntries"`
	CarriedForward int               `json:"carriedForward"`
}

// Refresh cycle states, in the order a cycle moves through them.
const (
	StateIdle        = "idle"
	StateFetching    = "fetching"
	StateNormalizing = "normalizing"
	StatePublishing  = "publishing"
	StateStopped     = "stopped"
)

// Freshness labels for the query surface.
const (
	FreshnessFresh       = "fresh"
	FreshnessStale       = "stale"
	FreshnessNotWarmedUp = "not_warmed_up"
)

// RefreshStatus is the observable state of the refresh engine, served
// read-only to the web tier.
type RefreshStatus struct {
	State             string    `json:"state"`
	Freshness         string    `json:"freshness"`
	GenerationID      uint64    `json:"generationId"`
	LastSuccess       time.Time `json:"lastSuccess,omitzero"`
	LastFailureReason string    `json:"lastFailureReason,omitempty"`
	LastCycleID       string    `json:"lastCycleId,omitempty"`
	NextRefreshAt     time.Time `json:"nextRefreshAt,omitzero"`
	ConsecutiveFails  int       `json:"consecutiveFailures"`
	ChannelCount      int       `json:"channelCount"`
	ProgrammeCount    int       `json:"programmeCount"`
	AgeSeconds        int64     `json:"ageSeconds"`
}
