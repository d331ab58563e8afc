// Package query is the read-only surface over the cache. It never blocks
// on a refresh: callers get the current snapshot or a not-warmed-up error.
package query

import (
	"time"

	"epgcacher/config"
	"epgcacher/models"
	"epgcacher/services/cache"
)

// StatusProvider exposes the refresh loop's observable state.
type StatusProvider interface {
	Status() models.RefreshStatus
}

// Service answers snapshot, channel and status queries.
type Service struct {
	settings  *config.Settings
	store     *cache.Store
	refresher StatusProvider
	now       func() time.Time
}

// NewService creates the query service.
func NewService(settings *config.Settings, store *cache.Store, refresher StatusProvider) *Service {
	return &Service{
		settings:  settings,
		store:     store,
		refresher: refresher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock for tests.
func (s *Service) SetNowFunc(now func() time.Time) { s.now = now }

// Snapshot returns the current snapshot, or models.ErrNotWarmedUp before
// the first successful publish.
func (s *Service) Snapshot() (*models.Snapshot, error) {
	return s.store.Current()
}

// Channels returns the current snapshot's channels.
func (s *Service) Channels() ([]models.Channel, error) {
	snapshot, err := s.store.Current()
	if err != nil {
		return nil, err
	}
	return snapshot.Channels, nil
}

// Programmes returns the current programmes for one channel. A warmed-up
// cache with an unknown channel id yields an empty slice, not an error.
func (s *Service) Programmes(channelID string) ([]models.Programme, error) {
	snapshot, err := s.store.Current()
	if err != nil {
		return nil, err
	}
	return snapshot.Programmes[channelID], nil
}

// Age returns how long ago the current snapshot was generated.
func (s *Service) Age() (time.Duration, error) {
	snapshot, err := s.store.Current()
	if err != nil {
		return 0, err
	}
	return s.now().Sub(snapshot.GeneratedAt), nil
}

// Status combines the refresh loop state with the cache's freshness. A
// snapshot is fresh while its age is under two refresh intervals, stale
// after that, and not warmed up before the first publish.
func (s *Service) Status() models.RefreshStatus {
	status := s.refresher.Status()

	snapshot, err := s.store.Current()
	if err != nil {
		status.Freshness = models.FreshnessNotWarmedUp
		return status
	}

	age := s.now().Sub(snapshot.GeneratedAt)
	status.AgeSeconds = int64(age.Seconds())
	status.ChannelCount = len(snapshot.Channels)
	status.ProgrammeCount = snapshot.ProgrammeCount()
	if age < 2*s.settings.Interval() {
		status.Freshness = models.FreshnessFresh
	} else {
		status.Freshness = models.FreshnessStale
	}
	return status
}
