package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotWarmedUp is returned by the cache store before the first successful
// publish. Callers should surface it as an explicit state, not retry-loop on it.
var ErrNotWarmedUp = errors.New("epg cache not warmed up yet")

// FetchErrorKind classifies upstream fetch failures.
type FetchErrorKind int

const (
	// FetchTransient covers timeouts, connection resets and 5xx responses.
	FetchTransient FetchErrorKind = iota
	// FetchPermanent covers 4xx responses and malformed source configuration.
	FetchPermanent
)

func (k FetchErrorKind) String() string {
	if k == FetchPermanent {
		return "permanent"
	}
	return "transient"
}

// FetchError is a failure at the byte-transport boundary of one source.
type FetchError struct {
	Source string
	Kind   FetchErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseErrorKind classifies normalizer failures.
type ParseErrorKind int

const (
	// SchemaInvalid means the payload is not a guide document at the top
	// level. Fails the whole source for this cycle.
	SchemaInvalid ParseErrorKind = iota
	// EntryInvalid means a single entry was malformed. Recovered locally:
	// the entry is dropped and counted.
	EntryInvalid
)

func (k ParseErrorKind) String() string {
	if k == EntryInvalid {
		return "entry_invalid"
	}
	return "schema_invalid"
}

// ParseError is a normalizer failure for one source's payload.
type ParseError struct {
	Source string
	Kind   ParseErrorKind
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PublishError is a storage-layer failure while persisting a published
// snapshot. The in-memory publish has already succeeded when this occurs.
type PublishError struct {
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("persist snapshot to %s: %v", e.Path, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// RefreshError aggregates a cycle in which no source contributed usable
// data. It is surfaced via status, never fatal to the process.
type RefreshError struct {
	SourceErrors map[string]error
}

func (e *RefreshError) Error() string {
	if len(e.SourceErrors) == 0 {
		return "refresh failed: no sources configured"
	}
	parts := make([]string, 0, len(e.SourceErrors))
	for name, err := range e.SourceErrors {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	sort.Strings(parts)
	return "refresh failed, no source contributed: " + strings.Join(parts, "; ")
}

// IsTransientFetch reports whether err is a fetch error of transient kind.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransient
}
