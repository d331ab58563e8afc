// Package cache holds the published guide snapshot. Readers get the
// current snapshot through one atomic pointer load; the only writer is the
// refresh cycle's publish step.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"epgcacher/models"
)

// Store is the single access point for the current snapshot. Publish swaps
// the whole snapshot in one step, so a reader either sees the previous
// complete snapshot or the new complete one, never a mix.
type Store struct {
	current  atomic.Pointer[models.Snapshot]
	previous atomic.Pointer[models.Snapshot]

	mu         sync.Mutex // serializes publishers and the generation counter
	generation uint64
	now        func() time.Time

	persister *Persister
}

// NewStore creates an empty, not-yet-warmed-up store.
func NewStore() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock. Snapshot content becomes reproducible
// in tests when the clock is fixed.
func (s *Store) SetNowFunc(now func() time.Time) { s.now = now }

// SetPersister attaches on-disk persistence. Persistence failures are
// reported by Publish but never roll back the in-memory swap.
func (s *Store) SetPersister(p *Persister) { s.persister = p }

// Publish constructs a snapshot from fully normalized data and makes it
// current. The returned error, if any, is a *models.PublishError from the
// persistence layer; the snapshot is visible to readers regardless.
func (s *Store) Publish(channels []models.Channel, programmes map[string][]models.Programme, versions map[string]models.SourceVersion, skipped, carried int) (*models.Snapshot, error) {
	s.mu.Lock()
	s.generation++
	snapshot := &models.Snapshot{
		GenerationID:   s.generation,
		GeneratedAt:    s.now(),
		Channels:       channels,
		Programmes:     programmes,
		SourceVersions: versions,
		SkippedEntries: skipped,
		CarriedForward: carried,
	}
	s.previous.Store(s.current.Load())
	s.current.Store(snapshot)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Write(snapshot); err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

// Current returns the latest published snapshot. Before the first publish
// it returns models.ErrNotWarmedUp instead of blocking.
func (s *Store) Current() (*models.Snapshot, error) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil, models.ErrNotWarmedUp
	}
	return snapshot, nil
}

// Previous returns the snapshot published before the current one, or nil.
// The refresher uses it for carry-forward merging.
func (s *Store) Previous() *models.Snapshot {
	return s.previous.Load()
}

// Generation returns the id of the latest published snapshot, 0 before the
// first publish.
func (s *Store) Generation() uint64 {
	if snapshot := s.current.Load(); snapshot != nil {
		return snapshot.GenerationID
	}
	return 0
}
