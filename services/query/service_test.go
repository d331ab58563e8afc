package query

import (
	"errors"
	"testing"
	"time"

	"epgcacher/config"
	"epgcacher/models"
	"epgcacher/services/cache"
)

type staticStatus models.RefreshStatus

func (s staticStatus) Status() models.RefreshStatus { return models.RefreshStatus(s) }

func setupQuery(t *testing.T) (*Service, *cache.Store, *time.Time) {
	t.Helper()
	settings := config.DefaultSettings() // one hour interval
	store := cache.NewStore()

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := &now
	store.SetNowFunc(func() time.Time { return *clock })

	svc := NewService(settings, store, staticStatus{State: models.StateIdle})
	svc.SetNowFunc(func() time.Time { return *clock })
	return svc, store, clock
}

func publishSample(t *testing.T, store *cache.Store) *models.Snapshot {
	t.Helper()
	start := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	snapshot, err := store.Publish(
		[]models.Channel{{ID: "newsone", DisplayName: "News One"}},
		map[string][]models.Programme{
			"newsone": {{ChannelID: "newsone", Start: start, Stop: start.Add(time.Hour), Title: "Show"}},
		},
		nil, 0, 0,
	)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	return snapshot
}

func TestService_NotWarmedUp(t *testing.T) {
	svc, _, _ := setupQuery(t)

	if _, err := svc.Snapshot(); !errors.Is(err, models.ErrNotWarmedUp) {
		t.Fatalf("expected ErrNotWarmedUp, got %v", err)
	}
	if _, err := svc.Channels(); !errors.Is(err, models.ErrNotWarmedUp) {
		t.Fatalf("expected ErrNotWarmedUp from Channels, got %v", err)
	}
	if _, err := svc.Age(); !errors.Is(err, models.ErrNotWarmedUp) {
		t.Fatalf("expected ErrNotWarmedUp from Age, got %v", err)
	}

	status := svc.Status()
	if status.Freshness != models.FreshnessNotWarmedUp {
		t.Errorf("expected not_warmed_up freshness, got %q", status.Freshness)
	}
}

func TestService_SnapshotQueries(t *testing.T) {
	svc, store, _ := setupQuery(t)
	published := publishSample(t, store)

	snapshot, err := svc.Snapshot()
	if err != nil || snapshot != published {
		t.Fatalf("Snapshot returned %v, %v", snapshot, err)
	}

	channels, err := svc.Channels()
	if err != nil || len(channels) != 1 {
		t.Fatalf("Channels returned %v, %v", channels, err)
	}

	progs, err := svc.Programmes("newsone")
	if err != nil || len(progs) != 1 {
		t.Fatalf("Programmes returned %v, %v", progs, err)
	}

	// Unknown channel in a warmed-up cache is empty, not an error.
	progs, err = svc.Programmes("unknown")
	if err != nil || len(progs) != 0 {
		t.Fatalf("unknown channel returned %v, %v", progs, err)
	}
}

func TestService_FreshnessTransitions(t *testing.T) {
	svc, store, clock := setupQuery(t)
	publishSample(t, store)

	status := svc.Status()
	if status.Freshness != models.FreshnessFresh {
		t.Fatalf("expected fresh right after publish, got %q", status.Freshness)
	}
	if status.ChannelCount != 1 || status.ProgrammeCount != 1 {
		t.Errorf("counts not filled: %+v", status)
	}

	// Under two intervals old: still fresh.
	*clock = clock.Add(90 * time.Minute)
	if got := svc.Status().Freshness; got != models.FreshnessFresh {
		t.Errorf("expected fresh at 90 minutes, got %q", got)
	}

	// Past two intervals: stale.
	*clock = clock.Add(60 * time.Minute)
	status = svc.Status()
	if status.Freshness != models.FreshnessStale {
		t.Errorf("expected stale at 150 minutes, got %q", status.Freshness)
	}
	if status.AgeSeconds != int64((150 * time.Minute).Seconds()) {
		t.Errorf("unexpected age: %d", status.AgeSeconds)
	}
}

func TestService_Age(t *testing.T) {
	svc, store, clock := setupQuery(t)
	publishSample(t, store)

	*clock = clock.Add(42 * time.Minute)
	age, err := svc.Age()
	if err != nil {
		t.Fatalf("Age failed: %v", err)
	}
	if age != 42*time.Minute {
		t.Errorf("expected 42m age, got %s", age)
	}
}
