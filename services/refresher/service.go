// Package refresher drives the periodic refresh cycle: fetch every
// configured source, normalize and merge the survivors, and publish the
// result as a new snapshot. One cycle runs at a time.
package refresher

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"epgcacher/config"
	"epgcacher/models"
	"epgcacher/services/cache"
	"epgcacher/services/normalize"
	"epgcacher/services/source"
)

// MappingProvider supplies the guide-to-icon channel mapping for artwork
// enrichment.
type MappingProvider interface {
	Map() map[string]string
}

// HistoryRecorder persists per-cycle outcomes and trims old ones.
type HistoryRecorder interface {
	Record(result models.RefreshResult) error
	Prune(olderThan time.Time) (int64, error)
}

// historyRetention bounds the refresh_history table; rows older than this
// are pruned after each cycle.
const historyRetention = 30 * 24 * time.Hour

// Service owns the refresh loop. It is the only writer of the cache store.
type Service struct {
	settings *config.Settings
	store    *cache.Store
	guides   []source.Adapter // configured order; later sources win ties
	icons    []source.Adapter
	mappings MappingProvider
	history  HistoryRecorder

	// lastGood keeps each source's most recent normalized result so a
	// conditional fetch that reports no change can reuse it.
	mu       sync.Mutex
	lastGood map[string]*normalize.Result

	stopCh     chan struct{}
	refreshNow chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	statusMu         sync.RWMutex
	state            string
	lastSuccess      time.Time
	lastFailure      string
	lastCycleID      string
	nextRefreshAt    time.Time
	consecutiveFails int

	now func() time.Time
}

// New creates the refresher. guides and icons must be in configured order.
func New(settings *config.Settings, store *cache.Store, guides, icons []source.Adapter, mappings MappingProvider, history HistoryRecorder) *Service {
	return &Service{
		settings: settings,
		store:    store,
		guides:   guides,
		icons:    icons,
		mappings: mappings,
		history:  history,
		lastGood: make(map[string]*normalize.Result),
		state:    models.StateIdle,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock for tests.
func (s *Service) SetNowFunc(now func() time.Time) { s.now = now }

// Start launches the background refresh loop. The first cycle runs
// immediately so the cache warms up without waiting a full interval.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.refreshNow = make(chan struct{}, 1)

	s.wg.Add(1)
	go s.run(ctx)
	log.Printf("[refresher] started, interval %s", s.settings.Interval())
}

// Stop cancels any in-flight cycle and waits for the loop to exit.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	s.cancel()
	close(s.stopCh)
	s.wg.Wait()

	s.statusMu.Lock()
	s.state = models.StateStopped
	s.statusMu.Unlock()
	log.Println("[refresher] stopped")
}

// SeedLastSuccess primes the reported last-success time from a previous
// run's history, so the status surface is meaningful before the first cycle
// of this process completes. Call before Start.
func (s *Service) SeedLastSuccess(t time.Time) {
	s.statusMu.Lock()
	if s.lastSuccess.IsZero() {
		s.lastSuccess = t
	}
	s.statusMu.Unlock()
}

// RefreshNow requests an immediate cycle. Returns false when a request is
// already pending.
func (s *Service) RefreshNow() bool {
	select {
	case s.refreshNow <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status reports the loop's observable state. Freshness and age are filled
// in by the query layer, which owns the staleness policy.
func (s *Service) Status() models.RefreshStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return models.RefreshStatus{
		State:             s.state,
		GenerationID:      s.store.Generation(),
		LastSuccess:       s.lastSuccess,
		LastFailureReason: s.lastFailure,
		LastCycleID:       s.lastCycleID,
		NextRefreshAt:     s.nextRefreshAt,
		ConsecutiveFails:  s.consecutiveFails,
	}
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	s.runCycle(ctx)

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runCycle(ctx)
		case <-s.refreshNow:
			log.Println("[refresher] manual refresh triggered")
			s.runCycle(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
		timer.Reset(s.nextDelay())
	}
}

// nextDelay returns the wait before the next cycle: the configured interval
// after a clean cycle, exponential backoff capped at the ceiling while any
// source keeps failing.
func (s *Service) nextDelay() time.Duration {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	delay := s.settings.Interval()
	if s.consecutiveFails > 0 {
		ceiling := s.settings.BackoffCeiling()
		delay = s.settings.BackoffBase()
		for i := 1; i < s.consecutiveFails && delay < ceiling; i++ {
			delay *= 2
		}
		if delay > ceiling {
			delay = ceiling
		}
	}
	s.nextRefreshAt = s.now().Add(delay)
	return delay
}

type fetchOutcome struct {
	name    string
	payload *source.RawPayload
	err     error
}

// runCycle executes one full refresh: fetch, normalize, merge, publish.
func (s *Service) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	startedAt := s.now()
	result := models.RefreshResult{
		CycleID:      cycleID,
		StartedAt:    startedAt,
		SourceErrors: make(map[string]string),
	}

	log.Printf("[refresher] cycle %s starting (%d guide, %d icon sources)", cycleID, len(s.guides), len(s.icons))

	s.setState(models.StateFetching)
	outcomes := s.fetchAll(ctx, append(append([]source.Adapter{}, s.guides...), s.icons...))

	guideResults := s.collectResults(s.guides, outcomes, result.SourceErrors)
	iconResults := s.collectResults(s.icons, outcomes, result.SourceErrors)

	if ctx.Err() != nil {
		s.finishCycle(&result, false, "refresh aborted: "+ctx.Err().Error())
		return
	}

	if len(guideResults) == 0 {
		refreshErr := &models.RefreshError{SourceErrors: make(map[string]error, len(result.SourceErrors))}
		for name, msg := range result.SourceErrors {
			refreshErr.SourceErrors[name] = errors.New(msg)
		}
		log.Printf("[refresher] cycle %s: every guide source failed, keeping current snapshot", cycleID)
		s.finishCycle(&result, false, refreshErr.Error())
		return
	}

	s.setState(models.StateNormalizing)
	channels, programmes := normalize.MergeSources(guideResults)

	prev, _ := s.store.Current()
	channels, carried := normalize.CarryForward(
		prev, channels, programmes,
		s.settings.TimeTolerance(), s.settings.CarryForwardMaxAge(), s.now(),
	)

	if s.mappings != nil {
		normalize.EnrichIcons(programmes, iconResults, s.mappings.Map(), s.settings.TimeTolerance())
	}

	skipped := 0
	versions := make(map[string]models.SourceVersion, len(guideResults)+len(iconResults))
	for _, res := range guideResults {
		skipped += res.Skipped
		versions[res.Source] = res.Version
	}
	for _, res := range iconResults {
		skipped += res.Skipped
		versions[res.Source] = res.Version
	}

	s.setState(models.StatePublishing)
	snapshot, err := s.store.Publish(channels, programmes, versions, skipped, carried)
	if err != nil {
		// The in-memory snapshot is live; only the on-disk copy failed.
		log.Printf("[refresher] cycle %s: persist failed: %v", cycleID, err)
	}

	result.GenerationID = snapshot.GenerationID
	result.ChannelCount = len(snapshot.Channels)
	result.ProgrammeCount = snapshot.ProgrammeCount()
	result.SkippedEntries = skipped
	result.CarriedForward = carried

	log.Printf("[refresher] cycle %s published generation %d: %d channels, %d programmes, %d carried forward",
		cycleID, snapshot.GenerationID, result.ChannelCount, result.ProgrammeCount, carried)

	s.finishCycle(&result, true, "")
}

// fetchAll runs every adapter concurrently and returns outcomes keyed by
// source name.
func (s *Service) fetchAll(ctx context.Context, adapters []source.Adapter) map[string]fetchOutcome {
	versions := s.knownVersions()

	p := pool.NewWithResults[fetchOutcome]().WithMaxGoroutines(4)
	for _, adapter := range adapters {
		p.Go(func() fetchOutcome {
			payload, err := adapter.Fetch(ctx, versions[adapter.Name()])
			return fetchOutcome{name: adapter.Name(), payload: payload, err: err}
		})
	}

	outcomes := make(map[string]fetchOutcome, len(adapters))
	for _, out := range p.Wait() {
		outcomes[out.name] = out
	}
	return outcomes
}

// collectResults turns fetch outcomes into normalized results for the given
// adapters, preserving adapter order. Failed sources land in sourceErrors;
// unchanged sources reuse the previous cycle's normalized result.
func (s *Service) collectResults(adapters []source.Adapter, outcomes map[string]fetchOutcome, sourceErrors map[string]string) []*normalize.Result {
	var results []*normalize.Result
	for _, adapter := range adapters {
		name := adapter.Name()
		out := outcomes[name]

		if out.err != nil {
			log.Printf("[refresher] source %s: fetch failed: %v", name, out.err)
			sourceErrors[name] = out.err.Error()
			continue
		}

		if out.payload.NotModified {
			s.mu.Lock()
			cached := s.lastGood[name]
			s.mu.Unlock()
			if cached == nil {
				sourceErrors[name] = "source reported no change but no cached copy exists"
				continue
			}
			log.Printf("[refresher] source %s: unchanged, reusing %d programmes", name, len(cached.Programmes))
			results = append(results, cached)
			continue
		}

		res, err := normalize.Normalize(out.payload.Body, name)
		if err != nil {
			log.Printf("[refresher] source %s: %v", name, err)
			sourceErrors[name] = err.Error()
			continue
		}
		res.Version = out.payload.Version

		s.mu.Lock()
		s.lastGood[name] = res
		s.mu.Unlock()
		results = append(results, res)
	}
	return results
}

// finishCycle records the outcome and updates status and the failure
// counter. A cycle with any failed source backs off even when it published,
// so a struggling upstream is retried promptly.
func (s *Service) finishCycle(result *models.RefreshResult, published bool, failureReason string) {
	result.FinishedAt = s.now()
	result.Success = published
	result.FailureReason = failureReason
	if len(result.SourceErrors) == 0 {
		result.SourceErrors = nil
	}

	s.statusMu.Lock()
	s.state = models.StateIdle
	s.lastCycleID = result.CycleID
	if published {
		s.lastSuccess = result.FinishedAt
		// A published cycle can still have failed sources; the status
		// surface must name them, not just the history row.
		s.lastFailure = sourceErrorSummary(result.SourceErrors)
	} else {
		s.lastFailure = failureReason
	}
	if published && len(result.SourceErrors) == 0 {
		s.consecutiveFails = 0
	} else {
		s.consecutiveFails++
	}
	fails := s.consecutiveFails
	s.statusMu.Unlock()

	if fails > 0 {
		log.Printf("[refresher] cycle %s finished with failures (%d consecutive)", result.CycleID, fails)
	}

	if s.history != nil {
		if err := s.history.Record(*result); err != nil {
			log.Printf("[refresher] recording cycle %s failed: %v", result.CycleID, err)
		}
		if pruned, err := s.history.Prune(s.now().Add(-historyRetention)); err != nil {
			log.Printf("[refresher] pruning refresh history failed: %v", err)
		} else if pruned > 0 {
			log.Printf("[refresher] pruned %d old refresh history rows", pruned)
		}
	}
}

// sourceErrorSummary flattens per-source errors into one deterministic line.
// Returns "" when every source succeeded.
func sourceErrorSummary(errs map[string]string) string {
	if len(errs) == 0 {
		return ""
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+errs[name])
	}
	return strings.Join(parts, "; ")
}

func (s *Service) setState(state string) {
	s.statusMu.Lock()
	s.state = state
	s.statusMu.Unlock()
}

// IconChannels returns the channels last seen from the artwork-only
// sources, for mapping suggestions.
func (s *Service) IconChannels() []models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Channel
	for _, adapter := range s.icons {
		if res := s.lastGood[adapter.Name()]; res != nil {
			out = append(out, res.Channels...)
		}
	}
	return out
}

func (s *Service) knownVersions() map[string]models.SourceVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make(map[string]models.SourceVersion, len(s.lastGood))
	for name, res := range s.lastGood {
		versions[name] = res.Version
	}
	return versions
}
