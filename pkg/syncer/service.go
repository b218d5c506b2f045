package syncer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/magangradar/platform/pkg/common/config"
	"github.com/magangradar/platform/pkg/common/logger"
	"github.com/magangradar/platform/pkg/vacancy"
)

const (
	// A candidate that upstream merely dropped from a page is protected
	// from deactivation until it has gone unseen this long.
	staleAfter = 30 * 24 * time.Hour

	statusSuccess = "success"
	statusFailed  = "failed"
)

// ErrSyncAlreadyRunning is returned when a run of the same kind is still in
// flight; no run record is created in that case.
var ErrSyncAlreadyRunning = errors.New("a sync run of this kind is already in progress")

// Store is the persistence surface the orchestrators drive. Implemented by
// vacancy.Repository.
type Store interface {
	Save(ctx context.Context, v *vacancy.Vacancy) (string, error)
	GetWatermark(ctx context.Context) (*time.Time, error)
	SetWatermark(ctx context.Context, value time.Time) error
	LatestSourceUpdatedAt(ctx context.Context) (*time.Time, error)
	StartRun(ctx context.Context, kind string) (*vacancy.SyncRun, error)
	FinishRun(ctx context.Context, run *vacancy.SyncRun) error
	RecentRuns(ctx context.Context, limit int) ([]vacancy.SyncRun, error)
	GetRun(ctx context.Context, id string) (*vacancy.SyncRun, error)
	CountActive(ctx context.Context) (int64, error)
	DeactivationCandidates(ctx context.Context, before time.Time, processedIDs []string) ([]vacancy.Vacancy, error)
	Deactivate(ctx context.Context, ids []string, now time.Time) (int64, error)
	UpsertProvince(ctx context.Context, p *vacancy.Province) error
}

// Fetcher is the upstream page source. Implemented by Client.
type Fetcher interface {
	FetchVacancies(ctx context.Context, page, limit int) (*Page, error)
	FetchProvinces(ctx context.Context) (*Page, error)
}

// EventPublisher receives best-effort notifications about newly seen
// vacancies. Implemented by kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// NewIDCache is the hot recent-ids cache. Implemented by vacancy.Cache.
type NewIDCache interface {
	RecordNew(ctx context.Context, id string, seenAt time.Time) error
}

// FullSyncStatus is the observable snapshot of an in-flight full run.
type FullSyncStatus struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"run_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Service runs the two reconciliation strategies against the upstream
// vacancy listing.
type Service struct {
	fetcher    Fetcher
	store      Store
	normalizer *Normalizer
	cfg        config.EtlConfig
	publisher  EventPublisher // optional
	cache      NewIDCache     // optional

	// Single-run-at-a-time guard per kind; incremental and full may
	// still overlap, as before.
	incrementalMu sync.Mutex
	fullMu        sync.Mutex

	statusMu   sync.Mutex
	activeFull *FullSyncStatus
}

func NewService(fetcher Fetcher, store Store, normalizer *Normalizer, cfg config.EtlConfig) *Service {
	if cfg.BatchSaveConcurrency <= 0 {
		cfg.BatchSaveConcurrency = 10
	}
	return &Service{
		fetcher:    fetcher,
		store:      store,
		normalizer: normalizer,
		cfg:        cfg,
	}
}

// WithPublisher attaches a best-effort event publisher for vacancy.new
// notifications.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// WithNewIDCache attaches the recent-new id cache.
func (s *Service) WithNewIDCache(c NewIDCache) *Service {
	s.cache = c
	return s
}

// RunIncremental walks pages newest-first and stops early once enough
// consecutive already-seen items indicate the rest of the feed is stale.
// Run failures are reported through the returned metrics, not the error;
// the error is only non-nil when no run record could be created at all.
func (s *Service) RunIncremental(ctx context.Context) (*vacancy.SyncRun, error) {
	if !s.incrementalMu.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer s.incrementalMu.Unlock()

	run, err := s.store.StartRun(ctx, "incremental")
	if err != nil {
		return nil, err
	}

	runErr := s.incrementalPass(ctx, run)
	s.finishRun(ctx, run, runErr)

	logger.WithFields(map[string]interface{}{
		"run_id":   run.ID,
		"status":   run.Status,
		"inserted": run.ItemsInserted,
		"updated":  run.ItemsUpdated,
	}).Info("Incremental sync completed")

	return run, nil
}

func (s *Service) incrementalPass(ctx context.Context, run *vacancy.SyncRun) error {
	watermark, err := s.store.GetWatermark(ctx)
	if err != nil {
		return err
	}

	maxSeen := copyTime(watermark)
	alreadySeen := 0
	earlyStop := false

pages:
	for page := 1; page <= s.cfg.MaxPages; page++ {
		result, err := s.fetcher.FetchVacancies(ctx, page, s.cfg.PageLimit)
		if err != nil {
			return err
		}
		if len(result.Items) == 0 {
			break
		}
		run.PagesFetched++

		for _, item := range result.Items {
			normalized := s.normalizer.Normalize(item)
			if normalized == nil {
				continue
			}

			src := normalized.SourceTimestamp()
			if watermark != nil && src != nil && !src.After(*watermark) {
				alreadySeen++
				if alreadySeen >= s.cfg.StopThreshold {
					earlyStop = true
					break pages
				}
				continue
			}
			alreadySeen = 0

			action, err := s.saveVacancy(ctx, normalized)
			if err != nil {
				return err
			}
			if action == vacancy.ActionInserted {
				run.ItemsInserted++
			} else {
				run.ItemsUpdated++
			}

			if src != nil && (maxSeen == nil || src.After(*maxSeen)) {
				maxSeen = copyTime(src)
			}
		}

		s.delay(ctx)
	}

	if earlyStop {
		logger.WithField("run_id", run.ID).Info("Incremental sync early stopped by watermark threshold")
	}

	if maxSeen != nil && (watermark == nil || maxSeen.After(*watermark)) {
		if err := s.store.SetWatermark(ctx, *maxSeen); err != nil {
			return err
		}
	}
	return nil
}

// RunFull walks every upstream page, reconciles local state against the
// full set of observed ids and deactivates rows missing from upstream,
// bounded by the safety guard.
func (s *Service) RunFull(ctx context.Context) (*vacancy.SyncRun, error) {
	if !s.fullMu.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer s.fullMu.Unlock()
	return s.runFullLocked(ctx)
}

// StartFullAsync reserves the full-run slot and runs in the background.
// Progress is observable via FullStatus and the run records.
func (s *Service) StartFullAsync() error {
	if !s.fullMu.TryLock() {
		return ErrSyncAlreadyRunning
	}
	go func() {
		defer s.fullMu.Unlock()
		if _, err := s.runFullLocked(context.Background()); err != nil {
			logger.Log.WithError(err).Error("Async full sync could not start")
		}
	}()
	return nil
}

// FullStatus reports whether a full run is in flight.
func (s *Service) FullStatus() FullSyncStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.activeFull == nil {
		return FullSyncStatus{Running: false}
	}
	return *s.activeFull
}

func (s *Service) runFullLocked(ctx context.Context) (*vacancy.SyncRun, error) {
	run, err := s.store.StartRun(ctx, "full")
	if err != nil {
		return nil, err
	}

	s.statusMu.Lock()
	started := run.StartedAt
	s.activeFull = &FullSyncStatus{Running: true, RunID: run.ID, StartedAt: &started}
	s.statusMu.Unlock()
	defer func() {
		s.statusMu.Lock()
		s.activeFull = nil
		s.statusMu.Unlock()
	}()

	runErr := s.fullPass(ctx, run)
	s.finishRun(ctx, run, runErr)

	logger.WithFields(map[string]interface{}{
		"run_id":      run.ID,
		"status":      run.Status,
		"inserted":    run.ItemsInserted,
		"updated":     run.ItemsUpdated,
		"deactivated": run.ItemsDeactivated,
	}).Info("Full sync completed")

	return run, nil
}

func (s *Service) fullPass(ctx context.Context, run *vacancy.SyncRun) error {
	processed := make(map[string]struct{})

	page := 1
	lastPage := math.MaxInt
	completed := false

	for page <= lastPage {
		result, err := s.fetcher.FetchVacancies(ctx, page, s.cfg.PageLimit)
		if err != nil {
			return err
		}
		if len(result.Items) == 0 {
			completed = true
			break
		}
		run.PagesFetched++

		batch := make([]*vacancy.Vacancy, 0, len(result.Items))
		for _, item := range result.Items {
			if normalized := s.normalizer.Normalize(item); normalized != nil {
				batch = append(batch, normalized)
			}
		}

		if err := s.saveBatch(ctx, batch, run, processed); err != nil {
			return err
		}

		hint := result.Pagination.LastPageHint()
		if hint != nil {
			lastPage = *hint
			if page >= *hint {
				completed = true
				break
			}
		} else if len(result.Items) < s.cfg.PageLimit {
			completed = true
			break
		}

		page++
		s.delay(ctx)
	}
	if page > lastPage {
		completed = true
	}

	// An incomplete view of upstream must never be used to infer absence.
	if !completed {
		logger.WithField("run_id", run.ID).Warn("Full sync ended before all pages were processed; skipping deactivation step")
		return nil
	}

	if err := s.deactivateMissing(ctx, run, processed); err != nil {
		return err
	}

	// The completed scan makes the store authoritative; take the
	// watermark from it rather than from per-item tracking.
	latest, err := s.store.LatestSourceUpdatedAt(ctx)
	if err != nil {
		return err
	}
	if latest != nil {
		if err := s.store.SetWatermark(ctx, *latest); err != nil {
			return err
		}
	}
	return nil
}

// saveBatch persists one page of normalized items with bounded
// concurrency. Sibling saves finish even when one fails; the first failure
// is reported after the batch drains.
func (s *Service) saveBatch(ctx context.Context, batch []*vacancy.Vacancy, run *vacancy.SyncRun, processed map[string]struct{}) error {
	if len(batch) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.cfg.BatchSaveConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, item := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(v *vacancy.Vacancy) {
			defer wg.Done()
			defer func() { <-sem }()

			action, err := s.saveVacancy(ctx, v)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			processed[v.ID] = struct{}{}
			if action == vacancy.ActionInserted {
				run.ItemsInserted++
			} else {
				run.ItemsUpdated++
			}
		}(item)
	}

	wg.Wait()
	return firstErr
}

func (s *Service) saveVacancy(ctx context.Context, v *vacancy.Vacancy) (string, error) {
	action, err := s.store.Save(ctx, v)
	if err != nil {
		return "", err
	}

	if action == vacancy.ActionInserted {
		if s.cache != nil {
			if err := s.cache.RecordNew(ctx, v.ID, v.FirstSeenAt); err != nil {
				logger.Log.WithError(err).WithField("vacancy_id", v.ID).Warn("Failed to cache new vacancy id")
			}
		}
		if s.publisher != nil {
			_ = s.publisher.PublishEvent(ctx, "vacancy.new", "sync-engine", map[string]interface{}{
				"vacancy_id": v.ID,
				"seen_at":    v.FirstSeenAt,
			})
		}
	}
	return action, nil
}

// deactivateMissing deactivates rows unseen by this scan, unless the
// candidate volume looks like a truncated upstream response.
func (s *Service) deactivateMissing(ctx context.Context, run *vacancy.SyncRun, processed map[string]struct{}) error {
	now := time.Now().UTC()

	processedIDs := make([]string, 0, len(processed))
	for id := range processed {
		processedIDs = append(processedIDs, id)
	}

	candidates, err := s.store.DeactivationCandidates(ctx, run.StartedAt, processedIDs)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	totalActive, err := s.store.CountActive(ctx)
	if err != nil {
		return err
	}

	bound := deactivationBound(totalActive, s.cfg.MaxDeactivationPercent, s.cfg.MinDeactivationCount)
	if len(candidates) > bound {
		logger.WithFields(map[string]interface{}{
			"run_id":       run.ID,
			"candidates":   len(candidates),
			"bound":        bound,
			"total_active": totalActive,
		}).Warn("Deactivation candidate count exceeds safety bound; skipping deactivation")
		return nil
	}

	ids := selectDeactivations(candidates, now)
	count, err := s.store.Deactivate(ctx, ids, now)
	if err != nil {
		return err
	}
	run.ItemsDeactivated = int(count)
	return nil
}

// deactivationBound is max(minCount, totalActive*maxPercent/100): a single
// run may never deactivate an implausibly large share of the dataset.
func deactivationBound(totalActive int64, maxPercent, minCount int) int {
	byPercent := int(totalActive * int64(maxPercent) / 100)
	if byPercent < minCount {
		return minCount
	}
	return byPercent
}

// selectDeactivations partitions candidates: expired listings (close date
// in the past) go unconditionally; potentially active ones only once they
// have gone unseen past the staleness threshold.
func selectDeactivations(candidates []vacancy.Vacancy, now time.Time) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		expired := c.RegistrationClosesAt != nil && c.RegistrationClosesAt.Before(now)
		if expired || now.Sub(c.LastSyncedAt) > staleAfter {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// RunProvinces refreshes the province catalog from upstream. Unlike the
// sync runs, failures here surface as errors: there is no run record to
// carry them.
func (s *Service) RunProvinces(ctx context.Context) (int, error) {
	result, err := s.fetcher.FetchProvinces(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, item := range result.Items {
		code := stringify(item["kode_propinsi"])
		if code == "" {
			continue
		}
		name := stringify(item["nama_propinsi"])
		if name == "" {
			name = stringify(item["nama_provinsi"])
		}
		if name == "" {
			name = "-"
		}
		province := &vacancy.Province{Code: code, Name: name}
		if upstreamID := stringify(item["id_propinsi"]); upstreamID != "" {
			province.UpstreamID = &upstreamID
		}
		if err := s.store.UpsertProvince(ctx, province); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]vacancy.SyncRun, error) {
	return s.store.RecentRuns(ctx, limit)
}

func (s *Service) GetRun(ctx context.Context, id string) (*vacancy.SyncRun, error) {
	return s.store.GetRun(ctx, id)
}

// finishRun records the terminal row for every started run, success or not.
func (s *Service) finishRun(ctx context.Context, run *vacancy.SyncRun, runErr error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	if runErr != nil {
		run.Status = statusFailed
		run.Note = runErr.Error()
		logger.Log.WithError(runErr).WithField("run_id", run.ID).Error("Sync run failed")
	} else {
		run.Status = statusSuccess
	}
	if err := s.store.FinishRun(ctx, run); err != nil {
		logger.Log.WithError(err).WithField("run_id", run.ID).Error("Failed to persist sync run result")
	}
}

func (s *Service) delay(ctx context.Context) {
	if s.cfg.RequestDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.cfg.RequestDelay):
	case <-ctx.Done():
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
