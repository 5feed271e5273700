package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"staywatch/booking"
	"staywatch/limiter"
	"staywatch/models"
	"staywatch/notify"
	"staywatch/storage"
)

// ErrSearchNotFound is returned when the referenced search does not exist.
var ErrSearchNotFound = errors.New("search not found")

// Engine runs searches end to end: expands the probe grid, drives probes
// through the concurrency/rate/retry layers, aggregates, diffs against the
// previous run, persists, notifies, and advances the schedule.
//
// All collaborators are injected. The rate limiter and both concurrency
// limiters are expected to be process-wide singletons shared across engines
// so pacing holds globally.
type Engine struct {
	store    storage.Store
	client   booking.Client
	notifier notify.Notifier

	rate     *limiter.RateLimiter
	probes   *limiter.ConcurrencyLimiter
	searches *limiter.ConcurrencyLimiter
	retry    limiter.RetryConfig

	registry *Registry
	onUpdate func(models.SearchExecution)
	now      func() time.Time
}

func New(
	store storage.Store,
	client booking.Client,
	notifier notify.Notifier,
	rate *limiter.RateLimiter,
	probeLimiter, searchLimiter *limiter.ConcurrencyLimiter,
	retry limiter.RetryConfig,
) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		notifier: notifier,
		rate:     rate,
		probes:   probeLimiter,
		searches: searchLimiter,
		retry:    retry,
		registry: NewRegistry(),
		now:      time.Now,
	}
}

// SetExecutionObserver registers a callback invoked after every execution
// update, so outer layers can stream progress.
func (e *Engine) SetExecutionObserver(fn func(models.SearchExecution)) {
	e.onUpdate = fn
}

// Registry exposes the in-flight execution registry for cancellation.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// LimiterStatus reports the probe/search limiter snapshots and the current
// outbound request rate, for operational visibility.
func (e *Engine) LimiterStatus() (probe, search limiter.Status, requestRate float64) {
	return e.probes.GetStatus(), e.searches.GetStatus(), e.rate.RequestRate()
}

// ExecuteSearch runs one search to completion and returns its result.
// At most the search limiter's budget of executions run in parallel.
func (e *Engine) ExecuteSearch(ctx context.Context, searchID uuid.UUID) (*models.SearchResult, error) {
	var result *models.SearchResult
	err := e.searches.Execute(ctx, func() error {
		var runErr error
		result, runErr = e.run(ctx, searchID)
		return runErr
	})
	return result, err
}

func (e *Engine) run(ctx context.Context, searchID uuid.UUID) (*models.SearchResult, error) {
	search, err := e.store.GetSearch(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("load search: %w", err)
	}
	if search == nil {
		return nil, fmt.Errorf("%w: %s", ErrSearchNotFound, searchID)
	}

	exec := &models.SearchExecution{
		ID:        uuid.New(),
		SearchID:  search.ID,
		Status:    models.ExecutionStatusRunning,
		StartedAt: e.now(),
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.registry.add(exec.ID, cancel)
	defer e.registry.remove(exec.ID)

	grid := ExpandGrid(search)
	exec.TotalChecks = len(grid)
	if err := e.updateExecution(ctx, exec); err != nil {
		return nil, e.fail(ctx, search, exec, fmt.Errorf("persist total checks: %w", err))
	}

	log.Printf("Executing search %q: %d probes", search.Name, len(grid))

	collected, cancelled, err := e.probeGrid(execCtx, search, exec, grid)
	if err != nil {
		return nil, e.fail(ctx, search, exec, err)
	}
	if cancelled {
		return e.finishCancelled(ctx, search, exec, collected)
	}

	result, err := e.persistResult(ctx, search, exec, collected)
	if err != nil {
		return nil, e.fail(ctx, search, exec, err)
	}

	e.notifyResult(ctx, search, result)
	e.advanceSchedule(ctx, search)

	log.Printf("Search %q completed: %d offers, %d new, %d removed",
		search.Name, len(result.Availabilities), len(result.Changes.New), len(result.Changes.Removed))
	return result, nil
}

// probeGrid drives every grid cell through the rate limiter, the per-probe
// concurrency limiter and the retry strategy. Individual probe failures are
// logged and skipped; only persistence failures abort. The cancelled return
// is set when the execution context is cancelled between cells.
func (e *Engine) probeGrid(ctx context.Context, search *models.Search, exec *models.SearchExecution, grid []GridCell) (collected []models.Availability, cancelled bool, err error) {
	// The accumulator and counters are shared with in-flight probes when the
	// probe limiter allows more than one slot.
	var mu sync.Mutex

	for _, cell := range grid {
		if ctx.Err() != nil {
			return collected, true, nil
		}

		if err := e.rate.Throttle(ctx); err != nil {
			return collected, true, nil
		}

		var found []models.Availability
		probeErr := e.probes.Execute(ctx, func() error {
			return limiter.Retry(ctx, e.retry, func() error {
				start := time.Now()
				avail, err := e.client.CheckAvailability(ctx, cell.CheckInDate(), cell.CheckOutDate(), search.Resorts, search.AccommodationTypes)
				if err != nil {
					return err
				}
				e.rate.RecordResponseTime(time.Since(start))
				found = avail
				return nil
			})
		})

		if probeErr != nil {
			if errors.Is(probeErr, context.Canceled) || errors.Is(probeErr, context.DeadlineExceeded) {
				return collected, true, nil
			}
			// A single failed cell never aborts the search.
			log.Printf("Warning: probe %s..%s failed after retries: %v",
				cell.CheckInDate(), cell.CheckOutDate(), probeErr)
		}

		mu.Lock()
		collected = append(collected, found...)
		exec.CompletedChecks++
		exec.FoundAvailabilities = len(collected)
		mu.Unlock()

		if err := e.updateExecution(ctx, exec); err != nil {
			// A cancellation landing while the probe was in flight surfaces
			// here as a store write on a dead context. That is a cancel, not
			// a persistence failure.
			if ctx.Err() != nil {
				return collected, true, nil
			}
			return collected, false, fmt.Errorf("update execution progress: %w", err)
		}
	}
	return collected, false, nil
}

func (e *Engine) persistResult(ctx context.Context, search *models.Search, exec *models.SearchExecution, collected []models.Availability) (*models.SearchResult, error) {
	prev, err := e.store.GetLatestSearchResult(ctx, search.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous result: %w", err)
	}
	var prevAvail []models.Availability
	if prev != nil {
		prevAvail = prev.Availabilities
	}

	result := &models.SearchResult{
		ID:             uuid.New(),
		SearchID:       search.ID,
		Timestamp:      e.now(),
		Availabilities: collected,
		Changes:        Diff(collected, prevAvail),
	}
	if err := e.store.SaveSearchResult(ctx, result); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	now := e.now()
	exec.Status = models.ExecutionStatusCompleted
	exec.CompletedAt = &now
	exec.FoundAvailabilities = len(collected)
	if err := e.updateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("finalize execution: %w", err)
	}
	return result, nil
}

// notifyResult delivers the summary when the search wants it. Delivery
// failures are logged and recorded but never fail the execution.
func (e *Engine) notifyResult(ctx context.Context, search *models.Search, result *models.SearchResult) {
	email := search.Notifications.Email
	if email == "" {
		return
	}
	changed := len(result.Changes.New) > 0 || len(result.Changes.Removed) > 0
	if search.Notifications.OnlyChanges && !changed {
		return
	}

	entry := &models.NotificationLog{
		SearchID:     search.ID,
		ResultID:     result.ID,
		SentAt:       e.now(),
		Recipient:    email,
		Subject:      notify.Subject(search, result),
		NewCount:     len(result.Changes.New),
		RemovedCount: len(result.Changes.Removed),
	}

	if err := e.notifier.SendNotification(ctx, search, result); err != nil {
		log.Printf("Warning: notification for search %q failed: %v", search.Name, err)
		entry.Error = err.Error()
	} else {
		entry.Success = true
		result.NotificationSent = true
		if err := e.store.MarkResultNotified(ctx, result.ID); err != nil {
			log.Printf("Warning: failed to flag result %s notified: %v", result.ID, err)
		}
	}

	if err := e.store.LogNotification(ctx, entry); err != nil {
		log.Printf("Warning: failed to log notification for search %q: %v", search.Name, err)
	}
}

// advanceSchedule stamps lastRun and the computed nextRun on the search.
// An unparseable custom cron falls back to hourly rather than leaving the
// search permanently due.
func (e *Engine) advanceSchedule(ctx context.Context, search *models.Search) {
	now := e.now()
	next, err := search.Schedule.Next(now)
	if err != nil {
		log.Printf("Warning: schedule for search %q: %v; falling back to hourly", search.Name, err)
		next = now.Add(time.Hour)
	}
	if err := e.store.UpdateSearchSchedule(ctx, search.ID, &now, &next); err != nil {
		log.Printf("Warning: failed to update schedule for search %q: %v", search.Name, err)
	}
}

// finishCancelled preserves whatever was collected before cancellation and
// marks the execution cancelled. Finalization writes use a detached context
// because the execution's own context is already dead.
func (e *Engine) finishCancelled(ctx context.Context, search *models.Search, exec *models.SearchExecution, collected []models.Availability) (*models.SearchResult, error) {
	base := context.WithoutCancel(ctx)

	result, err := e.persistCancelledResult(base, search, exec, collected)
	if err != nil {
		log.Printf("Warning: failed to persist partial result for search %q: %v", search.Name, err)
	}

	now := e.now()
	exec.Status = models.ExecutionStatusCancelled
	exec.CompletedAt = &now
	if err := e.updateExecution(base, exec); err != nil {
		log.Printf("Warning: failed to mark execution %s cancelled: %v", exec.ID, err)
	}
	log.Printf("Search %q cancelled after %d/%d probes", search.Name, exec.CompletedChecks, exec.TotalChecks)
	return result, nil
}

func (e *Engine) persistCancelledResult(ctx context.Context, search *models.Search, exec *models.SearchExecution, collected []models.Availability) (*models.SearchResult, error) {
	prev, err := e.store.GetLatestSearchResult(ctx, search.ID)
	if err != nil {
		return nil, err
	}
	var prevAvail []models.Availability
	if prev != nil {
		prevAvail = prev.Availabilities
	}
	result := &models.SearchResult{
		ID:             uuid.New(),
		SearchID:       search.ID,
		Timestamp:      e.now(),
		Availabilities: collected,
		Changes:        Diff(collected, prevAvail),
		Error:          "execution cancelled",
	}
	if err := e.store.SaveSearchResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// fail marks the execution failed, notifies the search's recipient about the
// failure, and returns the original error. The terminal write and the
// notification are best effort on a detached context.
func (e *Engine) fail(ctx context.Context, search *models.Search, exec *models.SearchExecution, err error) error {
	now := e.now()
	exec.Status = models.ExecutionStatusFailed
	exec.CompletedAt = &now
	exec.Error = err.Error()
	base := context.WithoutCancel(ctx)
	if uerr := e.updateExecution(base, exec); uerr != nil {
		log.Printf("Warning: failed to mark execution %s failed: %v", exec.ID, uerr)
	}
	if search.Notifications.Email != "" {
		if nerr := e.notifier.SendError(base, search, err); nerr != nil {
			log.Printf("Warning: failure notification for search %q failed: %v", search.Name, nerr)
		}
	}
	return err
}

func (e *Engine) updateExecution(ctx context.Context, exec *models.SearchExecution) error {
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	if e.onUpdate != nil {
		e.onUpdate(*exec)
	}
	return nil
}

// ExecuteAllDueSearches runs every enabled search whose nextRun is unset or
// has passed, sequentially. A failing search is logged and never blocks the
// rest.
func (e *Engine) ExecuteAllDueSearches(ctx context.Context) error {
	due, err := e.store.GetSearchesDueForExecution(ctx, e.now())
	if err != nil {
		return fmt.Errorf("load due searches: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	log.Printf("%d search(es) due for execution", len(due))
	for _, s := range due {
		if _, err := e.ExecuteSearch(ctx, s.ID); err != nil {
			log.Printf("Error executing search %q: %v", s.Name, err)
		}
	}
	return nil
}
