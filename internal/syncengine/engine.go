// Package syncengine drains the outbound operation queue into the central
// store. A single cooperative worker runs drain cycles, woken by a fixed
// interval, a priority hint from the coordinator, or an explicit force
// sync.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/fieldsync-go/internal/centralstore"
	"github.com/tphakala/fieldsync-go/internal/connectivity"
	"github.com/tphakala/fieldsync-go/internal/errors"
	"github.com/tphakala/fieldsync-go/internal/localstore"
	"github.com/tphakala/fieldsync-go/internal/logging"
	"github.com/tphakala/fieldsync-go/internal/observability"
)

// Health values reported by the engine.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// maxBackoff caps the exponential wait between attempts.
const maxBackoff = 15 * time.Minute

// Config holds the drain loop parameters.
type Config struct {
	BaseInterval     time.Duration // interval between cycles when idle
	BatchCap         int           // max normal-priority operations per cycle
	MinRetryInterval time.Duration // base backoff unit
	RetentionWindow  time.Duration // synced row retention before pruning
}

// CycleResult summarizes one drain cycle.
type CycleResult struct {
	Online    bool
	Attempted int
	Synced    int
	Retried   int
	Failed    int
	Deferred  int // reserved but still inside their backoff window
	Pruned    int64
}

// Engine is the background sync worker. Only one drain cycle is ever in
// flight; ForceSync and the background loop serialize on the same lock.
type Engine struct {
	store   *localstore.Store
	adapter centralstore.Adapter
	probe   *connectivity.Probe
	cfg     Config
	metrics *observability.SyncMetrics // optional
	logger  *slog.Logger

	cycleMu sync.Mutex
	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	prepare func(ctx context.Context) // optional, runs before each online cycle

	mu        sync.Mutex
	running   bool
	health    string
	lastSync  time.Time
	drained   int64
	retried   int64
	failed    int64
	lastError string
}

// Snapshot is a point-in-time view of the engine's telemetry.
type Snapshot struct {
	Health       string
	LastSyncAt   time.Time
	DrainedTotal int64
	RetriedTotal int64
	FailedTotal  int64
	LastError    string
}

// New creates a sync engine. metrics may be nil.
func New(store *localstore.Store, adapter centralstore.Adapter, probe *connectivity.Probe, cfg Config, metrics *observability.SyncMetrics) *Engine {
	return &Engine{
		store:   store,
		adapter: adapter,
		probe:   probe,
		cfg:     cfg,
		metrics: metrics,
		logger:  logging.ForService("syncengine"),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		health:  HealthOK,
	}
}

// SetPrepare registers a function run at the start of every online drain
// cycle, before any reservation. The coordinator uses it to release
// operations that were waiting on an external step, such as a blob
// upload. Must be called before Start.
func (e *Engine) SetPrepare(fn func(ctx context.Context)) {
	e.prepare = fn
}

// Start launches the background worker. On startup any in-flight rows left
// by a previous process are released back to pending before the first
// cycle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	if _, err := e.store.ReleaseStaleInFlight(); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	go e.run(ctx)
	return nil
}

// run is the worker loop. It never aborts on a single operation's error;
// only a structurally broken store stops it.
func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.BaseInterval)
	defer ticker.Stop()

	e.logger.Info("sync engine started", "base_interval", e.cfg.BaseInterval, "batch_cap", e.cfg.BatchCap)

	for {
		select {
		case <-e.stopCh:
			e.logger.Info("sync engine stopped")
			return
		case <-ctx.Done():
			e.logger.Info("sync engine stopped via context", "cause", ctx.Err())
			return
		case <-ticker.C:
		case <-e.wakeCh:
		}

		if _, err := e.DrainOnce(ctx); err != nil {
			if errors.Is(err, errors.ErrStoreUnavailable) {
				e.mu.Lock()
				e.health = HealthDegraded
				e.lastError = err.Error()
				e.mu.Unlock()
				e.logger.Error("local store unavailable, stopping sync loop", "error", err)
				return
			}
			e.logger.Warn("drain cycle failed", "error", err)
		}
	}
}

// Stop signals the loop and waits for the current drain cycle to finish.
// In-flight reservations always get their result recorded before the
// worker exits.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)

	select {
	case <-e.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for drain cycle to complete after %v", timeout)
	}
}

// Wake hints the worker to run a cycle soon, typically after a
// high-priority enqueue. Non-blocking; a pending hint coalesces.
func (e *Engine) Wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// DrainOnce runs a single drain cycle synchronously. This is force_sync;
// it shares the cycle lock with the background worker so only one cycle is
// ever in flight.
func (e *Engine) DrainOnce(ctx context.Context) (CycleResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()
	if e.metrics != nil {
		e.metrics.DrainCycles.Inc()
		defer func() { e.metrics.DrainDuration.Observe(time.Since(start).Seconds()) }()
	}

	var res CycleResult
	res.Online = e.probe.IsOnline(ctx)
	e.setOnlineMetric(res.Online)
	if !res.Online {
		e.logger.Debug("central store unreachable, skipping drain cycle")
		return res, nil
	}

	// Rows still in flight at the top of a cycle were stranded by a store
	// error cutting an earlier batch short; only one cycle ever runs, so
	// nothing can legitimately hold a reservation here.
	if released, err := e.store.ReleaseStaleInFlight(); err != nil {
		return res, err
	} else if released > 0 {
		e.logger.Warn("recovered stranded reservations", "count", released)
	}

	if e.prepare != nil {
		e.prepare(ctx)
	}

	// Priority band first, unbounded. Then the normal band under the cap.
	// Operations deferred by the priority band are skipped by the normal
	// band so each is counted once per cycle.
	deferred := make(map[uint]bool)
	if err := e.drainBand(ctx, 0, localstore.PriorityHigh, deferred, &res); err != nil {
		return res, err
	}
	if err := e.drainBand(ctx, e.cfg.BatchCap, 0, deferred, &res); err != nil {
		return res, err
	}

	pruned, err := e.store.PruneSynced(time.Now().Add(-e.cfg.RetentionWindow))
	if err != nil {
		return res, err
	}
	res.Pruned = pruned

	e.mu.Lock()
	e.lastSync = time.Now()
	e.mu.Unlock()

	e.updatePendingGauge()

	if res.Attempted > 0 {
		e.logger.Info("drain cycle complete",
			"attempted", res.Attempted,
			"synced", res.Synced,
			"retried", res.Retried,
			"failed", res.Failed,
			"deferred", res.Deferred,
			"pruned", res.Pruned)
	}
	return res, nil
}

// drainBand reserves one priority band and attempts each operation in
// order. Operations still inside their backoff window are released back
// untouched.
func (e *Engine) drainBand(ctx context.Context, batchCap, minPriority int, deferred map[uint]bool, res *CycleResult) error {
	ops, err := e.store.ReserveBatch(batchCap, minPriority)
	if err != nil {
		return err
	}

	for i := range ops {
		op := &ops[i]

		// Already deferred by the previous band this cycle.
		if deferred[op.ID] {
			if err := e.store.ReleaseReservation(op.ID); err != nil {
				e.releaseReservations(ops[i+1:])
				return err
			}
			continue
		}

		if !e.eligible(op) {
			if err := e.store.ReleaseReservation(op.ID); err != nil {
				e.releaseReservations(ops[i+1:])
				return err
			}
			deferred[op.ID] = true
			res.Deferred++
			continue
		}

		res.Attempted++
		outcome := e.apply(ctx, op)
		if err := e.record(op, outcome, res); err != nil {
			e.releaseReservations(ops[i:])
			return err
		}
	}
	return nil
}

// releaseReservations returns a cut-short batch to pending, best effort.
// Anything that stays stuck is recovered at the top of the next cycle.
func (e *Engine) releaseReservations(ops []localstore.Operation) {
	for i := range ops {
		if err := e.store.ReleaseReservation(ops[i].ID); err != nil {
			e.logger.Warn("failed to release reservation", "id", ops[i].ID, "error", err)
		}
	}
}

// eligible reports whether the operation's backoff window has elapsed:
// min_retry_interval × 2^attempts, capped.
func (e *Engine) eligible(op *localstore.Operation) bool {
	if op.Attempts == 0 || op.LastAttemptAt == nil {
		return true
	}
	wait := e.cfg.MinRetryInterval << op.Attempts
	if wait > maxBackoff || wait <= 0 {
		wait = maxBackoff
	}
	return time.Since(*op.LastAttemptAt) >= wait
}

// apply dispatches one operation to the target-specific adapter call.
func (e *Engine) apply(ctx context.Context, op *localstore.Operation) centralstore.Outcome {
	payload, err := localstore.DecodePayload(op.PayloadBlob)
	if err != nil {
		// A payload the device itself cannot decode will never sync.
		return centralstore.Outcome{Code: centralstore.OutcomePermanent, Err: err}
	}

	switch op.Verb {
	case localstore.VerbInsert:
		return e.adapter.ApplyInsert(ctx, op.Target, payload)
	case localstore.VerbUpdate:
		return e.adapter.ApplyUpdate(ctx, op.Target, op.Key, payload)
	case localstore.VerbDelete:
		return e.adapter.ApplyDelete(ctx, op.Target, op.Key)
	default:
		return centralstore.Outcome{
			Code: centralstore.OutcomePermanent,
			Err:  fmt.Errorf("unknown verb %q", op.Verb),
		}
	}
}

// record maps the adapter outcome onto the store transition and updates
// counters.
func (e *Engine) record(op *localstore.Operation, outcome centralstore.Outcome, res *CycleResult) error {
	switch outcome.Code {
	case centralstore.OutcomeOK:
		if err := e.store.MarkResult(op.ID, localstore.OutcomeSynced); err != nil {
			return err
		}
		res.Synced++
		e.mu.Lock()
		e.drained++
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.OperationsDrained.WithLabelValues(op.Target).Inc()
		}

	case centralstore.OutcomeTransient:
		if err := e.store.MarkResult(op.ID, localstore.OutcomeRetry); err != nil {
			return err
		}
		// MarkResult may have promoted the retry to failed at the ceiling.
		updated, err := e.store.GetOperation(op.ID)
		if err != nil {
			return err
		}
		if updated.State == localstore.StateFailed {
			res.Failed++
			e.noteFailure(op, outcome.Err)
		} else {
			res.Retried++
			e.mu.Lock()
			e.retried++
			e.mu.Unlock()
			if e.metrics != nil {
				e.metrics.OperationsRetried.Inc()
			}
		}
		e.probe.Invalidate()
		e.logger.Debug("operation deferred for retry",
			"id", op.ID, "target", op.Target, "attempts", updated.Attempts, "error", outcome.Err)

	case centralstore.OutcomePermanent:
		if err := e.store.MarkResult(op.ID, localstore.OutcomeFailed); err != nil {
			return err
		}
		res.Failed++
		e.noteFailure(op, outcome.Err)
		e.logger.Warn("operation permanently rejected",
			"id", op.ID, "target", op.Target, "verb", op.Verb, "error", outcome.Err)
	}
	return nil
}

func (e *Engine) noteFailure(op *localstore.Operation, cause error) {
	e.mu.Lock()
	e.failed++
	if cause != nil {
		e.lastError = cause.Error()
	}
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.OperationsFailed.WithLabelValues(op.Target).Inc()
	}
}

func (e *Engine) setOnlineMetric(online bool) {
	if e.metrics == nil {
		return
	}
	if online {
		e.metrics.OnlineStatus.Set(1)
	} else {
		e.metrics.OnlineStatus.Set(0)
	}
}

func (e *Engine) updatePendingGauge() {
	if e.metrics == nil {
		return
	}
	if pending, err := e.store.PendingCount(); err == nil {
		e.metrics.PendingOperations.Set(float64(pending))
	}
}

// Telemetry returns a snapshot of the engine's counters.
func (e *Engine) Telemetry() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Health:       e.health,
		LastSyncAt:   e.lastSync,
		DrainedTotal: e.drained,
		RetriedTotal: e.retried,
		FailedTotal:  e.failed,
		LastError:    e.lastError,
	}
}
