package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/logger"
	"github.com/phonginreallife/oncall-notifier/services"
)

// ErrCycleInProgress is returned when another cycle holds the lock
var ErrCycleInProgress = errors.New("ticket cycle already in progress")

const DefaultCycleTimeout = 2 * time.Minute

// Trigger names what started a cycle
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Ingestor runs one ingest-and-dispatch pass
type Ingestor interface {
	Ingest(ctx context.Context) *services.CycleResult
}

// IntervalSource supplies the polling interval
type IntervalSource interface {
	RefreshInterval(ctx context.Context) time.Duration
}

// WorkerStats are the scheduler counters exposed to operators
type WorkerStats struct {
	Runs         int64            `json:"runs"`
	Rejected     int64            `json:"rejected"`
	Running      bool             `json:"running"`
	Interval     string           `json:"interval,omitempty"`
	LastOutcome  services.Outcome `json:"last_outcome,omitempty"`
	LastTrigger  Trigger          `json:"last_trigger,omitempty"`
	LastRunAt    *time.Time       `json:"last_run_at,omitempty"`
	LastDuration string           `json:"last_duration,omitempty"`
	LastCheck    string           `json:"last_check,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
}

// TicketWorker polls the ticket source on a fixed interval. At most one
// cycle runs at a time in this process, and across processes when a
// CycleLock is configured.
type TicketWorker struct {
	Ingestor Ingestor
	Settings IntervalSource
	Lock     services.CycleLock

	cycleTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	cycleMu sync.Mutex

	statsMu sync.Mutex
	stats   WorkerStats

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicketWorker builds the scheduler. lock may be nil.
func NewTicketWorker(ingestor Ingestor, settings IntervalSource, lock services.CycleLock, cycleTimeout time.Duration, log *zap.Logger) *TicketWorker {
	if cycleTimeout <= 0 {
		cycleTimeout = DefaultCycleTimeout
	}
	return &TicketWorker{
		Ingestor:     ingestor,
		Settings:     settings,
		Lock:         lock,
		cycleTimeout: cycleTimeout,
		logger:       logger.OrNop(log),
		now:          time.Now,
	}
}

// StartTicketWorker blocks, running a cycle on every tick until ctx is
// cancelled or Stop is called. The interval is read once at start; the first
// cycle runs one interval after start.
func (w *TicketWorker) StartTicketWorker(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.loopMu.Lock()
	w.cancel = cancel
	w.done = done
	w.loopMu.Unlock()

	defer close(done)
	defer cancel()

	interval := w.Settings.RefreshInterval(ctx)
	w.statsMu.Lock()
	w.stats.Interval = interval.String()
	w.statsMu.Unlock()

	w.logger.Info("Ticket worker started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Ticket worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunCycle(ctx, TriggerScheduled); errors.Is(err, ErrCycleInProgress) {
				w.logger.Info("Previous cycle still running, skipping tick")
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight cycle to finish
func (w *TicketWorker) Stop() {
	w.loopMu.Lock()
	cancel, done := w.cancel, w.done
	w.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunCycle runs one cycle unless another is in progress, in which case it
// returns ErrCycleInProgress without waiting.
func (w *TicketWorker) RunCycle(ctx context.Context, trigger Trigger) (*services.CycleResult, error) {
	if !w.cycleMu.TryLock() {
		w.reject(trigger, "in-process")
		return nil, ErrCycleInProgress
	}
	defer w.cycleMu.Unlock()

	if w.Lock != nil {
		release, ok, err := w.Lock.TryAcquire(ctx)
		if err != nil {
			w.logger.Error("Cycle lock unavailable, skipping cycle", zap.String("trigger", string(trigger)), zap.Error(err))
			res := &services.CycleResult{
				CycleID:    uuid.New().String(),
				Outcome:    services.OutcomeSkipped,
				StartedAt:  w.now(),
				Introduced: []db.Ticket{},
				Err:        err,
			}
			w.record(trigger, res)
			return res, nil
		}
		if !ok {
			w.reject(trigger, "distributed")
			return nil, ErrCycleInProgress
		}
		defer release()
	}

	w.setRunning(true)
	defer w.setRunning(false)

	cycleCtx, cancel := context.WithTimeout(ctx, w.cycleTimeout)
	defer cancel()

	res := w.ingest(cycleCtx)
	w.record(trigger, res)

	fields := []zap.Field{
		zap.String("cycle_id", res.CycleID),
		zap.String("trigger", string(trigger)),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration),
		zap.Int("introduced", len(res.Introduced)),
		zap.Int("notified", res.Notified),
	}
	if res.Err != nil {
		w.logger.Warn("Ticket cycle finished", append(fields, zap.Error(res.Err))...)
	} else {
		w.logger.Info("Ticket cycle finished", fields...)
	}
	return res, nil
}

func (w *TicketWorker) ingest(ctx context.Context) (res *services.CycleResult) {
	started := w.now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Ticket cycle panicked", zap.Any("panic", r))
			res = &services.CycleResult{
				CycleID:    uuid.New().String(),
				Outcome:    services.OutcomeFailed,
				StartedAt:  started,
				Duration:   w.now().Sub(started),
				Introduced: []db.Ticket{},
				Err:        fmt.Errorf("cycle panicked: %v", r),
			}
		}
	}()
	return w.Ingestor.Ingest(ctx)
}

func (w *TicketWorker) reject(trigger Trigger, scope string) {
	w.statsMu.Lock()
	w.stats.Rejected++
	w.statsMu.Unlock()
	w.logger.Info("Cycle rejected, another cycle holds the lock",
		zap.String("trigger", string(trigger)),
		zap.String("scope", scope),
	)
}

func (w *TicketWorker) setRunning(running bool) {
	w.statsMu.Lock()
	w.stats.Running = running
	w.statsMu.Unlock()
}

func (w *TicketWorker) record(trigger Trigger, res *services.CycleResult) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	ranAt := res.StartedAt
	w.stats.Runs++
	w.stats.LastOutcome = res.Outcome
	w.stats.LastTrigger = trigger
	w.stats.LastRunAt = &ranAt
	w.stats.LastDuration = res.Duration.String()
	w.stats.LastCheck = res.LastCheck
	w.stats.LastError = ""
	if res.Err != nil {
		w.stats.LastError = res.Err.Error()
	}
}

// Stats returns a snapshot of the scheduler counters
func (w *TicketWorker) Stats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}
