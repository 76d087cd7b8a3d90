package vault

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/the-agency-ai/secretvault/internal/store"
	"github.com/the-agency-ai/secretvault/pkg/schema"
)

// Sweeper runs the periodic maintenance loop: it forces the lazy
// auto-lock check while the process is idle and, on a cron schedule,
// reports expired and soon-to-expire secrets.
type Sweeper struct {
	store    store.Store
	session  *Session
	logger   *slog.Logger
	schedule cron.Schedule

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// NewSweeper parses the five-field cron expression for the expiry scan.
func NewSweeper(st store.Store, session *Session, logger *slog.Logger, cronSpec string) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid sweep schedule %q", cronSpec).WithCause(err)
	}
	return &Sweeper{store: st, session: session, logger: logger, schedule: schedule}, nil
}

// Start launches the loop. Calling Start on a running sweeper is a no-op.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.nextRun = w.schedule.Next(time.Now())
	go w.run(ctx)
	w.logger.Info("sweeper started", slog.Time("next_expiry_scan", w.nextRun))
}

// Stop halts the loop and waits for the current tick to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("sweeper stopped")
}

func (w *Sweeper) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.tick(ctx, now)
		}
	}
}

func (w *Sweeper) tick(ctx context.Context, now time.Time) {
	// IsUnlocked performs the deadline check, so an idle vault locks
	// itself even when no request ever arrives.
	unlocked := w.session.IsUnlocked()

	w.mu.Lock()
	due := !now.Before(w.nextRun)
	if due {
		w.nextRun = w.schedule.Next(now)
	}
	w.mu.Unlock()
	if !due || !unlocked {
		return
	}

	w.scanExpiry(ctx)
}

func (w *Sweeper) scanExpiry(ctx context.Context) {
	expired, err := w.store.ExpiredSecrets(ctx)
	if err != nil {
		w.logger.Error("expiry scan failed", slog.String("error", err.Error()))
		return
	}
	for _, sec := range expired {
		w.logger.Warn("secret expired",
			slog.String("name", sec.Name),
			slog.Time("expired_at", *sec.ExpiresAt))
	}

	stats, err := w.store.Stats(ctx)
	if err != nil {
		w.logger.Error("stats scan failed", slog.String("error", err.Error()))
		return
	}
	if stats.ExpiringSoon > 0 {
		w.logger.Info("secrets expiring within 30 days",
			slog.Int("count", stats.ExpiringSoon))
	}
}
