package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/practice-local/pkg/logger"
)

// AppointmentFetcher reloads the appointment cache. Reloading also completes
// scheduled appointments whose time has passed.
type AppointmentFetcher interface {
	Fetch(ctx context.Context) error
}

// PatientRefresher reloads the patient cache when it went stale.
type PatientRefresher interface {
	Stale() bool
	Refresh(ctx context.Context) error
}

// RefreshWorker keeps the caches current while a long-running view is open.
type RefreshWorker struct {
	appointments AppointmentFetcher
	patients     PatientRefresher
	interval     time.Duration
	log          *logger.Logger
	onTick       func()
}

func NewRefreshWorker(appointments AppointmentFetcher, patients PatientRefresher, interval time.Duration, log *logger.Logger) *RefreshWorker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RefreshWorker{
		appointments: appointments,
		patients:     patients,
		interval:     interval,
		log:          log.Component("refresh-worker"),
	}
}

// OnTick sets a callback run after every refresh, failed or not.
func (w *RefreshWorker) OnTick(fn func()) {
	w.onTick = fn
}

// Start refreshes every interval until ctx is done.
func (w *RefreshWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("starting refresh worker", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("shutting down refresh worker")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.log.Error(err, "refresh failed")
			}
			if w.onTick != nil {
				w.onTick()
			}
		}
	}
}

// RunOnce refetches appointments, then patients if anything invalidated them.
func (w *RefreshWorker) RunOnce(ctx context.Context) error {
	if err := w.appointments.Fetch(ctx); err != nil {
		return fmt.Errorf("failed to refresh appointments: %w", err)
	}
	if w.patients == nil || !w.patients.Stale() {
		return nil
	}
	if err := w.patients.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh patients: %w", err)
	}
	return nil
}
