package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paneldiff/paneldiff/internal/notify"
	"github.com/paneldiff/paneldiff/internal/panel"
)

// DataSource loads the current data snapshot for a session.
// Implemented by the SQLite store.
type DataSource interface {
	GetSessionSnapshot(ctx context.Context, sessionID string) (panel.Snapshot, error)
}

// Service drives the controller from change signals.
//
// Run is the single goroutine that owns all controller state. Data signals
// arm the scheduler; schema signals force a rebuild first; session signals
// swap the active session. When the scheduler fires, the service loads a
// fresh snapshot and runs exactly one pass to completion.
type Service struct {
	controller *Controller
	bus        *notify.Bus
	source     DataSource
	sched      *Scheduler
	sessionID  string
	log        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDebounce sets the scheduler's quiet period and max-wait ceiling.
func WithDebounce(quiet, maxWait time.Duration) ServiceOption {
	return func(s *Service) { s.sched = NewScheduler(quiet, maxWait) }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService wires a controller to a signal bus and a data source.
// sessionID selects whose data the first pass loads; session-changed
// signals switch it later.
func NewService(
	controller *Controller,
	bus *notify.Bus,
	source DataSource,
	sessionID string,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		controller: controller,
		bus:        bus,
		source:     source,
		sched:      NewScheduler(DefaultQuiet, DefaultMaxWait),
		sessionID:  sessionID,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the signal loop. Blocks until the context is cancelled or the
// bus closes. Must be called from exactly one goroutine; all passes run
// inside it.
func (s *Service) Run(ctx context.Context) error {
	dataCh := s.bus.Subscribe(notify.KindDataChanged)
	schemaCh := s.bus.Subscribe(notify.KindSchemaChanged)
	sessionCh := s.bus.Subscribe(notify.KindSessionChanged)

	s.log.Info("reconciliation service starting", "session", s.sessionID)

	for {
		select {
		case <-ctx.Done():
			s.sched.Stop()
			s.log.Info("reconciliation service stopping", "reason", "context cancelled")
			return ctx.Err()

		case sig, ok := <-dataCh:
			if !ok {
				return s.busClosed()
			}
			s.log.Debug("data changed", "panel", sig.PanelID)
			s.sched.Trigger()

		case _, ok := <-schemaCh:
			if !ok {
				return s.busClosed()
			}
			s.log.Debug("schema changed, forcing rebuild")
			s.controller.ForceRebuild()
			s.sched.Trigger()

		case sig, ok := <-sessionCh:
			if !ok {
				return s.busClosed()
			}
			s.log.Info("session switched", "from", s.sessionID, "to", sig.SessionID)
			s.sessionID = sig.SessionID
			s.controller.ForceRebuild()
			s.sched.Trigger()

		case <-s.sched.C():
			if _, err := s.RunOnce(ctx); err != nil {
				// Log and continue: a failed snapshot load skips this
				// pass, the next signal schedules another.
				s.log.Error("pass skipped", "session", s.sessionID, "error", err)
			}
		}
	}
}

// RunOnce loads a snapshot for the active session and runs one pass
// synchronously. The only error is a snapshot load failure; the pass itself
// never fails.
func (s *Service) RunOnce(ctx context.Context) (Outcome, error) {
	snap, err := s.source.GetSessionSnapshot(ctx, s.sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load snapshot for session %s: %w", s.sessionID, err)
	}
	return s.controller.Reconcile(ctx, snap), nil
}

// Controller returns the controller the service drives. Callers outside the
// Run goroutine must not touch it while Run is live.
func (s *Service) Controller() *Controller {
	return s.controller
}

func (s *Service) busClosed() error {
	s.sched.Stop()
	s.log.Info("reconciliation service stopping", "reason", "bus closed")
	return nil
}
