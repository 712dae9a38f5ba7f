package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/otelhelper"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/services"
)

// Tracker consumes task transition events from the engine and folds them
// into stored task records, so the API can serve session history without
// calling the engine.
type Tracker struct {
	id           string
	eventBus     eventbus.EventBus
	persistence  persistence.Persistence
	tasks        *services.Task
	sessionCache *engine.SessionCache
	tracer       trace.Tracer
	logger       *slog.Logger
	restartCount int
}

// NewTracker creates a new Tracker instance. The session cache is optional;
// without it transitions are only persisted.
func NewTracker(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	sessionCache *engine.SessionCache,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Tracker {
	l := logger.With("module", "tracker")

	return &Tracker{
		id:           id,
		eventBus:     eventBus,
		persistence:  persistence,
		tasks:        services.NewTask(l, persistence),
		sessionCache: sessionCache,
		tracer:       tracer,
		logger:       l,
	}
}

// Start begins the tracker service.
func (t *Tracker) Start(ctx context.Context) {
	tCtx, cancel := context.WithCancel(ctx)

	t.logger.Info("Starting tracker")

	t.handleSignals(tCtx, cancel)
	t.run(tCtx)
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (t *Tracker) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		t.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			t.logger.Info("Reloading configuration...")
			t.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			t.logger.Info("Shutting down gracefully...")
			t.stop(cancel)
			os.Exit(0)
		default:
			t.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart handles service restart with exponential backoff.
func (t *Tracker) restart(ctx context.Context, cancel context.CancelFunc) {
	t.restartCount++
	newCtx := context.WithoutCancel(ctx)

	t.stop(cancel)

	if t.restartCount > 5 {
		t.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(t.restartCount) * time.Second
	t.logger.Info("Restarting tracker...", "backoff", backoff)
	time.Sleep(backoff)

	t.Start(newCtx)
}

// run is the main loop that consumes task transition events.
func (t *Tracker) run(ctx context.Context) {
	t.logger.Info("Starting task transition consumption")

	t.processTransitions(ctx)

	// The subscription runs in background goroutines.
	<-ctx.Done()
	t.logger.Info("Tracker context cancelled, stopping...")
}

// processTransitions registers the transition handler and starts consuming.
func (t *Tracker) processTransitions(ctx context.Context) {
	err := t.eventBus.Handle(events.TaskTransitionEvent, func(ctx context.Context, event any) error {
		transition, ok := event.(*events.TaskTransition)
		if !ok {
			t.logger.Error("Received unexpected payload for task transition event")

			return nil
		}

		return t.handleTransition(ctx, transition)
	})
	if err != nil {
		t.logger.Error("Failed to register task transition handler", "error", err)

		return
	}

	err = t.eventBus.Subscribe(ctx)
	if err != nil {
		t.logger.Error("Failed to start event subscription", "error", err)

		return
	}

	t.logger.Info("Successfully subscribed to task transition events - waiting for events...")
}

// handleTransition applies one transition to the task store and mirrors it
// into the session cache.
func (t *Tracker) handleTransition(ctx context.Context, transition *events.TaskTransition) error {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "tracker.record_transition",
		attribute.String(otelhelper.TaskIDKey, transition.TaskID),
		attribute.String(otelhelper.SessionIDKey, transition.SessionID),
		attribute.String(otelhelper.TaskStatusKey, string(transition.Status)),
	)
	defer span.End()

	logger := t.logger.With(
		"task_id", transition.TaskID,
		"session_id", transition.SessionID,
		"status", transition.Status,
	)

	logger.Info("Processing task transition")

	_, err := t.tasks.Record(ctx, transition)
	if err != nil {
		// Conflicting and malformed transitions never become applicable on
		// redelivery, so they are acked after logging.
		if errors.Is(err, services.ErrTransitionConflict) || services.IsValidationError(err) {
			logger.Warn("Dropping unapplicable transition", "error", err)
			otelhelper.SetError(span, err)

			return nil
		}

		logger.Error("Failed to record transition", "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	if t.sessionCache != nil {
		if err := t.sessionCache.Append(ctx, transition); err != nil {
			logger.Warn("Failed to cache transition", "error", err)
		}
	}

	return nil
}

// stop gracefully shuts down the tracker.
func (t *Tracker) stop(cancel context.CancelFunc) {
	t.logger.Info("Stopping tracker")

	if cancel != nil {
		cancel()
	}
}
