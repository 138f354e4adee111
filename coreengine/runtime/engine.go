// Package runtime assembles a complete interview engine.
//
// An Engine owns one bus and wires the kernel, the tool router and the
// action translator onto it. It also rehydrates a session from persisted
// records on startup and hands out event feeds for UI projections.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/actions"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/kernel"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/tools"
)

// DefaultWatchBuffer is the feed buffer used when Watch is given none.
const DefaultWatchBuffer = 256

// Options configures NewEngine. Zero values use defaults.
type Options struct {
	Config   *config.EngineConfig
	Script   *config.PhaseScript
	Store    persistence.Store
	Registry *tools.Registry
	Logger   kernel.Logger
}

// Engine is a running interview session.
//
// Usage:
//
//	eng, err := runtime.NewEngine(runtime.Options{Store: store, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if _, err := eng.Restore(ctx); err != nil {
//	    return err
//	}
//	resp, err := eng.HandleToolCall(ctx, req)
type Engine struct {
	bus        *commbus.InMemoryEventBus
	kernel     *kernel.Kernel
	router     *tools.Router
	translator *actions.Translator
	store      persistence.Store
	logger     kernel.Logger

	closeOnce sync.Once
}

// NewEngine validates the configuration and wires the components.
func NewEngine(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	script := opts.Script
	if script == nil {
		script = config.DefaultPhaseScript()
	}
	logger := opts.Logger
	if logger == nil {
		logger = commbus.NoopLogger{}
	}

	bus := commbus.NewInMemoryEventBus(logger)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	bus.AddMiddleware(commbus.NewMetricsMiddleware())

	// A nil interface must not reach the store as a typed nil.
	var persister kernel.ArtifactPersister
	if opts.Store != nil {
		persister = opts.Store
	}

	k := kernel.NewKernel(bus, script, cfg, persister, logger)
	router := tools.NewRouter(k, opts.Registry, logger)
	translator := actions.NewTranslator(k, router, nil, logger)

	logger.Info("engine_started",
		"phase", string(k.Store().Phase()),
		"tools", len(router.Registry().List()),
		"persistent", opts.Store != nil,
	)

	return &Engine{
		bus:        bus,
		kernel:     k,
		router:     router,
		translator: translator,
		store:      opts.Store,
		logger:     logger,
	}, nil
}

// Kernel returns the session kernel.
func (e *Engine) Kernel() *kernel.Kernel { return e.kernel }

// Router returns the tool router.
func (e *Engine) Router() *tools.Router { return e.router }

// Actions returns the action translator.
func (e *Engine) Actions() *actions.Translator { return e.translator }

// Bus returns the engine's event bus.
func (e *Engine) Bus() commbus.EventBus { return e.bus }

// Snapshot returns a consistent copy of session state.
func (e *Engine) Snapshot() *kernel.Snapshot { return e.kernel.Snapshot() }

// HandleToolCall dispatches a tool call from the model transport. A nil
// response means the call is waiting for the user.
func (e *Engine) HandleToolCall(ctx context.Context, req interview.ToolCallRequest) (*interview.ToolResponse, error) {
	return e.router.Dispatch(ctx, req)
}

// Restore rehydrates the session from the persistence store. Record types are
// listed concurrently under the configured restore timeout. Returns the number
// of records added to the session.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.kernel.Config().RestoreTimeoutDuration())
	defer cancel()

	types, err := e.store.RecordTypes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list record types: %w", err)
	}

	var mu sync.Mutex
	var records []kernel.StoredRecord

	g, gctx := errgroup.WithContext(ctx)
	for _, recordType := range types {
		g.Go(func() error {
			listed, err := e.store.List(gctx, recordType)
			if err != nil {
				return fmt.Errorf("list %s records: %w", recordType, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range listed {
				records = append(records, kernel.StoredRecord{
					ID:         r.ID,
					RecordType: r.RecordType,
					Payload:    r.Payload,
					CreatedAt:  r.CreatedAt,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("session_restore_failed", "error", err.Error())
		return 0, err
	}

	// later records of the same timeline entry win
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	restored := e.kernel.Store().Restore(ctx, records)
	if restored > 0 {
		e.router.RefreshAllowedTools(ctx)
	}
	return restored, nil
}

// ErrFeedOverflow is reported by EventFeed.Err when the consumer fell behind
// and the feed was closed instead of dropping events.
var ErrFeedOverflow = errors.New("event feed overflowed")

// Watch returns a feed of every bus event until ctx is done. A consumer that
// lets the buffer fill loses the feed: it is closed, Err reports
// ErrFeedOverflow, and the consumer recovers with a fresh Snapshot.
func (e *Engine) Watch(ctx context.Context, buffer int) *EventFeed {
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}
	f := &EventFeed{ch: make(chan commbus.Event, buffer), bus: e.bus, logger: e.logger}
	f.mu.Lock()
	f.token = e.bus.Subscribe(f.handle)
	f.mu.Unlock()

	kernel.SafeGo(e.logger, "event_watch", func() {
		<-ctx.Done()
		f.close(nil)
	}, nil)
	return f
}

// Close detaches every component from the bus. Safe to call more than once.
// The persistence store belongs to the caller.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.translator.Close()
		e.router.Close()
		e.kernel.Close()
		e.logger.Info("engine_stopped")
	})
}

// EventFeed is an ordered copy of the bus events for one consumer.
type EventFeed struct {
	ch     chan commbus.Event
	bus    *commbus.InMemoryEventBus
	token  commbus.SubscriptionToken
	logger kernel.Logger

	mu     sync.Mutex
	closed bool
	err    error
}

// Events is closed when the watch context ends or the feed overflows.
func (f *EventFeed) Events() <-chan commbus.Event {
	return f.ch
}

// Err returns ErrFeedOverflow once an overflowed feed is closed, nil otherwise.
func (f *EventFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *EventFeed) handle(_ context.Context, event commbus.Event) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	select {
	case f.ch <- event:
		f.mu.Unlock()
		return nil
	default:
	}
	f.mu.Unlock()

	f.logger.Warn("event_watch_overflow", "event_type", event.EventType(), "buffer", cap(f.ch))
	f.close(ErrFeedOverflow)
	return nil
}

func (f *EventFeed) close(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.err = err
	close(f.ch)
	token := f.token
	f.mu.Unlock()

	f.bus.Unsubscribe(token)
}
