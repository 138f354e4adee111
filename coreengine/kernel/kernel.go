package kernel

import (
	"sync"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
)

// =============================================================================
// Kernel
// =============================================================================

// Kernel composes the session store and the components that mutate it:
//   - SessionStore (state)
//   - ContinuationManager (the pending UI-bound tool call)
//   - PhaseController (phase state machine)
//   - Workflow (event-driven objective progress)
//
// NewKernel subscribes the workflow rules and the phase controller to the bus.
// Close removes those subscriptions.
//
// Usage:
//
//	bus := commbus.NewInMemoryEventBus(logger)
//	k := kernel.NewKernel(bus, script, cfg, store, logger)
//	defer k.Close()
//
//	k.Store().SetObjectiveStatus(ctx, interview.ObjectiveApplicantProfile, interview.ObjectiveCompleted, "model", "")
//	if k.Phases().CanAdvance() {
//	    k.Phases().AdvanceToNext(ctx, "objectives met", false)
//	}
type Kernel struct {
	config *config.EngineConfig
	script *config.PhaseScript
	bus    commbus.EventBus
	logger Logger

	store         *SessionStore
	continuations *ContinuationManager
	phases        *PhaseController
	workflow      *Workflow

	tokens []commbus.SubscriptionToken
	mu     sync.Mutex
}

// NewKernel creates a kernel wired to bus. Nil script and cfg use the defaults;
// a nil persister keeps artifacts in memory only.
func NewKernel(
	bus commbus.EventBus,
	script *config.PhaseScript,
	cfg *config.EngineConfig,
	persister ArtifactPersister,
	logger Logger,
) *Kernel {
	if script == nil {
		script = config.DefaultPhaseScript()
	}
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if logger == nil {
		logger = noopLogger{}
	}

	store := NewSessionStore(bus, script, cfg, persister, logger)
	k := &Kernel{
		config:        cfg,
		script:        script,
		bus:           bus,
		logger:        logger,
		store:         store,
		continuations: NewContinuationManager(store, bus, logger),
		phases:        NewPhaseController(store, bus, logger),
		workflow:      NewWorkflow(store, logger),
	}

	k.tokens = append(k.tokens,
		bus.Subscribe(k.workflow.Handle),
		bus.SubscribeCategory(commbus.CategoryPhase, k.phases.HandleTransitionRequested),
	)
	return k
}

// Close unsubscribes the kernel from the bus. Safe to call more than once.
func (k *Kernel) Close() {
	k.mu.Lock()
	tokens := k.tokens
	k.tokens = nil
	k.mu.Unlock()

	for _, t := range tokens {
		k.bus.Unsubscribe(t)
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Store returns the session store.
func (k *Kernel) Store() *SessionStore {
	return k.store
}

// Continuations returns the continuation manager.
func (k *Kernel) Continuations() *ContinuationManager {
	return k.continuations
}

// Phases returns the phase controller.
func (k *Kernel) Phases() *PhaseController {
	return k.phases
}

// Bus returns the event bus.
func (k *Kernel) Bus() commbus.EventBus {
	return k.bus
}

// Config returns the engine configuration.
func (k *Kernel) Config() *config.EngineConfig {
	return k.config
}

// Script returns the phase script.
func (k *Kernel) Script() *config.PhaseScript {
	return k.script
}

// Logger returns the kernel logger.
func (k *Kernel) Logger() Logger {
	return k.logger
}

// Snapshot returns a consistent copy of the session.
func (k *Kernel) Snapshot() *Snapshot {
	return k.store.Snapshot()
}
