package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
)

// PhaseController validates and applies phase transitions.
//
// A transition from -> to is accepted iff from is the current phase and either
//   - to is the next phase and every required objective of from is completed or skipped, or
//   - force is set and to is later than from.
//
// Backward and same-phase requests are always rejected.
type PhaseController struct {
	store  *SessionStore
	bus    commbus.Publisher
	logger Logger
}

// NewPhaseController creates a controller over store.
func NewPhaseController(store *SessionStore, bus commbus.Publisher, logger Logger) *PhaseController {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PhaseController{store: store, bus: bus, logger: logger}
}

// RequestTransition applies or rejects a transition. A rejection publishes
// phase.transitionRejected and returns an *interview.InvalidPhaseTransitionError.
func (c *PhaseController) RequestTransition(
	ctx context.Context,
	from, to interview.Phase,
	reason string,
	force bool,
) error {
	if err := c.validate(from, to, force); err != nil {
		return c.reject(ctx, err)
	}

	if err := c.store.setPhase(from, to, !force); err != nil {
		return c.reject(ctx, err)
	}

	c.logger.Info("phase_transition_applied",
		"from", string(from),
		"to", string(to),
		"reason", reason,
		"forced", force,
	)
	observability.RecordPhaseTransition(string(to), "applied")

	c.publish(ctx, &commbus.PhaseTransitionApplied{From: from, To: to, Reason: reason, Forced: force})
	if to.IsTerminal() {
		c.publish(ctx, &commbus.InterviewCompleted{})
	}
	return nil
}

// AdvanceToNext requests a transition from the current phase to the next one.
// Returns the destination phase.
func (c *PhaseController) AdvanceToNext(ctx context.Context, reason string, force bool) (interview.Phase, error) {
	from := c.store.Phase()
	to, ok := from.Next()
	if !ok {
		return from, c.reject(ctx, interview.NewInvalidPhaseTransitionError(from, from, "interview is complete"))
	}
	return to, c.RequestTransition(ctx, from, to, reason, force)
}

func (c *PhaseController) validate(from, to interview.Phase, force bool) error {
	if !from.IsValid() || !to.IsValid() {
		return interview.NewInvalidPhaseTransitionError(from, to, "unknown phase")
	}

	current, missing := c.store.missingRequired()
	if from != current {
		return interview.NewInvalidPhaseTransitionError(from, to,
			fmt.Sprintf("current phase is %s", current))
	}
	if !from.Before(to) {
		return interview.NewInvalidPhaseTransitionError(from, to, "phases only move forward")
	}
	if force {
		return nil
	}

	next, _ := from.Next()
	if to != next {
		return interview.NewInvalidPhaseTransitionError(from, to,
			fmt.Sprintf("can only advance to %s without approval", next))
	}
	if len(missing) > 0 {
		return interview.NewInvalidPhaseTransitionError(from, to,
			"required objectives incomplete: "+strings.Join(missing, ", "))
	}
	return nil
}

func (c *PhaseController) reject(ctx context.Context, err error) error {
	var transitionErr *interview.InvalidPhaseTransitionError
	if !errors.As(err, &transitionErr) {
		return err
	}

	c.logger.Warn("phase_transition_rejected",
		"from", string(transitionErr.From),
		"to", string(transitionErr.To),
		"reason", transitionErr.Reason,
	)
	observability.RecordPhaseTransition(string(transitionErr.To), "rejected")
	c.publish(ctx, &commbus.PhaseTransitionRejected{
		From:   transitionErr.From,
		To:     transitionErr.To,
		Reason: transitionErr.Reason,
	})
	return err
}

// CanAdvance reports whether the current phase's required objectives are satisfied
// and a next phase exists.
func (c *PhaseController) CanAdvance() bool {
	current, missing := c.store.missingRequired()
	_, hasNext := current.Next()
	return hasNext && len(missing) == 0
}

// MissingObjectives returns required objectives of the current phase that block advancing.
func (c *PhaseController) MissingObjectives() []string {
	_, missing := c.store.missingRequired()
	return missing
}

// HandleTransitionRequested is the bus handler for phase.transitionRequested.
// Rejections are already published, so they are not returned as subscriber failures.
func (c *PhaseController) HandleTransitionRequested(ctx context.Context, event commbus.Event) error {
	req, ok := event.(*commbus.PhaseTransitionRequested)
	if !ok {
		return nil
	}
	err := c.RequestTransition(ctx, req.From, req.To, req.Reason, req.Force)
	var transitionErr *interview.InvalidPhaseTransitionError
	if errors.As(err, &transitionErr) {
		return nil
	}
	return err
}

func (c *PhaseController) publish(ctx context.Context, event commbus.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("publish_failed", "event_type", event.EventType(), "error", err.Error())
	}
}
