// Package escalation decides when an unanswered query may be escalated.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

var (
	ErrTooEarly       = errors.New("query cannot be escalated yet")
	ErrNotEscalatable = errors.New("query is not awaiting an answer")
)

// Window gates escalation on query status and age.
type Window struct {
	MinAge time.Duration
	clock  core.Clock
}

// NewWindow returns a window with the standard delay.
func NewWindow(clock core.Clock) Window {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	return Window{MinAge: core.EscalationDelay, clock: clock}
}

// Awaiting reports whether the query is still waiting on the service.
func Awaiting(status domain.QueryStatus) bool {
	switch status {
	case domain.QueryOpen, domain.QueryPending, domain.QueryUnderReview:
		return true
	}
	return false
}

// CanEscalate reports whether q may be escalated now.
func (w Window) CanEscalate(q domain.Query) bool {
	return Awaiting(q.Status) && w.Remaining(q) == 0
}

// Remaining is how long until q becomes escalatable, ignoring status.
func (w Window) Remaining(q domain.Query) time.Duration {
	age := w.clock.Now().Sub(q.CreatedAt)
	if age >= w.MinAge {
		return 0
	}
	return w.MinAge - age
}

// Check returns nil if q may be escalated, otherwise the rule it breaks.
func (w Window) Check(q domain.Query) error {
	if !Awaiting(q.Status) {
		return fmt.Errorf("%w (status %s)", ErrNotEscalatable, q.Status)
	}
	if left := w.Remaining(q); left > 0 {
		return fmt.Errorf("%w: available in %s", ErrTooEarly, core.FormatWait(left))
	}
	return nil
}

// Sender posts the escalation request.
type Sender interface {
	EscalateQuery(ctx context.Context, id domain.ID) error
}

// Escalator applies the window before escalating a query.
type Escalator struct {
	window Window
	sender Sender
	log    zerolog.Logger
}

// NewEscalator creates an escalator.
func NewEscalator(window Window, sender Sender, logger zerolog.Logger) *Escalator {
	return &Escalator{window: window, sender: sender, log: core.ComponentLogger(logger, "escalation")}
}

// Escalate rejects q locally when the window does not allow it, otherwise
// asks the service. The new status is visible only after a refetch.
func (e *Escalator) Escalate(ctx context.Context, q domain.Query) error {
	if err := e.window.Check(q); err != nil {
		e.log.Debug().Err(err).Str("query", q.ID.String()).Msg("escalation rejected")
		return err
	}
	if err := e.sender.EscalateQuery(ctx, q.ID); err != nil {
		return fmt.Errorf("failed to escalate query %s: %w", q.ID, err)
	}
	e.log.Info().Str("query", q.ID.String()).Msg("query escalated")
	return nil
}
