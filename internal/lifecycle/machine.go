// Package lifecycle owns the only code path that changes a payment request's
// status. Every transition leaves pending through one guarded storage update,
// and only a transition that actually changed a row is announced to sinks.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"upi-gateway/domain"
)

// Store is the slice of storage the machine needs.
type Store interface {
	TransitionStatus(ctx context.Context, merchantID, id string, to domain.Status) (bool, error)
}

// Event describes one committed transition.
type Event struct {
	ID         string
	RequestID  string
	MerchantID string
	From       domain.Status
	To         domain.Status
	At         time.Time
}

// Sink receives committed transitions. Implementations must not block: they
// run on the caller's goroutine after the update has already committed.
type Sink interface {
	OnTransition(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) OnTransition(ctx context.Context, ev Event) { f(ctx, ev) }

type Machine struct {
	store Store
	sinks []Sink
	now   func() time.Time
}

func NewMachine(store Store, sinks ...Sink) *Machine {
	return &Machine{
		store: store,
		sinks: sinks,
		now:   time.Now,
	}
}

// Subscribe adds a sink. It is meant for wiring at startup, before traffic.
func (m *Machine) Subscribe(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Transition moves request id of merchantID from pending to the terminal
// status to. It returns domain.ErrAlreadyTerminal when the guarded update
// changed nothing, which covers both an already-settled request and a lost
// race against a concurrent transition.
func (m *Machine) Transition(ctx context.Context, merchantID, id string, to domain.Status) (Event, error) {
	if !to.Terminal() {
		return Event{}, fmt.Errorf("%w: cannot transition to %s", domain.ErrInvalidInput, to)
	}

	changed, err := m.store.TransitionStatus(ctx, merchantID, id, to)
	if err != nil {
		return Event{}, fmt.Errorf("could not transition request %s: %w", id, err)
	}
	if !changed {
		return Event{}, domain.ErrAlreadyTerminal
	}

	ev := Event{
		ID:         uuid.NewString(),
		RequestID:  id,
		MerchantID: merchantID,
		From:       domain.StatusPending,
		To:         to,
		At:         m.now().UTC(),
	}

	log.Printf("[INFO] Request %s moved %s -> %s", id, ev.From, ev.To)

	// The transition is committed; sinks observe it but cannot undo it.
	notifyCtx := context.WithoutCancel(ctx)
	for _, s := range m.sinks {
		s.OnTransition(notifyCtx, ev)
	}

	return ev, nil
}
