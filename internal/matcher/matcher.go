// Package matcher ties a confirmation candidate (note token plus an optional
// observed amount) back to exactly one pending request of a merchant.
//
// Amount policy: when the request carries a fixed amount and the candidate
// reports one, they must be numerically equal or the candidate does not
// match. A candidate without an amount still matches a fixed-amount request,
// and an open-amount request accepts any reported amount.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"upi-gateway/domain"
	"upi-gateway/internal/db"
	"upi-gateway/internal/lifecycle"
)

type Finder interface {
	RequestByNote(ctx context.Context, merchantID, note string) (*domain.PaymentRequest, error)
}

type Transitioner interface {
	Transition(ctx context.Context, merchantID, id string, to domain.Status) (lifecycle.Event, error)
}

// Candidate is an unverified claim that a note was paid.
type Candidate struct {
	MerchantID string
	Note       string
	Amount     *string
}

// Result identifies the request a candidate resolved to.
type Result struct {
	RequestID   string
	PriorStatus domain.Status
}

type Matcher struct {
	finder  Finder
	machine Transitioner
}

func New(finder Finder, machine Transitioner) *Matcher {
	return &Matcher{finder: finder, machine: machine}
}

// Match returns domain.ErrNotFound when no request fits, and
// domain.ErrAlreadyTerminal (with the resolved Result) when the request was
// settled before or concurrently with this call.
func (m *Matcher) Match(ctx context.Context, c Candidate) (Result, error) {
	if c.Note == "" {
		return Result{}, domain.ErrNotFound
	}
	if c.Amount != nil && *c.Amount != "" {
		if _, err := domain.ParseAmount(*c.Amount); err != nil {
			return Result{}, err
		}
	}

	req, err := m.finder.RequestByNote(ctx, c.MerchantID, c.Note)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{}, domain.ErrNotFound
		}
		return Result{}, fmt.Errorf("could not look up note: %w", err)
	}

	if !amountMatches(req, c.Amount) {
		return Result{}, domain.ErrNotFound
	}

	res := Result{RequestID: req.ID, PriorStatus: req.Status}
	if req.Status.Terminal() {
		return res, domain.ErrAlreadyTerminal
	}

	if _, err := m.machine.Transition(ctx, c.MerchantID, req.ID, domain.StatusSuccess); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			return res, err
		}
		return Result{}, err
	}

	return res, nil
}

func amountMatches(req *domain.PaymentRequest, observed *string) bool {
	if req.OpenAmount() || observed == nil || *observed == "" {
		return true
	}
	return domain.AmountsEqual(*req.Amount, *observed)
}
