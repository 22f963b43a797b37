// Package expiry moves pending requests that outlived their TTL to expired,
// through the same guarded transition every other path uses.
package expiry

import (
	"context"
	"errors"
	"log"
	"time"

	"upi-gateway/domain"
	"upi-gateway/internal/lifecycle"
)

const defaultBatch = 100

type Source interface {
	PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRequest, error)
}

type Transitioner interface {
	Transition(ctx context.Context, merchantID, id string, to domain.Status) (lifecycle.Event, error)
}

type Sweeper struct {
	src      Source
	machine  Transitioner
	ttl      time.Duration
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewSweeper(src Source, machine Transitioner, ttl, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		src:      src,
		machine:  machine,
		ttl:      ttl,
		interval: interval,
		batch:    defaultBatch,
		now:      time.Now,
	}
}

// Enabled reports whether a TTL is configured.
func (s *Sweeper) Enabled() bool {
	return s.ttl > 0
}

// Run sweeps every interval until ctx is done. It returns immediately when
// no TTL is configured.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	log.Printf("[INFO] Expiry sweeper started: ttl=%s interval=%s", s.ttl, s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] Expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[ERROR] Expiry sweep failed: %v", err)
			}
		}
	}
}

// Sweep expires one batch of stale requests and returns how many it moved.
// Requests settled concurrently are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	cutoff := s.now().Add(-s.ttl)
	stale, err := s.src.PendingOlderThan(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, r := range stale {
		_, err := s.machine.Transition(ctx, r.MerchantID, r.ID, domain.StatusExpired)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrAlreadyTerminal):
		default:
			return expired, err
		}
	}

	if expired > 0 {
		log.Printf("[INFO] Expired %d stale requests", expired)
	}
	return expired, nil
}
