// Package stream drives a single status-watching session: one snapshot on
// open, one emission per change, and a final emission once the request
// settles. Changes arrive by push from the notifier; a periodic storage read
// bounds staleness when a push is missed.
package stream

import (
	"context"
	"errors"
	"log"
	"time"

	"upi-gateway/domain"
	"upi-gateway/internal/db"
)

const DefaultInterval = 5 * time.Second

const (
	CodeNotFound = -1
	CodeError    = -3
)

// Snapshot is what a client sees on each emission.
type Snapshot struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
}

func SnapshotOf(s domain.Status) Snapshot {
	return Snapshot{Status: s.String(), Code: int(s)}
}

var (
	NotFound = Snapshot{Status: "not_found", Code: CodeNotFound}
	Failed   = Snapshot{Status: "error", Code: CodeError}
)

// Final reports whether no emission can follow this one.
func (s Snapshot) Final() bool {
	if s.Code < 0 {
		return true
	}
	return domain.Status(s.Code).Terminal()
}

type Reader interface {
	RequestByID(ctx context.Context, id string) (*domain.PaymentRequest, error)
}

type Subscriber interface {
	Subscribe(requestID string) (<-chan domain.Status, func())
}

// Emitter writes to the client. An error means the client is gone.
type Emitter interface {
	Emit(s Snapshot) error
	Ping() error
}

type Session struct {
	reader   Reader
	hub      Subscriber
	interval time.Duration
}

func NewSession(reader Reader, hub Subscriber, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Session{reader: reader, hub: hub, interval: interval}
}

// Run blocks until the request settles, the client goes away, or ctx ends.
func (s *Session) Run(ctx context.Context, requestID string, out Emitter) error {
	// Subscribe before the first read so a change committed in between is
	// not lost.
	updates, cancel := s.hub.Subscribe(requestID)
	defer cancel()

	last := s.read(ctx, requestID)
	if err := out.Emit(last); err != nil {
		return err
	}
	if last.Final() {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		var next Snapshot
		select {
		case <-ctx.Done():
			return nil
		case status := <-updates:
			next = SnapshotOf(status)
		case <-ticker.C:
			next = s.read(ctx, requestID)
			if next == last {
				if err := out.Ping(); err != nil {
					return err
				}
				continue
			}
		}

		if next == last {
			continue
		}
		if err := out.Emit(next); err != nil {
			return err
		}
		if next.Final() {
			return nil
		}
		last = next
	}
}

func (s *Session) read(ctx context.Context, requestID string) Snapshot {
	req, err := s.reader.RequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return NotFound
		}
		if ctx.Err() == nil {
			log.Printf("[ERROR] Stream read failed for %s: %v", requestID, err)
		}
		return Failed
	}
	return SnapshotOf(req.Status)
}
