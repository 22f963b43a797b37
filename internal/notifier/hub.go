// Package notifier fans committed status changes out to the streaming
// sessions currently watching a request.
package notifier

import (
	"context"
	"sync"

	"upi-gateway/domain"
	"upi-gateway/internal/lifecycle"
)

// Hub keeps, per request id, the set of open subscriptions. Each subscription
// holds at most the latest undelivered status, so a slow reader never stalls
// Publish and never sees a stale value behind a newer one.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch chan domain.Status
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers interest in requestID. The returned cancel func must be
// called once the caller stops reading; it is safe to call more than once.
func (h *Hub) Subscribe(requestID string) (<-chan domain.Status, func()) {
	s := &subscription{ch: make(chan domain.Status, 1)}

	h.mu.Lock()
	set, ok := h.subs[requestID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[requestID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[requestID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, requestID)
				}
			}
		})
	}
	return s.ch, cancel
}

// Publish delivers status to every subscriber of requestID without blocking.
func (h *Hub) Publish(requestID string, status domain.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[requestID] {
		select {
		case s.ch <- status:
		default:
			// Replace the pending value with the newer one.
			select {
			case <-s.ch:
			default:
			}
			s.ch <- status
		}
	}
}

// OnTransition makes the hub a lifecycle sink.
func (h *Hub) OnTransition(_ context.Context, ev lifecycle.Event) {
	h.Publish(ev.RequestID, ev.To)
}

// Subscribers returns the number of open subscriptions for requestID.
func (h *Hub) Subscribers(requestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[requestID])
}

// Len returns the number of request ids with at least one subscriber.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
