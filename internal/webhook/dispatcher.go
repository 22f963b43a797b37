// Package webhook notifies merchants of terminal transitions. Delivery is a
// single fire-and-forget POST per transition: failures are logged and never
// reach the code path that committed the transition.
//
// Transitions are handed to a bounded queue. When every worker is busy and
// the queue is full, the committing goroutine waits up to a short enqueue
// timeout for room; after that the webhook is dropped and logged, with no
// delivery attempt made.
package webhook

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"upi-gateway/domain"
	"upi-gateway/internal/db"
	"upi-gateway/internal/lifecycle"
)

type MerchantLookup interface {
	MerchantByID(ctx context.Context, id string) (*domain.Merchant, error)
}

const defaultEnqueueWait = 100 * time.Millisecond

type job struct {
	ev lifecycle.Event
}

// Dispatcher queues committed transitions and delivers them from a fixed set
// of workers.
type Dispatcher struct {
	merchants MerchantLookup
	client    Client
	timeout   time.Duration
	// enqueueWait bounds how long OnTransition waits on a full queue.
	enqueueWait time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(workerCount, queueSize int, timeout time.Duration, merchants MerchantLookup, client Client) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &Dispatcher{
		merchants:   merchants,
		client:      client,
		timeout:     timeout,
		enqueueWait: defaultEnqueueWait,
		queue:       make(chan job, queueSize),
	}

	for i := 1; i <= workerCount; i++ {
		d.wg.Add(1)
		go d.start(i)
	}

	return d
}

// OnTransition enqueues ev. On a full queue it waits at most enqueueWait
// before dropping the event.
func (d *Dispatcher) OnTransition(_ context.Context, ev lifecycle.Event) {
	if _, ok := domain.WebhookTypeFor(ev.To); !ok {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Printf("[WARN] Dispatcher closed, dropping webhook for request %s", ev.RequestID)
		return
	}

	select {
	case d.queue <- job{ev: ev}:
		return
	default:
	}

	timer := time.NewTimer(d.enqueueWait)
	defer timer.Stop()
	select {
	case d.queue <- job{ev: ev}:
	case <-timer.C:
		log.Printf("[WARN] Webhook queue full after %s, dropping webhook for request %s", d.enqueueWait, ev.RequestID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) start(worker int) {
	defer d.wg.Done()
	for j := range d.queue {
		d.process(worker, j.ev)
	}
}

func (d *Dispatcher) process(worker int, ev lifecycle.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	m, err := d.merchants.MerchantByID(ctx, ev.MerchantID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("[Worker %d] Could not load merchant %s: %v", worker, ev.MerchantID, err)
		}
		return
	}
	if !m.HasWebhook() {
		return
	}

	if err := d.Dispatch(ctx, *m.Webhook, ev); err != nil {
		log.Printf("[Worker %d] Webhook for request %s failed: %v", worker, ev.RequestID, err)
		return
	}
	log.Printf("[Worker %d] Webhook delivered for request %s", worker, ev.RequestID)
}

// Dispatch makes exactly one delivery attempt of ev to endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoint string, ev lifecycle.Event) error {
	typ, ok := domain.WebhookTypeFor(ev.To)
	if !ok {
		return nil
	}

	return d.client.Send(ctx, endpoint, domain.WebhookEvent{
		Type:      typ,
		WebhookID: uuid.NewString(),
		RequestID: ev.RequestID,
		Status:    ev.To,
		Timestamp: ev.At.UnixMilli(),
	})
}
