package cache

import (
	"context"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"upi-gateway/domain"
	"upi-gateway/internal/lifecycle"
)

const (
	StatusChannel = "requests:status"

	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

// Publisher is the local fan-out the bus feeds remote changes into.
type Publisher interface {
	Publish(requestID string, status domain.Status)
}

type statusMessage struct {
	Origin    string        `json:"origin"`
	RequestID string        `json:"requestId"`
	Status    domain.Status `json:"status"`
}

// StatusBus relays committed transitions between API instances so a stream
// opened on one instance is pushed a change committed on another.
type StatusBus struct {
	ps      PubSub
	local   Publisher
	channel string
	origin  string
	outbox  chan statusMessage
}

func NewStatusBus(ps PubSub, local Publisher) *StatusBus {
	return &StatusBus{
		ps:      ps,
		local:   local,
		channel: StatusChannel,
		origin:  uuid.NewString(),
		outbox:  make(chan statusMessage, outboxSize),
	}
}

// OnTransition queues the change for other instances and returns at once;
// Run publishes it. When the outbox is full the message is dropped. The
// local hub is expected to be a separate sink, so messages from this origin
// are skipped on the way back in.
func (b *StatusBus) OnTransition(_ context.Context, ev lifecycle.Event) {
	msg := statusMessage{
		Origin:    b.origin,
		RequestID: ev.RequestID,
		Status:    ev.To,
	}
	select {
	case b.outbox <- msg:
	default:
		log.Printf("[WARN] Status outbox full, dropping status for %s", ev.RequestID)
	}
}

func (b *StatusBus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			body, err := sonic.Marshal(msg)
			if err != nil {
				log.Printf("[ERROR] Could not encode status message for %s: %v", msg.RequestID, err)
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = b.ps.Publish(pubCtx, b.channel, body)
			cancel()
			if err != nil {
				log.Printf("[WARN] Could not publish status for %s: %v", msg.RequestID, err)
			}
		}
	}
}

// Run publishes queued local changes and relays remote messages into the
// local publisher until ctx is done.
func (b *StatusBus) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.publishLoop(ctx)

	msgs, closeSub, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer func() { _ = closeSub() }()

	log.Printf("[INFO] Status bus listening on %s", b.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			var msg statusMessage
			if err := sonic.Unmarshal(raw, &msg); err != nil {
				log.Printf("[WARN] Ignoring malformed status message: %v", err)
				continue
			}
			if msg.Origin == b.origin || msg.RequestID == "" {
				continue
			}
			b.local.Publish(msg.RequestID, msg.Status)
		}
	}
}
