package adapter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"

	"github.com/bytedance/sonic"

	"upi-gateway/pkg/client"
)

type Outcome int

const (
	Ignored Outcome = iota
	NoKey
	Forwarded
	AlreadySettled
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case NoKey:
		return "no_key"
	case Forwarded:
		return "forwarded"
	case AlreadySettled:
		return "already_settled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Sender is the gateway call the forwarder makes. *client.Client implements it.
type Sender interface {
	SetKey(key string)
	SendUpdate(ctx context.Context, note, amount string) (client.Ack, error)
}

type KeySource interface {
	Key() (string, error)
}

// Forwarder relays matching notifications to the gateway once each, without
// retry or queueing.
type Forwarder struct {
	sender Sender
	keys   KeySource
	source string
}

func NewForwarder(sender Sender, keys KeySource, source string) *Forwarder {
	if source == "" {
		source = DefaultSource
	}
	return &Forwarder{sender: sender, keys: keys, source: source}
}

// Handle forwards n when it comes from the trusted app and carries a note.
// A gateway rejection is reported as Rejected with the error.
func (f *Forwarder) Handle(ctx context.Context, n Notification) (Outcome, error) {
	if n.App != f.source || n.Text == "" {
		return Ignored, nil
	}

	key, err := f.keys.Key()
	if err != nil {
		return NoKey, err
	}
	if key == "" {
		return NoKey, nil
	}

	// A missing amount is sent as absent, not as a mismatch.
	amount, _ := ExtractAmount(n.Title)

	f.sender.SetKey(key)
	ack, err := f.sender.SendUpdate(ctx, n.Text, amount)
	if err != nil {
		return Rejected, err
	}
	if ack.AlreadySettled {
		return AlreadySettled, nil
	}
	return Forwarded, nil
}

// Stats counts the outcomes of a Listen run.
type Stats map[Outcome]int

// Listen handles newline-delimited JSON notifications from r until EOF or
// ctx ends. Malformed lines are logged and skipped.
func (f *Forwarder) Listen(ctx context.Context, r io.Reader) (Stats, error) {
	stats := Stats{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var n Notification
		if err := sonic.Unmarshal(line, &n); err != nil {
			log.Printf("[WARN] Skipping malformed notification: %v", err)
			continue
		}

		outcome, err := f.Handle(ctx, n)
		stats[outcome]++
		switch {
		case err != nil && errors.Is(err, client.ErrInvalidKey):
			log.Printf("[ERROR] Stored key was rejected by the gateway, run login again")
		case err != nil:
			log.Printf("[ERROR] Could not forward note %q: %v", n.Text, err)
		case outcome == NoKey:
			log.Printf("[WARN] No key stored, dropping notification")
		case outcome == Forwarded || outcome == AlreadySettled:
			log.Printf("[INFO] Note %q %s", n.Text, outcome)
		}
	}
	return stats, scanner.Err()
}
