package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"upi-gateway/domain"
	"upi-gateway/internal/db"
	"upi-gateway/internal/notifier"
)

type fakeReader struct {
	mu     sync.Mutex
	status domain.Status
	err    error
	reads  int
}

func (f *fakeReader) RequestByID(_ context.Context, id string) (*domain.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PaymentRequest{ID: id, Status: f.status}, nil
}

func (f *fakeReader) set(s domain.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

type recordingEmitter struct {
	mu    sync.Mutex
	snaps []Snapshot
	pings int
	fail  error
	got   chan Snapshot
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{got: make(chan Snapshot, 16)}
}

func (e *recordingEmitter) Emit(s Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.snaps = append(e.snaps, s)
	e.got <- s
	return nil
}

func (e *recordingEmitter) Ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pings++
	return e.fail
}

func (e *recordingEmitter) all() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Snapshot(nil), e.snaps...)
}

func waitEmit(t *testing.T, e *recordingEmitter) Snapshot {
	t.Helper()
	select {
	case s := <-e.got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for emission")
	}
	return Snapshot{}
}

func runAsync(ctx context.Context, s *Session, id string, out Emitter) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, id, out) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not finish")
	}
	return nil
}

func TestSession_PendingThenSuccessByPush(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()
	s := NewSession(reader, hub, time.Hour)

	done := runAsync(context.Background(), s, "r1", out)

	if got := waitEmit(t, out); got != SnapshotOf(domain.StatusPending) {
		t.Fatalf("Expected pending snapshot first, got %+v", got)
	}

	reader.set(domain.StatusSuccess)
	hub.Publish("r1", domain.StatusSuccess)

	if got := waitEmit(t, out); got != SnapshotOf(domain.StatusSuccess) {
		t.Fatalf("Expected success, got %+v", got)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(out.all()) != 2 {
		t.Errorf("Expected exactly 2 emissions, got %v", out.all())
	}
	if hub.Len() != 0 {
		t.Errorf("Subscription leaked")
	}
}

func TestSession_PollingFallback(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()
	s := NewSession(reader, hub, 20*time.Millisecond)

	done := runAsync(context.Background(), s, "r1", out)
	waitEmit(t, out)

	// No push: the ticker must pick up the change.
	reader.set(domain.StatusExpired)

	if got := waitEmit(t, out); got != SnapshotOf(domain.StatusExpired) {
		t.Fatalf("Expected expired, got %+v", got)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestSession_IdenticalPendingIsCoalesced(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()
	s := NewSession(reader, hub, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s, "r1", out)
	waitEmit(t, out)

	time.Sleep(80 * time.Millisecond)
	hub.Publish("r1", domain.StatusPending)
	time.Sleep(20 * time.Millisecond)
	cancel()
	waitDone(t, done)

	if n := len(out.all()); n != 1 {
		t.Errorf("Expected a single pending emission, got %d", n)
	}
	out.mu.Lock()
	pings := out.pings
	out.mu.Unlock()
	if pings == 0 {
		t.Errorf("Expected keep-alive pings while pending")
	}
}

func TestSession_AlreadyTerminalEmitsOnce(t *testing.T) {
	reader := &fakeReader{status: domain.StatusCancelled}
	hub := notifier.NewHub()
	out := newRecordingEmitter()

	if err := NewSession(reader, hub, time.Hour).Run(context.Background(), "r1", out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	snaps := out.all()
	if len(snaps) != 1 || snaps[0] != SnapshotOf(domain.StatusCancelled) {
		t.Errorf("Expected one cancelled emission, got %v", snaps)
	}
}

func TestSession_UnknownRequest(t *testing.T) {
	reader := &fakeReader{err: db.ErrNotFound}
	hub := notifier.NewHub()
	out := newRecordingEmitter()

	if err := NewSession(reader, hub, time.Hour).Run(context.Background(), "nope", out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	snaps := out.all()
	if len(snaps) != 1 || snaps[0] != NotFound {
		t.Errorf("Expected one not_found emission, got %v", snaps)
	}
	if hub.Len() != 0 {
		t.Errorf("Expected no subscription left behind, got %d", hub.Len())
	}
}

func TestSession_StorageErrorIsDistinguishable(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()
	s := NewSession(reader, hub, 10*time.Millisecond)

	done := runAsync(context.Background(), s, "r1", out)
	waitEmit(t, out)

	reader.mu.Lock()
	reader.err = errors.New("connection reset")
	reader.mu.Unlock()

	got := waitEmit(t, out)
	if got != Failed || got.Code != CodeError {
		t.Fatalf("Expected error emission, got %+v", got)
	}
	waitDone(t, done)
}

func TestSession_ClientDisconnectReleases(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()
	s := NewSession(reader, hub, 10*time.Millisecond)

	done := runAsync(context.Background(), s, "r1", out)
	waitEmit(t, out)

	gone := errors.New("broken pipe")
	out.mu.Lock()
	out.fail = gone
	out.mu.Unlock()

	if err := waitDone(t, done); !errors.Is(err, gone) {
		t.Errorf("Expected broken pipe, got %v", err)
	}
	if hub.Len() != 0 {
		t.Errorf("Subscription leaked after disconnect")
	}
}

func TestSession_ContextCancelReleases(t *testing.T) {
	reader := &fakeReader{status: domain.StatusPending}
	hub := notifier.NewHub()
	out := newRecordingEmitter()

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, NewSession(reader, hub, time.Hour), "r1", out)
	waitEmit(t, out)
	if hub.Subscribers("r1") != 1 {
		t.Fatalf("Expected an open subscription")
	}

	cancel()
	waitDone(t, done)
	if hub.Len() != 0 {
		t.Errorf("Subscription leaked after cancel")
	}
}
