package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"upi-gateway/internal/db"
	"upi-gateway/internal/handler"
	"upi-gateway/internal/lifecycle"
	"upi-gateway/internal/notifier"
	"upi-gateway/internal/payments"
	"upi-gateway/internal/stream"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	repo := db.NewMemoryRepository()
	hub := notifier.NewHub()
	svc := payments.NewService(repo, lifecycle.NewMachine(repo, hub))
	h := handler.NewHandler(svc, stream.NewSession(repo, hub, time.Hour))

	srv := httptest.NewServer(handler.New(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RequestLifecycle(t *testing.T) {
	srv := newGateway(t)
	ctx := context.Background()
	c := New(srv.URL+"/", "")

	key, err := c.CreateKey(ctx, CreateKeyArgs{Name: "Chai", VPA: "chai@bank"})
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}
	c.SetKey(key)

	created, err := c.CreateRequest(ctx, "20.00")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	got, err := c.GetRequest(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != StatusPending || got.Amount == nil || *got.Amount != "20.00" {
		t.Errorf("Unexpected request: %+v", got)
	}

	ack, err := c.SendUpdate(ctx, created.Note, "20.00")
	if err != nil || ack.AlreadySettled {
		t.Fatalf("SendUpdate: %+v %v", ack, err)
	}
	ack, err = c.SendUpdate(ctx, created.Note, "20.00")
	if err != nil || !ack.AlreadySettled {
		t.Fatalf("Duplicate SendUpdate should be acknowledged as settled: %+v %v", ack, err)
	}

	list, err := c.ListRequests(ctx, 1)
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(list) != 1 || list[0].Status != StatusSuccess {
		t.Errorf("Unexpected listing: %+v", list)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := newGateway(t)
	ctx := context.Background()
	c := New(srv.URL, "not-a-key")

	if _, err := c.CreateRequest(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}

	key, _ := c.CreateKey(ctx, CreateKeyArgs{Name: "Shop", VPA: "shop@bank"})
	c.SetKey(key)

	if _, err := c.CancelRequest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var apiErr *APIError
	if _, err := c.CreateRequest(ctx, "1"); !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("Expected a 400 APIError, got %v", err)
	}
}

func TestClient_Webhooks(t *testing.T) {
	srv := newGateway(t)
	ctx := context.Background()
	c := New(srv.URL, "")

	key, _ := c.CreateKey(ctx, CreateKeyArgs{Name: "Shop", VPA: "shop@bank"})
	c.SetKey(key)

	if err := c.SetWebhook(ctx, "https://shop.example/hook"); err != nil {
		t.Errorf("SetWebhook failed: %v", err)
	}
	if err := c.DeleteWebhook(ctx); err != nil {
		t.Errorf("DeleteWebhook failed: %v", err)
	}
}

func TestClient_Watch(t *testing.T) {
	srv := newGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := New(srv.URL, "")

	key, _ := c.CreateKey(ctx, CreateKeyArgs{Name: "Shop", VPA: "shop@bank"})
	c.SetKey(key)
	created, err := c.CreateRequest(ctx, "")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	updates := make(chan Update, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, created.ID, func(u Update) { updates <- u })
	}()

	first := <-updates
	if first.Code != StatusPending {
		t.Fatalf("Expected pending first, got %+v", first)
	}

	if _, err := c.CancelRequest(ctx, created.ID); err != nil {
		t.Fatalf("CancelRequest failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	last := <-updates
	if last.Code != StatusCancelled || last.Status != "cancelled" {
		t.Errorf("Expected cancelled, got %+v", last)
	}
}

func TestClient_WatchUnknown(t *testing.T) {
	srv := newGateway(t)
	c := New(srv.URL, "")

	var got []Update
	if err := c.Watch(context.Background(), "nope", func(u Update) { got = append(got, u) }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if len(got) != 1 || got[0].Code != -1 {
		t.Errorf("Expected a single not_found update, got %+v", got)
	}
}
