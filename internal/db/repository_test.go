package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"upi-gateway/domain"
)

// backends returns every Repository implementation that can run in this
// environment. Postgres joins only when TEST_DATABASE_URL is set.
func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	t.Helper()

	out := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("Failed to create SQLiteRepository: %v", err)
			}
			t.Cleanup(repo.Close)
			return repo
		},
	}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		out["postgres"] = func(t *testing.T) Repository {
			repo, err := NewPostgresRepository(context.Background(), dsn, 10)
			if err != nil {
				t.Fatalf("Failed to create PostgresRepository: %v", err)
			}
			t.Cleanup(repo.Close)
			return repo
		}
	}

	return out
}

func seedMerchant(t *testing.T, repo Repository) *domain.Merchant {
	t.Helper()
	m := &domain.Merchant{
		ID:       uuid.NewString(),
		Name:     "Test Merchant",
		VPA:      "test@upi",
		Currency: domain.DefaultCurrency,
		Key:      uuid.NewString(),
	}
	if err := repo.CreateMerchant(context.Background(), m); err != nil {
		t.Fatalf("Failed to seed merchant: %v", err)
	}
	return m
}

func seedRequest(t *testing.T, repo Repository, merchantID, note string, amount *string, createdAt time.Time) *domain.PaymentRequest {
	t.Helper()
	req := &domain.PaymentRequest{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Amount:     amount,
		Note:       note,
		Status:     domain.StatusPending,
		CreatedAt:  createdAt,
	}
	if err := repo.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("Failed to seed request: %v", err)
	}
	return req
}

func strPtr(s string) *string { return &s }

func TestRepository_Merchants(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			m := seedMerchant(t, repo)

			got, err := repo.MerchantByKey(ctx, m.Key)
			if err != nil {
				t.Fatalf("MerchantByKey failed: %v", err)
			}
			if got.ID != m.ID || got.VPA != m.VPA || got.Webhook != nil {
				t.Errorf("Unexpected merchant: %+v", got)
			}

			if _, err := repo.MerchantByKey(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for unknown key, got %v", err)
			}

			dup := *m
			dup.ID = uuid.NewString()
			if err := repo.CreateMerchant(ctx, &dup); !errors.Is(err, ErrDuplicate) {
				t.Errorf("Expected ErrDuplicate for reused key, got %v", err)
			}

			if err := repo.SetWebhook(ctx, m.ID, strPtr("https://example.com/hook")); err != nil {
				t.Fatalf("SetWebhook failed: %v", err)
			}
			got, _ = repo.MerchantByID(ctx, m.ID)
			if !got.HasWebhook() || *got.Webhook != "https://example.com/hook" {
				t.Errorf("Expected webhook to be set, got %+v", got.Webhook)
			}

			if err := repo.SetWebhook(ctx, m.ID, nil); err != nil {
				t.Fatalf("SetWebhook(nil) failed: %v", err)
			}
			got, _ = repo.MerchantByID(ctx, m.ID)
			if got.HasWebhook() {
				t.Error("Expected webhook to be cleared")
			}
		})
	}
}

func TestRepository_NoteUniquePerMerchant(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			a := seedMerchant(t, repo)
			b := seedMerchant(t, repo)
			now := time.Now().UTC()

			seedRequest(t, repo, a.ID, "samenote01", nil, now)

			dup := &domain.PaymentRequest{ID: uuid.NewString(), MerchantID: a.ID, Note: "samenote01", CreatedAt: now}
			if err := repo.CreateRequest(context.Background(), dup); !errors.Is(err, ErrDuplicate) {
				t.Errorf("Expected ErrDuplicate for repeated note, got %v", err)
			}

			// The same token under another merchant is fine.
			seedRequest(t, repo, b.ID, "samenote01", nil, now)
		})
	}
}

func TestRepository_Lookups(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			m := seedMerchant(t, repo)
			other := seedMerchant(t, repo)
			req := seedRequest(t, repo, m.ID, "lookup0001", strPtr("50.00"), time.Now().UTC())

			got, err := repo.RequestByNote(ctx, m.ID, "lookup0001")
			if err != nil {
				t.Fatalf("RequestByNote failed: %v", err)
			}
			if got.ID != req.ID || got.Amount == nil || *got.Amount != "50.00" {
				t.Errorf("Unexpected request: %+v", got)
			}

			if _, err := repo.RequestByNote(ctx, other.ID, "lookup0001"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected note lookup to be merchant-scoped, got %v", err)
			}
			if _, err := repo.RequestForMerchant(ctx, other.ID, req.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected id lookup to be merchant-scoped, got %v", err)
			}
			if _, err := repo.RequestByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
			}
		})
	}
}

func TestRepository_TransitionStatus(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			m := seedMerchant(t, repo)
			other := seedMerchant(t, repo)
			req := seedRequest(t, repo, m.ID, "transit001", nil, time.Now().UTC())

			changed, err := repo.TransitionStatus(ctx, other.ID, req.ID, domain.StatusSuccess)
			if err != nil || changed {
				t.Fatalf("Expected wrong merchant to change nothing, got changed=%v err=%v", changed, err)
			}

			changed, err = repo.TransitionStatus(ctx, m.ID, req.ID, domain.StatusCancelled)
			if err != nil || !changed {
				t.Fatalf("Expected first transition to change the row, got changed=%v err=%v", changed, err)
			}

			changed, err = repo.TransitionStatus(ctx, m.ID, req.ID, domain.StatusSuccess)
			if err != nil || changed {
				t.Fatalf("Expected terminal request to stay put, got changed=%v err=%v", changed, err)
			}

			got, _ := repo.RequestByID(ctx, req.ID)
			if got.Status != domain.StatusCancelled {
				t.Errorf("Expected cancelled, got %s", got.Status)
			}
		})
	}
}

func TestRepository_TransitionStatusConcurrent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			m := seedMerchant(t, repo)
			req := seedRequest(t, repo, m.ID, "race000001", nil, time.Now().UTC())

			var wins atomic.Int32
			var wg sync.WaitGroup
			targets := []domain.Status{domain.StatusSuccess, domain.StatusCancelled, domain.StatusExpired}
			for i := range 30 {
				wg.Add(1)
				go func(to domain.Status) {
					defer wg.Done()
					changed, err := repo.TransitionStatus(context.Background(), m.ID, req.ID, to)
					if err != nil {
						t.Errorf("TransitionStatus failed: %v", err)
						return
					}
					if changed {
						wins.Add(1)
					}
				}(targets[i%len(targets)])
			}
			wg.Wait()

			if wins.Load() != 1 {
				t.Errorf("Expected exactly one winning transition, got %d", wins.Load())
			}
		})
	}
}

func TestRepository_ListRequests(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			m := seedMerchant(t, repo)
			base := time.Now().UTC().Add(-time.Hour)

			var ids []string
			for i := range 5 {
				note := "list00000" + string(rune('a'+i))
				req := seedRequest(t, repo, m.ID, note, nil, base.Add(time.Duration(i)*time.Minute))
				ids = append(ids, req.ID)
			}

			page, err := repo.ListRequests(ctx, m.ID, 2, 0)
			if err != nil {
				t.Fatalf("ListRequests failed: %v", err)
			}
			if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
				t.Errorf("Expected newest first [%s %s], got %+v", ids[4], ids[3], page)
			}

			page, _ = repo.ListRequests(ctx, m.ID, 2, 4)
			if len(page) != 1 || page[0].ID != ids[0] {
				t.Errorf("Expected last page to hold the oldest request, got %+v", page)
			}

			page, _ = repo.ListRequests(ctx, m.ID, 2, 10)
			if len(page) != 0 {
				t.Errorf("Expected empty page past the end, got %d", len(page))
			}
		})
	}
}

func TestRepository_PendingOlderThan(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			m := seedMerchant(t, repo)
			now := time.Now().UTC()

			old := seedRequest(t, repo, m.ID, "old0000001", nil, now.Add(-2*time.Hour))
			done := seedRequest(t, repo, m.ID, "old0000002", nil, now.Add(-2*time.Hour))
			seedRequest(t, repo, m.ID, "fresh00001", nil, now)

			if _, err := repo.TransitionStatus(ctx, m.ID, done.ID, domain.StatusSuccess); err != nil {
				t.Fatalf("TransitionStatus failed: %v", err)
			}

			got, err := repo.PendingOlderThan(ctx, now.Add(-time.Hour), 10)
			if err != nil {
				t.Fatalf("PendingOlderThan failed: %v", err)
			}
			if len(got) != 1 || got[0].ID != old.ID {
				t.Errorf("Expected only the stale pending request, got %+v", got)
			}
		})
	}
}
