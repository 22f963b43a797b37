package db

import (
	"context"
	"errors"
	"time"

	"upi-gateway/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository is the storage collaborator of the gateway. TransitionStatus is
// the only way a request's status changes: it must be a single conditional
// update guarded on the pending state and report whether a row changed.
type Repository interface {
	CreateMerchant(ctx context.Context, m *domain.Merchant) error
	MerchantByKey(ctx context.Context, key string) (*domain.Merchant, error)
	MerchantByID(ctx context.Context, id string) (*domain.Merchant, error)
	SetWebhook(ctx context.Context, merchantID string, webhook *string) error

	CreateRequest(ctx context.Context, r *domain.PaymentRequest) error
	RequestByID(ctx context.Context, id string) (*domain.PaymentRequest, error)
	RequestForMerchant(ctx context.Context, merchantID, id string) (*domain.PaymentRequest, error)
	RequestByNote(ctx context.Context, merchantID, note string) (*domain.PaymentRequest, error)
	ListRequests(ctx context.Context, merchantID string, limit, offset int) ([]domain.PaymentRequest, error)
	TransitionStatus(ctx context.Context, merchantID, id string, to domain.Status) (bool, error)
	PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRequest, error)

	Close()
}
