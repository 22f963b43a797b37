package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"upi-gateway/domain"
)

// MemoryRepository is the in-process store used in tests and for local runs
// with STORAGE_DRIVER=memory. Values are copied in and out so callers never
// share state with the store.
type MemoryRepository struct {
	mu        sync.RWMutex
	merchants map[string]domain.Merchant
	byKey     map[string]string
	requests  map[string]memRequest
	byNote    map[string]string
	seq       int64
}

type memRequest struct {
	req domain.PaymentRequest
	seq int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		merchants: make(map[string]domain.Merchant),
		byKey:     make(map[string]string),
		requests:  make(map[string]memRequest),
		byNote:    make(map[string]string),
	}
}

func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) CreateMerchant(_ context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.merchants[m.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byKey[m.Key]; ok {
		return ErrDuplicate
	}
	r.merchants[m.ID] = copyMerchant(*m)
	r.byKey[m.Key] = m.ID
	return nil
}

func (r *MemoryRepository) MerchantByKey(_ context.Context, key string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	m := copyMerchant(r.merchants[id])
	return &m, nil
}

func (r *MemoryRepository) MerchantByID(_ context.Context, id string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.merchants[id]
	if !ok {
		return nil, ErrNotFound
	}
	m = copyMerchant(m)
	return &m, nil
}

func (r *MemoryRepository) SetWebhook(_ context.Context, merchantID string, webhook *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.merchants[merchantID]
	if !ok {
		return ErrNotFound
	}
	m.Webhook = copyString(webhook)
	r.merchants[merchantID] = m
	return nil
}

func (r *MemoryRepository) CreateRequest(_ context.Context, req *domain.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.merchants[req.MerchantID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.requests[req.ID]; ok {
		return ErrDuplicate
	}
	noteKey := req.MerchantID + "\x00" + req.Note
	if _, ok := r.byNote[noteKey]; ok {
		return ErrDuplicate
	}

	r.seq++
	r.requests[req.ID] = memRequest{req: copyRequest(*req), seq: r.seq}
	r.byNote[noteKey] = req.ID
	return nil
}

func (r *MemoryRepository) RequestByID(_ context.Context, id string) (*domain.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mr, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	req := copyRequest(mr.req)
	return &req, nil
}

func (r *MemoryRepository) RequestForMerchant(ctx context.Context, merchantID, id string) (*domain.PaymentRequest, error) {
	req, err := r.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MerchantID != merchantID {
		return nil, ErrNotFound
	}
	return req, nil
}

func (r *MemoryRepository) RequestByNote(ctx context.Context, merchantID, note string) (*domain.PaymentRequest, error) {
	r.mu.RLock()
	id, ok := r.byNote[merchantID+"\x00"+note]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return r.RequestByID(ctx, id)
}

func (r *MemoryRepository) ListRequests(_ context.Context, merchantID string, limit, offset int) ([]domain.PaymentRequest, error) {
	r.mu.RLock()
	var all []memRequest
	for _, mr := range r.requests {
		if mr.req.MerchantID == merchantID {
			all = append(all, mr)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].req.CreatedAt.Equal(all[j].req.CreatedAt) {
			return all[i].req.CreatedAt.After(all[j].req.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}

	out := make([]domain.PaymentRequest, 0, len(all))
	for _, mr := range all {
		out = append(out, copyRequest(mr.req))
	}
	return out, nil
}

func (r *MemoryRepository) TransitionStatus(_ context.Context, merchantID, id string, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mr, ok := r.requests[id]
	if !ok || mr.req.MerchantID != merchantID || mr.req.Status != domain.StatusPending {
		return false, nil
	}
	mr.req.Status = to
	r.requests[id] = mr
	return true, nil
}

func (r *MemoryRepository) PendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.PaymentRequest, error) {
	r.mu.RLock()
	var out []domain.PaymentRequest
	for _, mr := range r.requests {
		if mr.req.Status == domain.StatusPending && mr.req.CreatedAt.Before(cutoff) {
			out = append(out, copyRequest(mr.req))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyMerchant(m domain.Merchant) domain.Merchant {
	m.Webhook = copyString(m.Webhook)
	return m
}

func copyRequest(req domain.PaymentRequest) domain.PaymentRequest {
	req.Amount = copyString(req.Amount)
	return req
}
