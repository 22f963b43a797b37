package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"upi-gateway/domain"
	"upi-gateway/internal/db"
	"upi-gateway/internal/lifecycle"
	"upi-gateway/internal/matcher"
)

const noteAttempts = 3

type Service interface {
	CreateKey(ctx context.Context, input CreateKeyInput) (string, error)
	SetWebhook(ctx context.Context, key, webhook string) error
	DeleteWebhook(ctx context.Context, key string) error
	CreateRequest(ctx context.Context, key string, amount *string) (*CreatedRequest, error)
	GetRequest(ctx context.Context, key, id string) (*RequestView, error)
	CancelRequest(ctx context.Context, key, id string) error
	ExpireRequest(ctx context.Context, key, id string) error
	Confirm(ctx context.Context, key, note string, amount *string) error
	ListRequests(ctx context.Context, key string, page int) ([]domain.RequestSummary, error)
}

type service struct {
	repo    db.Repository
	machine *lifecycle.Machine
	matcher *matcher.Matcher
	now     func() time.Time
	newKey  func() (string, error)
	newNote func() (string, error)
}

func NewService(repo db.Repository, machine *lifecycle.Machine) Service {
	return &service{
		repo:    repo,
		machine: machine,
		matcher: matcher.New(repo, machine),
		now:     time.Now,
		newKey:  domain.NewMerchantKey,
		newNote: domain.NewNoteToken,
	}
}

// merchant resolves a key with a storage read on every call, so a freshly
// registered or updated merchant is visible immediately.
func (s *service) merchant(ctx context.Context, key string) (*domain.Merchant, error) {
	if key == "" {
		return nil, domain.ErrInvalidKey
	}
	m, err := s.repo.MerchantByKey(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, domain.ErrInvalidKey
		}
		return nil, fmt.Errorf("could not load merchant: %w", err)
	}
	return m, nil
}

func (s *service) CreateKey(ctx context.Context, input CreateKeyInput) (string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if len(input.VPA) < 3 || !strings.Contains(input.VPA, "@") {
		return "", fmt.Errorf("%w: vpa must look like name@bank", domain.ErrInvalidInput)
	}
	if input.Webhook != nil {
		if err := validateWebhook(*input.Webhook); err != nil {
			return "", err
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	for range noteAttempts {
		key, err := s.newKey()
		if err != nil {
			return "", fmt.Errorf("could not generate merchant key: %w", err)
		}
		m := &domain.Merchant{
			ID:       uuid.NewString(),
			Name:     name,
			VPA:      input.VPA,
			Currency: currency,
			Key:      key,
			Webhook:  input.Webhook,
		}
		err = s.repo.CreateMerchant(ctx, m)
		if errors.Is(err, db.ErrDuplicate) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("could not create merchant: %w", err)
		}
		log.Printf("[INFO] Merchant registered: %s", m.ID)
		return m.Key, nil
	}
	return "", fmt.Errorf("could not allocate a unique merchant key")
}

func (s *service) SetWebhook(ctx context.Context, key, webhook string) error {
	if err := validateWebhook(webhook); err != nil {
		return err
	}
	m, err := s.merchant(ctx, key)
	if err != nil {
		return err
	}
	return s.repo.SetWebhook(ctx, m.ID, &webhook)
}

func (s *service) DeleteWebhook(ctx context.Context, key string) error {
	m, err := s.merchant(ctx, key)
	if err != nil {
		return err
	}
	return s.repo.SetWebhook(ctx, m.ID, nil)
}

func (s *service) CreateRequest(ctx context.Context, key string, amount *string) (*CreatedRequest, error) {
	if amount != nil && *amount == "" {
		amount = nil
	}
	if amount != nil {
		if _, err := domain.ParseAmount(*amount); err != nil {
			return nil, err
		}
	}

	m, err := s.merchant(ctx, key)
	if err != nil {
		return nil, err
	}

	// Note uniqueness is enforced by storage; a collision just means another
	// draw.
	for range noteAttempts {
		note, err := s.newNote()
		if err != nil {
			return nil, fmt.Errorf("could not generate note token: %w", err)
		}
		req := &domain.PaymentRequest{
			ID:         uuid.NewString(),
			MerchantID: m.ID,
			Amount:     amount,
			Note:       note,
			Status:     domain.StatusPending,
			CreatedAt:  s.now().UTC(),
		}
		err = s.repo.CreateRequest(ctx, req)
		if errors.Is(err, db.ErrDuplicate) {
			log.Printf("[WARN] Note collision for merchant %s, regenerating", m.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not create request: %w", err)
		}

		return &CreatedRequest{ID: req.ID, Note: req.Note, URI: req.URI(m)}, nil
	}
	return nil, fmt.Errorf("could not allocate a unique note token")
}

func (s *service) GetRequest(ctx context.Context, key, id string) (*RequestView, error) {
	m, err := s.merchant(ctx, key)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.RequestForMerchant(ctx, m.ID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("could not load request: %w", err)
	}

	return &RequestView{
		ID:        req.ID,
		Amount:    req.Amount,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
		URI:       req.URI(m),
	}, nil
}

func (s *service) CancelRequest(ctx context.Context, key, id string) error {
	return s.settle(ctx, key, id, domain.StatusCancelled)
}

func (s *service) ExpireRequest(ctx context.Context, key, id string) error {
	return s.settle(ctx, key, id, domain.StatusExpired)
}

func (s *service) settle(ctx context.Context, key, id string, to domain.Status) error {
	m, err := s.merchant(ctx, key)
	if err != nil {
		return err
	}

	req, err := s.repo.RequestForMerchant(ctx, m.ID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("could not load request: %w", err)
	}
	if req.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}

	_, err = s.machine.Transition(ctx, m.ID, req.ID, to)
	return err
}

func (s *service) Confirm(ctx context.Context, key, note string, amount *string) error {
	m, err := s.merchant(ctx, key)
	if err != nil {
		return err
	}

	res, err := s.matcher.Match(ctx, matcher.Candidate{MerchantID: m.ID, Note: note, Amount: amount})
	if err != nil {
		return err
	}
	log.Printf("[INFO] Request %s confirmed", res.RequestID)
	return nil
}

func (s *service) ListRequests(ctx context.Context, key string, page int) ([]domain.RequestSummary, error) {
	m, err := s.merchant(ctx, key)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	reqs, err := s.repo.ListRequests(ctx, m.ID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("could not list requests: %w", err)
	}

	out := make([]domain.RequestSummary, 0, len(reqs))
	for i := range reqs {
		out = append(out, reqs[i].Summary())
	}
	return out, nil
}

func validateWebhook(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhook must be an absolute http(s) url", domain.ErrInvalidInput)
	}
	return nil
}
