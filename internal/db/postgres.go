package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"upi-gateway/domain"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS merchants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		vpa TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		api_key TEXT NOT NULL UNIQUE,
		webhook TEXT
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL REFERENCES merchants(id),
		amount TEXT,
		note TEXT NOT NULL,
		status SMALLINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (merchant_id, note)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_merchant_created ON requests (merchant_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_pending_created ON requests (created_at) WHERE status = 0;
`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, dsn string, maxConnections int) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid db config: %w", err)
	}

	config.MaxConns = int32(maxConnections)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("could not create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not migrate postgres: %w", err)
	}

	log.Printf("[INFO] Successfully connected to Postgres.")
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) CreateMerchant(ctx context.Context, m *domain.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, vpa, currency, api_key, webhook)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, m.ID, m.Name, m.VPA, m.Currency, m.Key, m.Webhook)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("could not save merchant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MerchantByKey(ctx context.Context, key string) (*domain.Merchant, error) {
	query := `SELECT id, name, vpa, currency, api_key, webhook FROM merchants WHERE api_key = $1`
	return scanMerchant(r.pool.QueryRow(ctx, query, key))
}

func (r *PostgresRepository) MerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	query := `SELECT id, name, vpa, currency, api_key, webhook FROM merchants WHERE id = $1`
	return scanMerchant(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) SetWebhook(ctx context.Context, merchantID string, webhook *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE merchants SET webhook = $1 WHERE id = $2`, webhook, merchantID)
	if err != nil {
		return fmt.Errorf("could not update webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateRequest(ctx context.Context, req *domain.PaymentRequest) error {
	query := `
		INSERT INTO requests (id, merchant_id, amount, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, req.ID, req.MerchantID, req.Amount, req.Note, int(req.Status), req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("could not save request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RequestByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	query := `SELECT id, merchant_id, amount, note, status, created_at FROM requests WHERE id = $1`
	return scanRequest(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) RequestForMerchant(ctx context.Context, merchantID, id string) (*domain.PaymentRequest, error) {
	query := `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE id = $1 AND merchant_id = $2
	`
	return scanRequest(r.pool.QueryRow(ctx, query, id, merchantID))
}

func (r *PostgresRepository) RequestByNote(ctx context.Context, merchantID, note string) (*domain.PaymentRequest, error) {
	query := `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE merchant_id = $1 AND note = $2
	`
	return scanRequest(r.pool.QueryRow(ctx, query, merchantID, note))
}

func (r *PostgresRepository) ListRequests(ctx context.Context, merchantID string, limit, offset int) ([]domain.PaymentRequest, error) {
	query := `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE merchant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("could not list requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, merchantID, id string, to domain.Status) (bool, error) {
	query := `
		UPDATE requests SET status = $1
		WHERE id = $2 AND merchant_id = $3 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, int(to), id, merchantID, int(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("could not update request status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRequest, error) {
	query := `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, int(domain.StatusPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query pending requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := row.Scan(&m.ID, &m.Name, &m.VPA, &m.Currency, &m.Key, &m.Webhook); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan error: %w", err)
	}
	return &m, nil
}

func scanRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	var status int
	if err := row.Scan(&req.ID, &req.MerchantID, &req.Amount, &req.Note, &status, &req.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan error: %w", err)
	}
	req.Status = domain.Status(status)
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
