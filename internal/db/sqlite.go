package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"upi-gateway/domain"
)

// SQLiteRepository keeps everything in a single embedded database file. It is
// meant for single-instance deployments; created_at is stored as Unix nanos so
// ordering does not depend on the driver's text time format.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[INFO] Using sqlite storage at %s", path)
	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
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
			status INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE (merchant_id, note)
		);

		CREATE INDEX IF NOT EXISTS idx_requests_merchant_created ON requests(merchant_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_requests_status_created ON requests(status, created_at);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("could not migrate sqlite: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() {
	r.db.Close()
}

func (r *SQLiteRepository) CreateMerchant(ctx context.Context, m *domain.Merchant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merchants (id, name, vpa, currency, api_key, webhook)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.VPA, m.Currency, m.Key, m.Webhook)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("could not save merchant: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MerchantByKey(ctx context.Context, key string) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, vpa, currency, api_key, webhook FROM merchants WHERE api_key = ?
	`, key)
	return scanSQLiteMerchant(row)
}

func (r *SQLiteRepository) MerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, vpa, currency, api_key, webhook FROM merchants WHERE id = ?
	`, id)
	return scanSQLiteMerchant(row)
}

func (r *SQLiteRepository) SetWebhook(ctx context.Context, merchantID string, webhook *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE merchants SET webhook = ? WHERE id = ?`, webhook, merchantID)
	if err != nil {
		return fmt.Errorf("could not update webhook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateRequest(ctx context.Context, req *domain.PaymentRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO requests (id, merchant_id, amount, note, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.ID, req.MerchantID, req.Amount, req.Note, int(req.Status), req.CreatedAt.UnixNano())
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("could not save request: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RequestByID(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, amount, note, status, created_at FROM requests WHERE id = ?
	`, id)
	return scanSQLiteRequest(row)
}

func (r *SQLiteRepository) RequestForMerchant(ctx context.Context, merchantID, id string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests WHERE id = ? AND merchant_id = ?
	`, id, merchantID)
	return scanSQLiteRequest(row)
}

func (r *SQLiteRepository) RequestByNote(ctx context.Context, merchantID, note string) (*domain.PaymentRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests WHERE merchant_id = ? AND note = ?
	`, merchantID, note)
	return scanSQLiteRequest(row)
}

func (r *SQLiteRepository) ListRequests(ctx context.Context, merchantID string, limit, offset int) ([]domain.PaymentRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE merchant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("could not list requests: %w", err)
	}
	defer rows.Close()

	return collectSQLiteRequests(rows)
}

func (r *SQLiteRepository) TransitionStatus(ctx context.Context, merchantID, id string, to domain.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE requests SET status = ?
		WHERE id = ? AND merchant_id = ? AND status = ?
	`, int(to), id, merchantID, int(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("could not update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not read rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant_id, amount, note, status, created_at
		FROM requests
		WHERE status = ? AND created_at < ?
		ORDER BY created_at
		LIMIT ?
	`, int(domain.StatusPending), cutoff.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("could not query pending requests: %w", err)
	}
	defer rows.Close()

	return collectSQLiteRequests(rows)
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMerchant(row sqlScanner) (*domain.Merchant, error) {
	var m domain.Merchant
	var webhook sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &m.VPA, &m.Currency, &m.Key, &webhook); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan error: %w", err)
	}
	if webhook.Valid {
		m.Webhook = &webhook.String
	}
	return &m, nil
}

func scanSQLiteRequest(row sqlScanner) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	var amount sql.NullString
	var status int
	var createdAt int64
	if err := row.Scan(&req.ID, &req.MerchantID, &amount, &req.Note, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan error: %w", err)
	}
	if amount.Valid {
		req.Amount = &amount.String
	}
	req.Status = domain.Status(status)
	req.CreatedAt = time.Unix(0, createdAt).UTC()
	return &req, nil
}

func collectSQLiteRequests(rows *sql.Rows) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	for rows.Next() {
		req, err := scanSQLiteRequest(rows)
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

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
