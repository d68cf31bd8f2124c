package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deploy history
	CREATE TABLE IF NOT EXISTS deploys (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL UNIQUE,
		operation TEXT NOT NULL,
		entry_point TEXT NOT NULL,
		target TEXT,
		account TEXT NOT NULL,
		account_hash TEXT,
		chain_name TEXT NOT NULL,
		payment_motes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		block_hash TEXT,
		cost TEXT,
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deploys_account ON deploys(account, seq);
	CREATE INDEX IF NOT EXISTS idx_deploys_status ON deploys(status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// RecordDeploy records a submitted deploy
func (s *SQLiteStore) RecordDeploy(ctx context.Context, d *Deploy) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.Status == "" {
		d.Status = "pending"
	}
	if d.SubmittedAt.IsZero() {
		d.SubmittedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.SubmittedAt
	}
	query := `
		INSERT INTO deploys (id, hash, operation, entry_point, target, account, account_hash, chain_name, payment_motes, status, error_message, block_hash, cost, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		d.ID, d.Hash, d.Operation, d.EntryPoint, d.Target, strings.ToLower(d.Account), d.AccountHash, d.ChainName, d.PaymentMotes,
		d.Status, d.ErrorMessage, d.BlockHash, d.Cost, formatTime(d.SubmittedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeployExists
		}
		return err
	}
	if seq, err := res.LastInsertId(); err == nil {
		d.Seq = seq
	}
	return nil
}

// GetDeploy retrieves a deploy by hash
func (s *SQLiteStore) GetDeploy(ctx context.Context, hash string) (*Deploy, error) {
	query := `SELECT ` + deployColumns + ` FROM deploys WHERE hash = ?`
	d, err := scanSQLiteDeploy(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeploys lists deploys newest first with cursor-based pagination
func (s *SQLiteStore) ListDeploys(ctx context.Context, filter DeployFilter, pagination PaginationParams) (*PaginatedResult[Deploy], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	query, args := deployListQuery(filter, after, pagination.Limit, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deploys []Deploy
	for rows.Next() {
		d, err := scanSQLiteDeploy(rows)
		if err != nil {
			return nil, err
		}
		deploys = append(deploys, *d)
	}
	return paginate(deploys, pagination.Limit), rows.Err()
}

// UpdateDeployStatus stores the execution outcome of a deploy
func (s *SQLiteStore) UpdateDeployStatus(ctx context.Context, hash string, u StatusUpdate) error {
	query := `
		UPDATE deploys SET status = ?, error_message = ?, block_hash = ?, cost = ?, updated_at = ?
		WHERE hash = ?
	`
	res, err := s.db.ExecContext(ctx, query, u.Status, u.ErrorMessage, u.BlockHash, u.Cost, formatTime(u.UpdatedAt), hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDeploy(row rowScanner) (*Deploy, error) {
	var (
		d                                                 Deploy
		target, accountHash, payment, errMsg, block, cost sql.NullString
		submittedAt, updatedAt                            string
	)
	err := row.Scan(
		&d.ID, &d.Seq, &d.Hash, &d.Operation, &d.EntryPoint, &target, &d.Account, &accountHash, &d.ChainName, &payment,
		&d.Status, &errMsg, &block, &cost, &submittedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Target = target.String
	d.AccountHash = accountHash.String
	d.PaymentMotes = payment.String
	d.ErrorMessage = errMsg.String
	d.BlockHash = block.String
	d.Cost = cost.String
	d.SubmittedAt = parseTime(submittedAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
