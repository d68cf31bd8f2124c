package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// unique_violation
const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deploy history
	CREATE TABLE IF NOT EXISTS deploys (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		hash TEXT NOT NULL UNIQUE,
		operation TEXT NOT NULL,
		entry_point TEXT NOT NULL,
		target TEXT,
		account TEXT NOT NULL,
		account_hash TEXT,
		chain_name TEXT NOT NULL,
		payment_motes NUMERIC(78, 0),
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		block_hash TEXT,
		cost TEXT,
		submitted_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
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
func (s *PostgresStore) RecordDeploy(ctx context.Context, d *Deploy) error {
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

	var payment any
	if d.PaymentMotes != "" {
		payment = d.PaymentMotes
	}

	query := `
		INSERT INTO deploys (id, hash, operation, entry_point, target, account, account_hash, chain_name, payment_motes, status, error_message, block_hash, cost, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		d.ID, d.Hash, d.Operation, d.EntryPoint, d.Target, strings.ToLower(d.Account), d.AccountHash, d.ChainName, payment,
		d.Status, d.ErrorMessage, d.BlockHash, d.Cost, d.SubmittedAt, d.UpdatedAt,
	).Scan(&d.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDeployExists
		}
		return err
	}
	return nil
}

// GetDeploy retrieves a deploy by hash
func (s *PostgresStore) GetDeploy(ctx context.Context, hash string) (*Deploy, error) {
	query := `SELECT ` + pgDeployColumns + ` FROM deploys WHERE hash = $1`
	d, err := scanPostgresDeploy(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeploys lists deploys newest first with cursor-based pagination
func (s *PostgresStore) ListDeploys(ctx context.Context, filter DeployFilter, pagination PaginationParams) (*PaginatedResult[Deploy], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	query, args := deployListQuery(filter, after, pagination.Limit, func(n int) string { return "$" + strconv.Itoa(n) })
	query = strings.Replace(query, deployColumns, pgDeployColumns, 1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deploys []Deploy
	for rows.Next() {
		d, err := scanPostgresDeploy(rows)
		if err != nil {
			return nil, err
		}
		deploys = append(deploys, *d)
	}
	return paginate(deploys, pagination.Limit), rows.Err()
}

// UpdateDeployStatus stores the execution outcome of a deploy
func (s *PostgresStore) UpdateDeployStatus(ctx context.Context, hash string, u StatusUpdate) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	query := `
		UPDATE deploys SET status = $1, error_message = $2, block_hash = $3, cost = $4, updated_at = $5
		WHERE hash = $6
	`
	res, err := s.db.ExecContext(ctx, query, u.Status, u.ErrorMessage, u.BlockHash, u.Cost, u.UpdatedAt, hash)
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

// id and payment are cast to text so both drivers scan into strings
var pgDeployColumns = strings.NewReplacer(
	"id, seq", "id::text, seq",
	"payment_motes", "payment_motes::text",
).Replace(deployColumns)

func scanPostgresDeploy(row rowScanner) (*Deploy, error) {
	var (
		d                                                 Deploy
		target, accountHash, payment, errMsg, block, cost sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.Seq, &d.Hash, &d.Operation, &d.EntryPoint, &target, &d.Account, &accountHash, &d.ChainName, &payment,
		&d.Status, &errMsg, &block, &cost, &d.SubmittedAt, &d.UpdatedAt,
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
	d.SubmittedAt = d.SubmittedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
