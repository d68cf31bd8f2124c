package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ectoplasm/dexclient/internal/config"
)

// DeployStore handles deploy history operations
type DeployStore interface {
	RecordDeploy(ctx context.Context, d *Deploy) error
	GetDeploy(ctx context.Context, hash string) (*Deploy, error)
	ListDeploys(ctx context.Context, filter DeployFilter, pagination PaginationParams) (*PaginatedResult[Deploy], error)
	UpdateDeployStatus(ctx context.Context, hash string, update StatusUpdate) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeployStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deploy is a submitted deploy and the last known outcome of its execution
type Deploy struct {
	ID           string
	Seq          int64 // insertion order, used as the pagination cursor
	Hash         string
	Operation    string
	EntryPoint   string
	Target       string
	Account      string // signer public key hex
	AccountHash  string
	ChainName    string
	PaymentMotes string
	Status       string
	ErrorMessage string
	BlockHash    string
	Cost         string
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// StatusUpdate is the execution outcome written back to a deploy
type StatusUpdate struct {
	Status       string
	ErrorMessage string
	BlockHash    string
	Cost         string
	UpdatedAt    time.Time
}

// DeployFilter contains filter options for listing deploys
type DeployFilter struct {
	Account   string
	Operation string
	Status    string
	ChainName string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
	PrevCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
