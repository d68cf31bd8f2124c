package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/storage"
	"github.com/ectoplasm/dexclient/internal/validation"
)

// Common errors returned by the deploy history service.
var (
	ErrNotFound      = errors.New("deploy not found")
	ErrInvalidHash   = errors.New("invalid deploy hash")
	ErrInvalidKey    = errors.New("invalid account public key")
	ErrInvalidStatus = errors.New("invalid status")
)

// Store is the storage this service needs.
type Store interface {
	RecordDeploy(ctx context.Context, d *storage.Deploy) error
	GetDeploy(ctx context.Context, hash string) (*storage.Deploy, error)
	ListDeploys(ctx context.Context, filter storage.DeployFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deploy], error)
	UpdateDeployStatus(ctx context.Context, hash string, update storage.StatusUpdate) error
}

// Service defines the deploy history service interface.
type Service interface {
	// Record records a submitted deploy. Recording the same hash twice
	// returns the existing record.
	Record(ctx context.Context, req RecordRequest) (*Deploy, error)

	// Get retrieves a deploy by hash.
	Get(ctx context.Context, hash string) (*Deploy, error)

	// List lists deploys newest first with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// UpdateStatus stores the execution outcome of a deploy.
	UpdateStatus(ctx context.Context, hash string, update StatusUpdate) error
}

// service implements the Service interface.
type service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new deploy history service.
func NewService(store Store) Service {
	return &service{store: store, now: time.Now}
}

// Record records a submitted deploy.
func (s *service) Record(ctx context.Context, req RecordRequest) (*Deploy, error) {
	if err := validation.ValidateDeployHash(req.Hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	pub, err := keys.ParsePublicKey(req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}
	d := &storage.Deploy{
		Hash:         req.Hash,
		Operation:    req.Operation,
		EntryPoint:   req.EntryPoint,
		Target:       req.Target,
		Account:      pub.Hex(),
		AccountHash:  pub.AccountHash().String(),
		ChainName:    req.ChainName,
		PaymentMotes: req.PaymentMotes,
		Status:       StatusPending,
		SubmittedAt:  submittedAt.UTC(),
	}

	if err := s.store.RecordDeploy(ctx, d); err != nil {
		if errors.Is(err, storage.ErrDeployExists) {
			return s.Get(ctx, req.Hash)
		}
		return nil, fmt.Errorf("recording deploy: %w", err)
	}

	return toDeploy(d), nil
}

// Get retrieves a deploy by hash.
func (s *service) Get(ctx context.Context, hash string) (*Deploy, error) {
	d, err := s.store.GetDeploy(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deploy: %w", err)
	}
	return toDeploy(d), nil
}

// List lists deploys with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if pagination.Limit <= 0 {
		pagination.Limit = 20
	}

	result, err := s.store.ListDeploys(ctx, storage.DeployFilter{
		Account:   filter.Account,
		Operation: filter.Operation,
		Status:    filter.Status,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deploys: %w", err)
	}

	deploys := make([]Deploy, len(result.Data))
	for i := range result.Data {
		deploys[i] = *toDeploy(&result.Data[i])
	}

	return &ListResult{
		Deploys:    deploys,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	}, nil
}

// UpdateStatus stores the execution outcome of a deploy.
func (s *service) UpdateStatus(ctx context.Context, hash string, update StatusUpdate) error {
	if !validStatus(update.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}
	err := s.store.UpdateDeployStatus(ctx, hash, storage.StatusUpdate{
		Status:       update.Status,
		ErrorMessage: update.ErrorMessage,
		BlockHash:    update.BlockHash,
		Cost:         update.Cost,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("updating deploy status: %w", err)
	}
	return nil
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailure, StatusTimeout:
		return true
	}
	return false
}

func toDeploy(d *storage.Deploy) *Deploy {
	return &Deploy{
		ID:           d.ID,
		Hash:         d.Hash,
		Operation:    d.Operation,
		EntryPoint:   d.EntryPoint,
		Target:       d.Target,
		Account:      d.Account,
		AccountHash:  d.AccountHash,
		ChainName:    d.ChainName,
		PaymentMotes: d.PaymentMotes,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		BlockHash:    d.BlockHash,
		Cost:         d.Cost,
		SubmittedAt:  d.SubmittedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
