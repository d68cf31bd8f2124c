package domain

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/storage"
)

// mockStore implements Store for testing
type mockStore struct {
	deploys map[string]*storage.Deploy
	seq     int64
	err     error
}

func newMockStore() *mockStore {
	return &mockStore{deploys: make(map[string]*storage.Deploy)}
}

func (m *mockStore) RecordDeploy(ctx context.Context, d *storage.Deploy) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.deploys[d.Hash]; ok {
		return storage.ErrDeployExists
	}
	m.seq++
	d.Seq = m.seq
	d.ID = "deploy-" + d.Hash[:8]
	cp := *d
	m.deploys[d.Hash] = &cp
	return nil
}

func (m *mockStore) GetDeploy(ctx context.Context, hash string) (*storage.Deploy, error) {
	if d, ok := m.deploys[hash]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) ListDeploys(ctx context.Context, filter storage.DeployFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deploy], error) {
	var out []storage.Deploy
	for _, d := range m.deploys {
		if filter.Account != "" && d.Account != filter.Account {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	hasMore := len(out) > pagination.Limit
	if hasMore {
		out = out[:pagination.Limit]
	}
	return &storage.PaginatedResult[storage.Deploy]{Data: out, HasMore: hasMore}, nil
}

func (m *mockStore) UpdateDeployStatus(ctx context.Context, hash string, u storage.StatusUpdate) error {
	d, ok := m.deploys[hash]
	if !ok {
		return storage.ErrNotFound
	}
	d.Status = u.Status
	d.ErrorMessage = u.ErrorMessage
	d.BlockHash = u.BlockHash
	d.Cost = u.Cost
	d.UpdatedAt = u.UpdatedAt
	return nil
}

var (
	testKey  = "01" + strings.Repeat("ab", 32)
	testHash = strings.Repeat("cd", 32)
)

func TestService_Record(t *testing.T) {
	tests := []struct {
		name    string
		req     RecordRequest
		wantErr error
	}{
		{
			name: "record valid deploy",
			req: RecordRequest{
				Hash:       testHash,
				Operation:  "swap",
				EntryPoint: "swap_exact_tokens_for_tokens",
				Account:    testKey,
				ChainName:  "casper-test",
			},
		},
		{
			name:    "invalid hash",
			req:     RecordRequest{Hash: "0xabc", Account: testKey},
			wantErr: ErrInvalidHash,
		},
		{
			name:    "invalid account",
			req:     RecordRequest{Hash: testHash, Account: "03" + strings.Repeat("ab", 32)},
			wantErr: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockStore())
			d, err := svc.Record(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusPending, d.Status)
			assert.Equal(t, testHash, d.Hash)
			assert.True(t, strings.HasPrefix(d.AccountHash, "account-hash-"))
			assert.False(t, d.SubmittedAt.IsZero())
		})
	}
}

func TestService_RecordIdempotent(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.Record(ctx, RecordRequest{Hash: testHash, Account: testKey, Operation: "swap"})
	require.NoError(t, err)
	second, err := svc.Record(ctx, RecordRequest{Hash: testHash, Account: testKey, Operation: "swap"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.deploys, 1)
}

func TestService_RecordStoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("disk full")
	svc := NewService(store)

	_, err := svc.Record(context.Background(), RecordRequest{Hash: testHash, Account: testKey})
	assert.ErrorContains(t, err, "disk full")
}

func TestService_Get(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordRequest{Hash: testHash, Account: testKey})
	require.NoError(t, err)

	t.Run("existing deploy", func(t *testing.T) {
		d, err := svc.Get(ctx, testHash)
		require.NoError(t, err)
		assert.Equal(t, testHash, d.Hash)
	})

	t.Run("non-existing deploy", func(t *testing.T) {
		_, err := svc.Get(ctx, strings.Repeat("00", 32))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_UpdateStatus(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordRequest{Hash: testHash, Account: testKey})
	require.NoError(t, err)

	err = svc.UpdateStatus(ctx, testHash, StatusUpdate{Status: StatusFailure, ErrorMessage: "User error: 64658"})
	require.NoError(t, err)
	d, err := svc.Get(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, d.Status)
	assert.Equal(t, "User error: 64658", d.ErrorMessage)

	assert.ErrorIs(t, svc.UpdateStatus(ctx, testHash, StatusUpdate{Status: "exploded"}), ErrInvalidStatus)
	assert.ErrorIs(t, svc.UpdateStatus(ctx, strings.Repeat("00", 32), StatusUpdate{Status: StatusSuccess}), ErrNotFound)
}

func TestService_List(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	for _, h := range []string{"aa", "bb", "cc"} {
		_, err := svc.Record(ctx, RecordRequest{Hash: strings.Repeat(h, 32), Account: testKey})
		require.NoError(t, err)
	}
	require.NoError(t, svc.UpdateStatus(ctx, strings.Repeat("bb", 32), StatusUpdate{Status: StatusSuccess}))

	result, err := svc.List(ctx, ListFilter{}, PaginationParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Deploys, 2)
	assert.True(t, result.HasMore)
	assert.Equal(t, strings.Repeat("cc", 32), result.Deploys[0].Hash)

	result, err = svc.List(ctx, ListFilter{Status: StatusSuccess}, PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, result.Deploys, 1)

	_, err = svc.List(ctx, ListFilter{Status: "weird"}, PaginationParams{})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRecorder(t *testing.T) {
	store := newMockStore()
	rec := NewRecorder(NewService(store))
	ctx := context.Background()

	pub, err := keys.ParsePublicKey(testKey)
	require.NoError(t, err)
	hash, err := deploy.ParseHash(testHash)
	require.NoError(t, err)

	err = rec.RecordSubmission(ctx, dex.Submission{
		Hash:        hash,
		Operation:   dex.OpSwap,
		EntryPoint:  "swap_exact_tokens_for_tokens",
		Target:      keys.NewContractPackageHash([32]byte{0x11}),
		Account:     pub,
		ChainName:   "casper-test",
		Payment:     big.NewInt(15_000_000_000),
		SubmittedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	stored := store.deploys[testHash]
	require.NotNil(t, stored)
	assert.Equal(t, "swap", stored.Operation)
	assert.Equal(t, "15000000000", stored.PaymentMotes)
	assert.True(t, strings.HasPrefix(stored.Target, "contract-package-11"))

	err = rec.RecordResult(ctx, hash, rpc.ExecutionResult{Status: rpc.StatusSuccess, BlockHash: strings.Repeat("ee", 32)})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, store.deploys[testHash].Status)

	// results for deploys never recorded here are ignored
	other, err := deploy.ParseHash(strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.NoError(t, rec.RecordResult(ctx, other, rpc.ExecutionResult{Status: rpc.StatusSuccess}))
}
