package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"log/slog"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func testDeploy(i int, account string) *Deploy {
	return &Deploy{
		Hash:         fmt.Sprintf("%064x", i),
		Operation:    "swap",
		EntryPoint:   "swap_exact_tokens_for_tokens",
		Target:       "contract-package-" + strings.Repeat("11", 32),
		Account:      account,
		AccountHash:  "account-hash-" + strings.Repeat("5a", 32),
		ChainName:    "casper-test",
		PaymentMotes: "15000000000",
		SubmittedAt:  time.Date(2026, 1, 15, 12, 0, i, 0, time.UTC),
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	account := "01" + strings.Repeat("AB", 32)

	t.Run("RecordAndGetDeploy", func(t *testing.T) {
		d := testDeploy(1, account)
		if err := store.RecordDeploy(ctx, d); err != nil {
			t.Fatalf("RecordDeploy() error = %v", err)
		}
		if d.ID == "" || d.Seq == 0 {
			t.Errorf("RecordDeploy() did not assign id/seq: %+v", d)
		}

		got, err := store.GetDeploy(ctx, d.Hash)
		if err != nil {
			t.Fatalf("GetDeploy() error = %v", err)
		}
		if got.Status != "pending" {
			t.Errorf("GetDeploy().Status = %v, want pending", got.Status)
		}
		if got.Account != strings.ToLower(account) {
			t.Errorf("GetDeploy().Account = %v, want lowercase key", got.Account)
		}
		if got.PaymentMotes != "15000000000" {
			t.Errorf("GetDeploy().PaymentMotes = %v", got.PaymentMotes)
		}
		if !got.SubmittedAt.Equal(d.SubmittedAt) {
			t.Errorf("GetDeploy().SubmittedAt = %v, want %v", got.SubmittedAt, d.SubmittedAt)
		}
		if got.EntryPoint != "swap_exact_tokens_for_tokens" {
			t.Errorf("GetDeploy().EntryPoint = %v", got.EntryPoint)
		}
	})

	t.Run("DuplicateHash", func(t *testing.T) {
		err := store.RecordDeploy(ctx, testDeploy(1, account))
		if !errors.Is(err, ErrDeployExists) {
			t.Errorf("RecordDeploy() duplicate error = %v, want ErrDeployExists", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.GetDeploy(ctx, strings.Repeat("ff", 32))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDeploy() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateDeployStatus", func(t *testing.T) {
		hash := testDeploy(1, account).Hash
		err := store.UpdateDeployStatus(ctx, hash, StatusUpdate{
			Status:       "failure",
			ErrorMessage: "User error: 2",
			BlockHash:    strings.Repeat("bb", 32),
			Cost:         "14000000000",
			UpdatedAt:    time.Date(2026, 1, 15, 12, 1, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("UpdateDeployStatus() error = %v", err)
		}

		got, err := store.GetDeploy(ctx, hash)
		if err != nil {
			t.Fatalf("GetDeploy() error = %v", err)
		}
		if got.Status != "failure" || got.ErrorMessage != "User error: 2" || got.Cost != "14000000000" {
			t.Errorf("GetDeploy() after update = %+v", got)
		}
		if got.UpdatedAt.Minute() != 1 {
			t.Errorf("GetDeploy().UpdatedAt = %v", got.UpdatedAt)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := store.UpdateDeployStatus(ctx, strings.Repeat("ff", 32), StatusUpdate{Status: "success"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateDeployStatus() error = %v, want ErrNotFound", err)
		}
	})
}

func TestListDeploys(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	alice := "01" + strings.Repeat("aa", 32)
	bob := "01" + strings.Repeat("bb", 32)
	for i := 1; i <= 5; i++ {
		owner := alice
		if i%2 == 0 {
			owner = bob
		}
		d := testDeploy(i, owner)
		if i == 5 {
			d.Operation = "approve"
			d.EntryPoint = "approve"
		}
		if err := store.RecordDeploy(ctx, d); err != nil {
			t.Fatalf("RecordDeploy(%d) error = %v", i, err)
		}
	}

	t.Run("newest first with pagination", func(t *testing.T) {
		page, err := store.ListDeploys(ctx, DeployFilter{}, PaginationParams{Limit: 2})
		if err != nil {
			t.Fatalf("ListDeploys() error = %v", err)
		}
		if len(page.Data) != 2 || !page.HasMore {
			t.Fatalf("ListDeploys() page 1 = %d rows, hasMore %v", len(page.Data), page.HasMore)
		}
		if page.Data[0].Hash != testDeploy(5, alice).Hash {
			t.Errorf("first row = %s, want newest", page.Data[0].Hash)
		}

		var seen []string
		for _, d := range page.Data {
			seen = append(seen, d.Hash)
		}
		cursor := page.NextCursor
		for cursor != "" {
			next, err := store.ListDeploys(ctx, DeployFilter{}, PaginationParams{Limit: 2, Cursor: cursor})
			if err != nil {
				t.Fatalf("ListDeploys(cursor %s) error = %v", cursor, err)
			}
			for _, d := range next.Data {
				seen = append(seen, d.Hash)
			}
			cursor = next.NextCursor
		}
		if len(seen) != 5 {
			t.Errorf("paged through %d deploys, want 5", len(seen))
		}
	})

	t.Run("filter by account", func(t *testing.T) {
		page, err := store.ListDeploys(ctx, DeployFilter{Account: strings.ToUpper(bob)}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListDeploys() error = %v", err)
		}
		if len(page.Data) != 2 {
			t.Errorf("ListDeploys(bob) = %d rows, want 2", len(page.Data))
		}
	})

	t.Run("filter by operation", func(t *testing.T) {
		page, err := store.ListDeploys(ctx, DeployFilter{Operation: "approve"}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListDeploys() error = %v", err)
		}
		if len(page.Data) != 1 || page.Data[0].EntryPoint != "approve" {
			t.Errorf("ListDeploys(approve) = %+v", page.Data)
		}
	})

	t.Run("filter by status", func(t *testing.T) {
		if err := store.UpdateDeployStatus(ctx, testDeploy(2, bob).Hash, StatusUpdate{Status: "success"}); err != nil {
			t.Fatalf("UpdateDeployStatus() error = %v", err)
		}
		page, err := store.ListDeploys(ctx, DeployFilter{Status: "success"}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListDeploys() error = %v", err)
		}
		if len(page.Data) != 1 {
			t.Errorf("ListDeploys(success) = %d rows, want 1", len(page.Data))
		}
	})

	t.Run("invalid cursor", func(t *testing.T) {
		_, err := store.ListDeploys(ctx, DeployFilter{}, PaginationParams{Limit: 10, Cursor: "nope"})
		if !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("ListDeploys() error = %v, want ErrInvalidCursor", err)
		}
	})
}
