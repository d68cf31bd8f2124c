//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/config"
	deploysDomain "github.com/ectoplasm/dexclient/internal/deploys/domain"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/server"
	"github.com/ectoplasm/dexclient/internal/storage"
	"github.com/ectoplasm/dexclient/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testChainName = "casper-net-1"

var (
	routerPackage  = "contract-package-" + strings.Repeat("11", 32)
	routerContract = "hash-" + strings.Repeat("12", 32)
	wcsprPackage   = "contract-package-" + strings.Repeat("21", 32)
	ectoPackage    = "contract-package-" + strings.Repeat("31", 32)
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Node              *fakeNode
	NodeServer        *httptest.Server
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ectoplasm"),
		postgres.WithUsername("ectoplasm"),
		postgres.WithPassword("ectoplasm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// fakeNode is an in-memory Casper node: it accepts deploys and reports them
// executed on the first info_get_deploy after submission. Hashes registered
// with failNext execute with that error message instead.
type fakeNode struct {
	mu       sync.Mutex
	deploys  map[string]bool
	failures map[string]string
	calls    map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		deploys:  map[string]bool{},
		failures: map[string]string{},
		calls:    map[string]int{},
	}
}

func (f *fakeNode) failNext(hash, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[hash] = message
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	f.mu.Unlock()

	result, rpcErr := f.handle(req.Method, req.Params)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeNode) handle(method string, params json.RawMessage) (any, map[string]any) {
	switch method {
	case "info_get_status":
		return map[string]any{"api_version": "1.5.6", "chainspec_name": testChainName, "build_version": "1.5.6-e2e"}, nil

	case "account_put_deploy":
		var p struct {
			Deploy struct {
				Hash   string `json:"hash"`
				Header struct {
					ChainName string `json:"chain_name"`
				} `json:"header"`
			} `json:"deploy"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, map[string]any{"code": -32602, "message": "invalid params"}
		}
		if p.Deploy.Header.ChainName != testChainName {
			return nil, map[string]any{"code": -32008, "message": "invalid deploy: wrong chain name"}
		}
		f.mu.Lock()
		f.deploys[p.Deploy.Hash] = true
		f.mu.Unlock()
		return map[string]any{"api_version": "1.5.6", "deploy_hash": p.Deploy.Hash}, nil

	case "info_get_deploy":
		var p struct {
			DeployHash string `json:"deploy_hash"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, map[string]any{"code": -32602, "message": "invalid params"}
		}
		f.mu.Lock()
		known := f.deploys[p.DeployHash]
		failure, failed := f.failures[p.DeployHash]
		f.mu.Unlock()
		if !known {
			return nil, map[string]any{"code": -32000, "message": "No such deploy"}
		}
		result := map[string]any{"Success": map[string]any{"cost": "1500000000"}}
		if failed {
			result = map[string]any{"Failure": map[string]any{"cost": "1500000000", "error_message": failure}}
		}
		return map[string]any{
			"deploy": map[string]any{"hash": p.DeployHash},
			"execution_results": []map[string]any{{
				"block_hash": strings.Repeat("bb", 32),
				"result":     result,
			}},
		}, nil

	default:
		return nil, map[string]any{"code": -32601, "message": "Method not found"}
	}
}

// startServerE starts ectoplasm-server in-process against Postgres and the
// fake node.
func startServerE(connString, nodeURL string) (*httptest.Server, storage.Store, error) {
	chain := config.DefaultChain()
	chain.NodeAddress = nodeURL
	chain.ChainName = testChainName
	chain.RouterPackageHash = routerPackage
	chain.RouterContractHash = routerContract
	chain.PollAttempts = 5
	chain.PollIntervalMS = 50
	for i, t := range chain.Tokens {
		switch t.Symbol {
		case "WCSPR":
			chain.Tokens[i].PackageHash = wcsprPackage
		case "ECTO":
			chain.Tokens[i].PackageHash = ectoPackage
		}
	}

	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: connString},
		},
		Chain:     chain,
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: true, MaxBodySizeMB: 1},
		Proxy:     config.ProxyConfig{TrustProxy: false},
		Metrics:   config.MetricsConfig{Enabled: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dexCfg, err := dex.NewConfig(cfg.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid chain config: %w", err)
	}
	recorder := deploysDomain.NewRecorder(deploysDomain.NewService(store))
	svc := dex.New(dexCfg, rpc.New(nodeURL, rpc.WithLogger(logger)),
		dex.WithLogger(logger),
		dex.WithRecorder(recorder),
	)

	srv := server.New(cfg, store, dex.LoggingMiddleware(logger)(svc), logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient() *client.Client {
	return client.New(testCtx.TestServer.URL)
}

// uniqueAmount keeps deploys built by different tests distinct in the shared
// database.
func uniqueAmount() string {
	id := uuid.New()
	return fmt.Sprintf("%d", 1000+int(id[0])*256+int(id[1]))
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
