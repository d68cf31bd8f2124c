package dex

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/balancekey"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
)

func testAccount(t *testing.T) keys.Address {
	t.Helper()
	return keys.NewAccountHash(mustHash(t, strings.Repeat("5a", 32)))
}

func u256Value(parsed string) *rpc.CLValue {
	return &rpc.CLValue{CLType: json.RawMessage(`"U256"`), Parsed: json.RawMessage(parsed)}
}

func TestTokenBalanceStructuralCandidate(t *testing.T) {
	gw := newMockGateway()
	svc := newTestService(t, gw)
	account := testAccount(t)

	candidates := balancekey.New(5, 10).Candidates(account.Hash)
	structural := candidates[6]
	require.Equal(t, balancekey.KindStructural, structural.Kind)
	gw.dictionary[structural.Key] = u256Value(`"123456789"`)

	bal, err := svc.TokenBalance(context.Background(), "ECTO", account)
	require.NoError(t, err)
	assert.Equal(t, "123456789", bal.Amount.String())
	assert.Equal(t, structural.Key, bal.Candidate)
	assert.Equal(t, 7, bal.Probes)

	// literal candidates are probed first, in order
	assert.Equal(t, "balances", gw.dictQueries[0])
	assert.Equal(t, account.String(), gw.dictQueries[4])
	assert.Equal(t, account.Hex(), gw.dictQueries[5])
}

func TestTokenBalanceFirstDecodableWins(t *testing.T) {
	gw := newMockGateway()
	svc := newTestService(t, gw)
	account := testAccount(t)
	candidates := balancekey.New(5, 10).Candidates(account.Hash)

	// an earlier candidate holding a non-integer is skipped
	gw.dictionary[candidates[1].Key] = &rpc.CLValue{CLType: json.RawMessage(`"String"`), Parsed: json.RawMessage(`"hello"`)}
	gw.dictionary[candidates[3].Key] = u256Value(`[2, 232, 3]`)
	gw.dictionary[candidates[6].Key] = u256Value(`"1"`)

	bal, err := svc.TokenBalance(context.Background(), "wcspr", account)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.Amount.String())
	assert.Equal(t, candidates[3].Key, bal.Candidate)
}

func TestTokenBalanceExhausted(t *testing.T) {
	gw := newMockGateway()
	svc := newTestService(t, gw)
	account := testAccount(t)

	bal, err := svc.TokenBalance(context.Background(), "ECTO", account)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Amount.Sign())
	assert.Empty(t, bal.Candidate)
	assert.Equal(t, 26, bal.Probes)
	assert.Len(t, gw.dictQueries, 26)
}

func TestTokenBalanceTransportErrorsKeepProbing(t *testing.T) {
	gw := newMockGateway()
	gw.dictErr = &rpc.TransportError{Method: rpc.MethodDictionaryItem, StatusCode: 429, Err: errors.New("Too Many Requests")}
	svc := newTestService(t, gw)

	bal, err := svc.TokenBalance(context.Background(), "ECTO", testAccount(t))
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Amount.Sign())
	assert.Len(t, gw.dictQueries, 26)
}

func TestTokenBalanceStateFallback(t *testing.T) {
	gw := newMockGateway()
	gw.namedKeys = rpc.NamedKeys{"state": balancesURef, "name": "hash-" + strings.Repeat("01", 32)}
	account := testAccount(t)
	gw.dictionary["balances"] = u256Value(`42`)
	svc := newTestService(t, gw)

	bal, err := svc.TokenBalance(context.Background(), "ECTO", account)
	require.NoError(t, err)
	assert.Equal(t, "42", bal.Amount.String())
}

func TestTokenBalanceNoDictionary(t *testing.T) {
	gw := newMockGateway()
	gw.namedKeys = rpc.NamedKeys{"total_supply": "uref-" + strings.Repeat("01", 32) + "-007"}
	svc := newTestService(t, gw)

	bal, err := svc.TokenBalance(context.Background(), "ECTO", testAccount(t))
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Amount.Sign())
	assert.Empty(t, gw.dictQueries)
}

func TestTokenBalanceErrors(t *testing.T) {
	gw := newMockGateway()
	svc := newTestService(t, gw)

	_, err := svc.TokenBalance(context.Background(), "DOGE", testAccount(t))
	assert.ErrorIs(t, err, ErrUnknownToken)

	contract := keys.NewContractHash(mustHash(t, strings.Repeat("5a", 32)))
	_, err = svc.TokenBalance(context.Background(), "ECTO", contract)
	assert.ErrorIs(t, err, ErrInvalidInput)

	gw.namedErr = rpc.ErrNotFound
	_, err = svc.TokenBalance(context.Background(), "ECTO", testAccount(t))
	assert.ErrorIs(t, err, rpc.ErrNotFound)

	_, err = svc.ResolveBalance(context.Background(), Token{Symbol: "LP", Package: contract}, testAccount(t))
	assert.ErrorIs(t, err, ErrNoContractHash)
}

func TestTokenBalancePacedAndCancellable(t *testing.T) {
	gw := newMockGateway()
	cfg := testConfig(t)
	cfg.ProbeDelay = 20 * time.Millisecond
	svc := New(cfg, gw)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.TokenBalance(ctx, "ECTO", testAccount(t))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	// 26 probes at 20ms would take ~500ms; the deadline stops the loop early
	assert.Less(t, len(gw.dictQueries), 26)
	assert.Greater(t, len(gw.dictQueries), 0)
}

func TestNativeBalance(t *testing.T) {
	gw := newMockGateway()
	gw.purse = mustAddress("uref-" + strings.Repeat("0f", 32) + "-007")
	gw.purseAmount = big.NewInt(5_000_000_000_000)
	svc := newTestService(t, gw)
	pub := testSigner(t).PublicKey()

	bal, err := svc.NativeBalance(context.Background(), pub)
	require.NoError(t, err)
	assert.Equal(t, "5000000000000", bal.String())

	gw.purseErr = rpc.ErrNotFound
	bal, err = svc.NativeBalance(context.Background(), pub)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Sign())

	gw.purseErr = &rpc.TransportError{Method: rpc.MethodAccountInfo, Err: errors.New("connection refused")}
	_, err = svc.NativeBalance(context.Background(), pub)
	assert.Error(t, err)
}

func TestConcurrentBalanceQueriesIndependent(t *testing.T) {
	account := testAccount(t)
	candidates := balancekey.New(5, 10).Candidates(account.Hash)

	gwA := newMockGateway()
	gwA.dictionary[candidates[0].Key] = u256Value(`"7"`)
	gwB := newMockGateway()

	cfg := testConfig(t)
	a := New(cfg, gwA)
	b := New(cfg, gwB)

	done := make(chan *Balance, 2)
	for _, svc := range []*Service{a, b} {
		go func(svc *Service) {
			bal, _ := svc.TokenBalance(context.Background(), "ECTO", account)
			done <- bal
		}(svc)
	}
	got := []string{(<-done).Amount.String(), (<-done).Amount.String()}
	assert.ElementsMatch(t, []string{"7", "0"}, got)
}

func mustAddress(s string) keys.Address {
	a, err := keys.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
