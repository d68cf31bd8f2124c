package balancekey

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func testHash() [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = byte(0xa0 + i%16)
	}
	return h
}

func TestCandidatesLiteralsFirst(t *testing.T) {
	h := testHash()
	hx := hex.EncodeToString(h[:])
	got := Resolver{}.Candidates(h)

	want := []string{
		"balances",
		"balances_account-hash-" + hx,
		"balance_account-hash-" + hx,
		"balancesaccount-hash-" + hx,
		"account-hash-" + hx,
		hx,
	}
	require.GreaterOrEqual(t, len(got), len(want))
	for i, w := range want {
		assert.Equal(t, w, got[i].Key)
		assert.Equal(t, KindLiteral, got[i].Kind)
		assert.Equal(t, i, got[i].Order)
	}
}

func TestCandidatesStructuralBeforeSweep(t *testing.T) {
	h := testHash()
	got := Resolver{}.Candidates(h)

	preimage := append([]byte{0, 0, 0, 5, 0}, h[:]...)
	sum := blake2b.Sum256(preimage)
	expected := hex.EncodeToString(sum[:])

	structural := -1
	firstSweep := -1
	for i, c := range got {
		if c.Kind == KindStructural {
			structural = i
		}
		if firstSweep < 0 && (c.Kind == KindSweepBE || c.Kind == KindSweepLE) {
			firstSweep = i
		}
	}
	require.Equal(t, 6, structural)
	assert.Equal(t, expected, got[structural].Key)
	assert.Equal(t, uint32(5), got[structural].Index)
	assert.Less(t, structural, firstSweep)
}

func TestCandidatesSweep(t *testing.T) {
	h := testHash()
	got := Resolver{}.Candidates(h)

	// 6 literals, 1 structural, index 0 once, indexes 1..10 except 5 twice
	assert.Len(t, got, 6+1+1+9*2)

	sweep := got[7:]
	assert.Equal(t, KindSweepBE, sweep[0].Kind)
	assert.Equal(t, uint32(0), sweep[0].Index)
	assert.Equal(t, KindSweepBE, sweep[1].Kind)
	assert.Equal(t, uint32(1), sweep[1].Index)
	assert.Equal(t, KindSweepLE, sweep[2].Kind)
	assert.Equal(t, uint32(1), sweep[2].Index)

	le := append([]byte{1, 0, 0, 0, 0}, h[:]...)
	sum := blake2b.Sum256(le)
	assert.Equal(t, hex.EncodeToString(sum[:]), sweep[2].Key)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Key], "duplicate candidate %s", c)
		seen[c.Key] = true
		if c.Kind == KindSweepBE || c.Kind == KindSweepLE {
			assert.NotEqual(t, uint32(5), c.Index)
		}
	}
}

func TestCandidatesStable(t *testing.T) {
	h := testHash()
	r := New(5, 10)
	assert.Equal(t, r.Candidates(h), r.Candidates(h))
	assert.Equal(t, Resolver{}.Candidates(h), r.Candidates(h))

	var other [32]byte
	other[0] = 1
	assert.NotEqual(t, r.Candidates(h)[6].Key, r.Candidates(other)[6].Key)
}

func TestCandidatesConfigurablePrimary(t *testing.T) {
	h := testHash()
	got := New(2, 3).Candidates(h)

	assert.Equal(t, KindStructural, got[6].Kind)
	assert.Equal(t, uint32(2), got[6].Index)
	assert.Equal(t, DeriveKey([4]byte{0, 0, 0, 2}, h), got[6].Key)
	// indexes 0, 1, 3 -> 1 + 2 + 2
	assert.Len(t, got, 7+5)
}

func TestCandidateString(t *testing.T) {
	c := Candidate{Key: "balances", Kind: KindLiteral}
	assert.Equal(t, `#0 literal "balances"`, c.String())

	c = Candidate{Key: strings.Repeat("0", 64), Kind: KindSweepLE, Index: 3, Order: 9}
	assert.True(t, strings.HasPrefix(c.String(), "#9 sweep-le[3] "))
}
