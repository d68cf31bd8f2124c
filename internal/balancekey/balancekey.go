// Package balancekey enumerates dictionary item keys under which a token
// contract may store an account's balance.
//
// The contracts this client talks to do not document how balance keys are
// derived, so the resolver produces a bounded, ordered list of guesses:
// literal names first, then the slot known to be correct for the contract
// framework in use, then a sweep over neighbouring slots. Callers probe them in
// order and stop at the first hit.
package balancekey

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	DefaultPrimaryIndex = 5
	DefaultSweepMax     = 10

	// discriminant of the Account variant in the contract's key enum
	accountTag byte = 0
)

// Kind describes how a candidate was produced.
type Kind string

const (
	KindLiteral    Kind = "literal"
	KindStructural Kind = "structural"
	KindSweepBE    Kind = "sweep-be"
	KindSweepLE    Kind = "sweep-le"
)

// Candidate is one dictionary item key to probe.
type Candidate struct {
	Key   string
	Kind  Kind
	Index uint32
	Order int
}

func (c Candidate) String() string {
	if c.Kind == KindLiteral {
		return fmt.Sprintf("#%d %s %q", c.Order, c.Kind, c.Key)
	}
	return fmt.Sprintf("#%d %s[%d] %s", c.Order, c.Kind, c.Index, c.Key)
}

// Resolver generates candidates. The zero value uses index 5 and sweeps 0..10.
type Resolver struct {
	PrimaryIndex uint32
	SweepMax     uint32
}

// New returns a resolver with the given primary slot and sweep bound.
func New(primary, sweepMax uint32) Resolver {
	return Resolver{PrimaryIndex: primary, SweepMax: sweepMax}
}

func (r Resolver) bounds() (uint32, uint32) {
	primary, sweep := r.PrimaryIndex, r.SweepMax
	if primary == 0 && sweep == 0 {
		return DefaultPrimaryIndex, DefaultSweepMax
	}
	return primary, sweep
}

// Candidates returns the ordered probe list for a raw 32-byte account hash.
// The result depends only on the input.
func (r Resolver) Candidates(accountHash [32]byte) []Candidate {
	primary, sweepMax := r.bounds()
	h := hex.EncodeToString(accountHash[:])
	acct := "account-hash-" + h

	literals := []string{
		"balances",
		"balances_" + acct,
		"balance_" + acct,
		"balances" + acct,
		acct,
		h,
	}

	out := make([]Candidate, 0, len(literals)+1+2*int(sweepMax))
	add := func(c Candidate) {
		c.Order = len(out)
		out = append(out, c)
	}

	for _, l := range literals {
		add(Candidate{Key: l, Kind: KindLiteral})
	}

	add(Candidate{Key: DeriveKey(beIndex(primary), accountHash), Kind: KindStructural, Index: primary})

	for i := uint32(0); i <= sweepMax; i++ {
		if i == primary {
			continue
		}
		be, le := beIndex(i), leIndex(i)
		add(Candidate{Key: DeriveKey(be, accountHash), Kind: KindSweepBE, Index: i})
		// index 0 reads the same both ways
		if le != be {
			add(Candidate{Key: DeriveKey(le, accountHash), Kind: KindSweepLE, Index: i})
		}
	}
	return out
}

// DeriveKey returns hex(blake2b256(index || 0x00 || accountHash)).
func DeriveKey(index [4]byte, accountHash [32]byte) string {
	buf := make([]byte, 0, 4+1+32)
	buf = append(buf, index[:]...)
	buf = append(buf, accountTag)
	buf = append(buf, accountHash[:]...)
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func beIndex(i uint32) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], i)
	return b
}

func leIndex(i uint32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], i)
	return b
}
