package deploy

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

var (
	testNow     = time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	testPackage = mustAddress("contract-package-" + strings.Repeat("ab", 32))
	testSpender = mustAddress("hash-" + strings.Repeat("cd", 32))
)

func testKey(t *testing.T) (ed25519.PrivateKey, keys.PublicKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := keys.NewPublicKey(keys.AlgorithmEd25519, priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return priv, pub
}

func approveArgs(t *testing.T, amount int64) *clvalue.Args {
	t.Helper()
	args := clvalue.NewArgs()
	require.NoError(t, args.Add("spender", clvalue.Key(testSpender)))
	require.NoError(t, args.Add("amount", clvalue.NewU256(big.NewInt(amount))))
	return args
}

func buildParams(t *testing.T, pub keys.PublicKey) BuildParams {
	return BuildParams{
		Target:       testPackage,
		EntryPoint:   "approve",
		Args:         approveArgs(t, 1000),
		PaymentMotes: big.NewInt(3_000_000_000),
		Account:      pub,
		Now:          testNow,
	}
}

func TestBuild(t *testing.T) {
	_, pub := testKey(t)
	d, err := NewBuilder("casper-test").Build(buildParams(t, pub))
	require.NoError(t, err)

	assert.Equal(t, "casper-test", d.Header.ChainName)
	assert.Equal(t, uint64(1), d.Header.GasPrice)
	assert.Equal(t, 30*time.Minute, d.Header.TTL)
	assert.Equal(t, testNow.UnixMilli(), d.Header.Timestamp.UnixMilli())
	assert.Empty(t, d.Approvals)

	require.NotNil(t, d.Session.StoredVersionedContractByHash)
	s := d.Session.StoredVersionedContractByHash
	assert.Equal(t, testPackage.Hash, [32]byte(s.Hash))
	assert.Nil(t, s.Version)
	assert.Equal(t, "approve", d.Session.EntryPoint())

	require.NotNil(t, d.Payment.ModuleBytes)
	assert.Empty(t, d.Payment.ModuleBytes.ModuleBytes)
	amount, err := d.PaymentAmount()
	require.NoError(t, err)
	assert.Equal(t, "3000000000", amount.String())

	body, err := BodyHash(d.Payment, d.Session)
	require.NoError(t, err)
	assert.Equal(t, body, d.Header.BodyHash)
	assert.Equal(t, HeaderHash(d.Header), d.Hash)
	assert.Equal(t, testNow.Add(30*time.Minute).UnixMilli(), d.Expiry().UnixMilli())
}

func TestBuildDeterministic(t *testing.T) {
	_, pub := testKey(t)
	b := NewBuilder("casper-test")
	d1, err := b.Build(buildParams(t, pub))
	require.NoError(t, err)
	d2, err := b.Build(buildParams(t, pub))
	require.NoError(t, err)
	assert.Equal(t, d1.Hash, d2.Hash)
	assert.Equal(t, d1.Header.BodyHash, d2.Header.BodyHash)
}

func TestBodyHashSensitivity(t *testing.T) {
	_, pub := testKey(t)
	b := NewBuilder("casper-test")
	base, err := b.Build(buildParams(t, pub))
	require.NoError(t, err)

	tests := []struct {
		name       string
		mutate     func(p *BuildParams, b *Builder)
		bodyChange bool
	}{
		{name: "argument value", mutate: func(p *BuildParams, _ *Builder) { p.Args = approveArgs(t, 1001) }, bodyChange: true},
		{name: "argument order", mutate: func(p *BuildParams, _ *Builder) {
			args := clvalue.NewArgs()
			require.NoError(t, args.Add("amount", clvalue.NewU256(big.NewInt(1000))))
			require.NoError(t, args.Add("spender", clvalue.Key(testSpender)))
			p.Args = args
		}, bodyChange: true},
		{name: "entry point", mutate: func(p *BuildParams, _ *Builder) { p.EntryPoint = "mint" }, bodyChange: true},
		{name: "payment", mutate: func(p *BuildParams, _ *Builder) { p.PaymentMotes = big.NewInt(5_000_000_000) }, bodyChange: true},
		{name: "timestamp", mutate: func(p *BuildParams, _ *Builder) { p.Now = p.Now.Add(time.Millisecond) }},
		{name: "chain name", mutate: func(_ *BuildParams, b *Builder) { b.ChainName = "casper" }},
		{name: "ttl", mutate: func(_ *BuildParams, b *Builder) { b.TTL = time.Hour }},
		{name: "gas price", mutate: func(_ *BuildParams, b *Builder) { b.GasPrice = 2 }},
		{name: "sub-millisecond time", mutate: func(p *BuildParams, _ *Builder) { p.Now = p.Now.Add(time.Microsecond) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := buildParams(t, pub)
			nb := NewBuilder("casper-test")
			tt.mutate(&p, nb)
			d, err := nb.Build(p)
			require.NoError(t, err)

			if tt.bodyChange {
				assert.NotEqual(t, base.Header.BodyHash, d.Header.BodyHash)
				assert.NotEqual(t, base.Hash, d.Hash)
				return
			}
			assert.Equal(t, base.Header.BodyHash, d.Header.BodyHash)
			if tt.name == "sub-millisecond time" {
				assert.Equal(t, base.Hash, d.Hash)
			} else {
				assert.NotEqual(t, base.Hash, d.Hash)
			}
		})
	}
}

func TestBuildValidation(t *testing.T) {
	_, pub := testKey(t)
	tests := []struct {
		name   string
		mutate func(p *BuildParams)
		want   error
	}{
		{name: "contract hash target", mutate: func(p *BuildParams) { p.Target = testSpender }, want: ErrInvalidTarget},
		{name: "empty entry point", mutate: func(p *BuildParams) { p.EntryPoint = "" }, want: ErrMissingEntryPoint},
		{name: "zero payment", mutate: func(p *BuildParams) { p.PaymentMotes = big.NewInt(0) }, want: ErrInvalidPayment},
		{name: "nil payment", mutate: func(p *BuildParams) { p.PaymentMotes = nil }, want: ErrInvalidPayment},
		{name: "no account", mutate: func(p *BuildParams) { p.Account = keys.PublicKey{} }, want: ErrMissingAccount},
		{name: "no time", mutate: func(p *BuildParams) { p.Now = time.Time{} }, want: ErrMissingTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := buildParams(t, pub)
			tt.mutate(&p)
			_, err := NewBuilder("casper-test").Build(p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewBuilder("").Build(buildParams(t, pub))
	assert.ErrorIs(t, err, ErrMissingChainName)
}

func TestHeaderBytesLayout(t *testing.T) {
	_, pub := testKey(t)
	h := Header{
		Account:   pub,
		Timestamp: time.UnixMilli(1000),
		TTL:       30 * time.Minute,
		GasPrice:  1,
		ChainName: "ab",
	}
	b := h.Bytes()
	want := pub.Hex() +
		"e803000000000000" + // timestamp 1000
		"40771b0000000000" + // ttl 1_800_000 ms
		"0100000000000000" +
		strings.Repeat("00", 32) +
		"00000000" +
		"02000000" + "6162"
	assert.Equal(t, want, hex.EncodeToString(b))
}

func TestSessionBytesLayout(t *testing.T) {
	item := ExecutableDeployItem{StoredVersionedContractByHash: &StoredVersionedContractByHash{
		Hash:       Hash(testPackage.Hash),
		EntryPoint: "go",
		Args:       clvalue.NewArgs(),
	}}
	b, err := item.Bytes()
	require.NoError(t, err)
	want := "03" + strings.Repeat("ab", 32) + "00" + "02000000" + "676f" + "00000000"
	assert.Equal(t, want, hex.EncodeToString(b))

	v := uint32(2)
	item.StoredVersionedContractByHash.Version = &v
	b, err = item.Bytes()
	require.NoError(t, err)
	assert.Contains(t, hex.EncodeToString(b), strings.Repeat("ab", 32)+"0102000000")

	_, err = ExecutableDeployItem{}.Bytes()
	assert.ErrorIs(t, err, ErrEmptyItem)
}

func TestDeployJSON(t *testing.T) {
	_, pub := testKey(t)
	d, err := NewBuilder("casper-test").Build(buildParams(t, pub))
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))
	header := wire["header"].(map[string]any)
	assert.Equal(t, "2026-03-01T12:30:45.123Z", header["timestamp"])
	assert.Equal(t, "30m", header["ttl"])
	assert.Equal(t, pub.Hex(), header["account"])
	assert.Equal(t, []any{}, header["dependencies"])
	assert.Equal(t, d.Hash.String(), wire["hash"])
	assert.Equal(t, []any{}, wire["approvals"])

	session := wire["session"].(map[string]any)["StoredVersionedContractByHash"].(map[string]any)
	assert.Equal(t, strings.Repeat("ab", 32), session["hash"])
	assert.Equal(t, "approve", session["entry_point"])
	assert.Contains(t, session, "version")
	assert.Nil(t, session["version"])

	payment := wire["payment"].(map[string]any)["ModuleBytes"].(map[string]any)
	assert.Equal(t, "", payment["module_bytes"])

	back, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, d.Hash, back.Hash)
	assert.Equal(t, d.Header.BodyHash, back.Header.BodyHash)
	assert.Equal(t, HeaderHash(back.Header), back.Hash)
	body, err := BodyHash(back.Payment, back.Session)
	require.NoError(t, err)
	assert.Equal(t, back.Header.BodyHash, body)

	envelope, err := json.Marshal(map[string]any{"deploy": d})
	require.NoError(t, err)
	fromEnv, err := Unmarshal(envelope)
	require.NoError(t, err)
	assert.Equal(t, d.Hash, fromEnv.Hash)
}

func TestTTL(t *testing.T) {
	tests := []struct {
		d    time.Duration
		text string
	}{
		{30 * time.Minute, "30m"},
		{90 * time.Minute, "1h 30m"},
		{24 * time.Hour, "1day"},
		{1500 * time.Millisecond, "1s 500ms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.text, FormatTTL(tt.d))
		got, err := ParseTTL(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.d, got)
	}

	got, err := ParseTTL("2days")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, got)

	for _, bad := range []string{"", "m", "30x", "abc"} {
		_, err := ParseTTL(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeSignature(t *testing.T) {
	raw := strings.Repeat("ab", 64)
	signerEd := "01" + strings.Repeat("11", 32)
	signerSecp := "02" + strings.Repeat("22", 33)

	got, err := NormalizeSignature(signerEd, raw)
	require.NoError(t, err)
	assert.Len(t, got, 130)
	assert.Equal(t, "01"+raw, got)

	got, err = NormalizeSignature(signerSecp, raw)
	require.NoError(t, err)
	assert.Equal(t, "02"+raw, got)

	tagged := "01" + raw
	got, err = NormalizeSignature(signerSecp, tagged)
	require.NoError(t, err)
	assert.Equal(t, tagged, got, "tagged signatures pass through unchanged")

	for _, bad := range []string{"", raw[:126], raw + "ab00", strings.Repeat("zz", 64)} {
		_, err := NormalizeSignature(signerEd, bad)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
}

func TestAddApprovalAndVerify(t *testing.T) {
	priv, pub := testKey(t)
	d, err := NewBuilder("casper-test").Build(buildParams(t, pub))
	require.NoError(t, err)

	assert.ErrorIs(t, d.Verify(), ErrNoApprovals)

	sig := ed25519.Sign(priv, d.Hash[:])
	require.NoError(t, d.AddApproval(pub.Hex(), hex.EncodeToString(sig)))
	require.Len(t, d.Approvals, 1)
	assert.Equal(t, "01"+hex.EncodeToString(sig), d.Approvals[0].Signature)
	require.NoError(t, d.Verify())

	// same approval twice is not duplicated
	require.NoError(t, d.AddApproval(pub.Hex(), "01"+hex.EncodeToString(sig)))
	assert.Len(t, d.Approvals, 1)

	tampered := *d
	tampered.Header.ChainName = "casper"
	assert.ErrorIs(t, tampered.Verify(), ErrDeployHashMismatch)

	tampered = *d
	tampered.Header.BodyHash[0] ^= 0xff
	assert.ErrorIs(t, tampered.Verify(), ErrBodyHashMismatch)

	bad := *d
	badSig := make([]byte, 64)
	bad.Approvals = []Approval{{Signer: pub, Signature: "01" + hex.EncodeToString(badSig)}}
	assert.ErrorIs(t, bad.Verify(), ErrInvalidSignature)
}

func mustAddress(s string) keys.Address {
	a, err := keys.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
