package signer

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

func buildDeploy(t *testing.T, account keys.PublicKey) *deploy.Deploy {
	t.Helper()
	args := clvalue.NewArgs()
	require.NoError(t, args.Add("amount", clvalue.NewU256(big.NewInt(1))))
	d, err := deploy.NewBuilder("casper-test").Build(deploy.BuildParams{
		Target:       mustAddress("contract-package-" + strings.Repeat("ab", 32)),
		EntryPoint:   "approve",
		Args:         args,
		PaymentMotes: big.NewInt(3_000_000_000),
		Account:      account,
		Now:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return d
}

func TestEd25519SignDeploy(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	s := NewEd25519(ed25519.NewKeyFromSeed(seed))

	d := buildDeploy(t, s.PublicKey())
	require.NoError(t, SignDeploy(d, s))
	require.Len(t, d.Approvals, 1)
	assert.Len(t, d.Approvals[0].Signature, 130)
	assert.True(t, strings.HasPrefix(d.Approvals[0].Signature, "01"))
	assert.NoError(t, d.Verify())
}

func TestSecp256k1SignDeploy(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	s := NewSecp256k1(priv)

	d := buildDeploy(t, s.PublicKey())
	require.NoError(t, SignDeploy(d, s))
	require.Len(t, d.Approvals, 1)
	assert.True(t, strings.HasPrefix(d.Approvals[0].Signature, "02"))
	assert.NoError(t, d.Verify())
}

func TestParsePEMEd25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret_key.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	s, err := LoadPEM(path)
	require.NoError(t, err)
	assert.Equal(t, keys.AlgorithmEd25519, s.PublicKey().Algorithm)
	assert.Equal(t, []byte(priv.Public().(ed25519.PublicKey)), s.PublicKey().Raw)
}

func TestParsePEMSecp256k1(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	der, err := asn1.Marshal(ecPrivateKey{
		Version:       1,
		PrivateKey:    priv.Serialize(),
		NamedCurveOID: asn1.ObjectIdentifier{1, 3, 132, 0, 10},
	})
	require.NoError(t, err)

	s, err := ParsePEM(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.Equal(t, keys.AlgorithmSecp256k1, s.PublicKey().Algorithm)
	assert.Equal(t, priv.PubKey().SerializeCompressed(), s.PublicKey().Raw)
}

func TestParsePEMErrors(t *testing.T) {
	_, err := ParsePEM([]byte("not a pem"))
	assert.ErrorIs(t, err, ErrNoPEMBlock)

	_, err = ParsePEM(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{1}}))
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	_, err = LoadPEM(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

func mustAddress(s string) keys.Address {
	a, err := keys.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
