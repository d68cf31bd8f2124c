package deploy

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/hdevalence/ed25519consensus"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

const (
	rawSignatureHexLen    = 128
	taggedSignatureHexLen = 130
)

var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrBodyHashMismatch   = errors.New("body hash does not match payment and session")
	ErrDeployHashMismatch = errors.New("deploy hash does not match header")
	ErrNoApprovals        = errors.New("deploy has no approvals")
)

// NormalizeSignature returns the tagged hex form of a signature. Wallets often
// return the 64 raw bytes; the node wants the algorithm tag in front, taken
// from the first byte of the signer's key.
func NormalizeSignature(signerHex, signatureHex string) (string, error) {
	sig := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(signatureHex), "0x"))
	signer := strings.ToLower(strings.TrimSpace(signerHex))
	if _, err := hex.DecodeString(sig); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	switch len(sig) {
	case rawSignatureHexLen:
		if len(signer) < 2 {
			return "", fmt.Errorf("%w: signer key too short to derive tag", ErrInvalidSignature)
		}
		return signer[:2] + sig, nil
	case taggedSignatureHexLen:
		return sig, nil
	default:
		return "", fmt.Errorf("%w: expected %d or %d hex chars, got %d",
			ErrInvalidSignature, rawSignatureHexLen, taggedSignatureHexLen, len(sig))
	}
}

// AddApproval appends a signature by signerHex. The signature is normalized
// but not verified; call Verify before submission.
func (d *Deploy) AddApproval(signerHex, signatureHex string) error {
	signer, err := keys.ParsePublicKey(signerHex)
	if err != nil {
		return err
	}
	sig, err := NormalizeSignature(signer.Hex(), signatureHex)
	if err != nil {
		return err
	}
	for _, a := range d.Approvals {
		if a.Signer.Hex() == signer.Hex() && a.Signature == sig {
			return nil
		}
	}
	d.Approvals = append(d.Approvals, Approval{Signer: signer, Signature: sig})
	return nil
}

// Verify recomputes the body and deploy hashes and checks every approval.
func (d *Deploy) Verify() error {
	body, err := BodyHash(d.Payment, d.Session)
	if err != nil {
		return err
	}
	if body != d.Header.BodyHash {
		return ErrBodyHashMismatch
	}
	if HeaderHash(d.Header) != d.Hash {
		return ErrDeployHashMismatch
	}
	if len(d.Approvals) == 0 {
		return ErrNoApprovals
	}
	for i, a := range d.Approvals {
		if err := VerifySignature(a.Signer, d.Hash, a.Signature); err != nil {
			return fmt.Errorf("approval %d: %w", i, err)
		}
	}
	return nil
}

// VerifySignature checks a tagged signature over a deploy hash.
func VerifySignature(signer keys.PublicKey, hash Hash, taggedSig string) error {
	sig, err := hex.DecodeString(taggedSig)
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("%w: malformed", ErrInvalidSignature)
	}
	if keys.Algorithm(sig[0]) != signer.Algorithm {
		return fmt.Errorf("%w: tag %02x does not match signer algorithm %s", ErrInvalidSignature, sig[0], signer.Algorithm.Name())
	}
	raw := sig[1:]

	switch signer.Algorithm {
	case keys.AlgorithmEd25519:
		if !ed25519consensus.Verify(ed25519.PublicKey(signer.Raw), hash[:], raw) {
			return fmt.Errorf("%w: ed25519 verification failed", ErrInvalidSignature)
		}
		return nil
	case keys.AlgorithmSecp256k1:
		pub, err := btcec.ParsePubKey(signer.Raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		var r, s btcec.ModNScalar
		if overflow := r.SetByteSlice(raw[:32]); overflow {
			return fmt.Errorf("%w: r overflows", ErrInvalidSignature)
		}
		if overflow := s.SetByteSlice(raw[32:]); overflow {
			return fmt.Errorf("%w: s overflows", ErrInvalidSignature)
		}
		digest := sha256.Sum256(hash[:])
		if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
			return fmt.Errorf("%w: secp256k1 verification failed", ErrInvalidSignature)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported algorithm", ErrInvalidSignature)
	}
}
