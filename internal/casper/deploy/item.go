package deploy

import (
	"errors"

	"github.com/ectoplasm/dexclient/internal/casper/clvalue"
)

const (
	itemTagModuleBytes                   byte = 0
	itemTagStoredVersionedContractByHash byte = 3
)

var ErrEmptyItem = errors.New("executable deploy item has no variant set")

// ModuleBytes runs wasm; with empty module bytes the node runs standard payment.
type ModuleBytes struct {
	ModuleBytes hexBytes      `json:"module_bytes"`
	Args        *clvalue.Args `json:"args"`
}

// StoredVersionedContractByHash calls an entry point on a contract package.
// A nil Version means the latest enabled version.
type StoredVersionedContractByHash struct {
	Hash       Hash          `json:"hash"`
	Version    *uint32       `json:"version"`
	EntryPoint string        `json:"entry_point"`
	Args       *clvalue.Args `json:"args"`
}

// ExecutableDeployItem is a tagged union; exactly one field is set.
type ExecutableDeployItem struct {
	ModuleBytes                   *ModuleBytes                   `json:"ModuleBytes,omitempty"`
	StoredVersionedContractByHash *StoredVersionedContractByHash `json:"StoredVersionedContractByHash,omitempty"`
}

// Bytes returns the canonical serialization used for the body hash.
func (it ExecutableDeployItem) Bytes() ([]byte, error) {
	switch {
	case it.ModuleBytes != nil:
		buf := []byte{itemTagModuleBytes}
		buf = clvalue.AppendBytes(buf, it.ModuleBytes.ModuleBytes)
		return append(buf, it.ModuleBytes.Args.Bytes()...), nil
	case it.StoredVersionedContractByHash != nil:
		s := it.StoredVersionedContractByHash
		buf := []byte{itemTagStoredVersionedContractByHash}
		buf = append(buf, s.Hash[:]...)
		if s.Version == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			buf = clvalue.AppendU32(buf, *s.Version)
		}
		buf = clvalue.AppendString(buf, s.EntryPoint)
		return append(buf, s.Args.Bytes()...), nil
	default:
		return nil, ErrEmptyItem
	}
}

// Args returns the item's runtime arguments.
func (it ExecutableDeployItem) Args() *clvalue.Args {
	switch {
	case it.ModuleBytes != nil:
		return it.ModuleBytes.Args
	case it.StoredVersionedContractByHash != nil:
		return it.StoredVersionedContractByHash.Args
	}
	return nil
}

// EntryPoint returns the session entry point, or "" for module bytes.
func (it ExecutableDeployItem) EntryPoint() string {
	if it.StoredVersionedContractByHash != nil {
		return it.StoredVersionedContractByHash.EntryPoint
	}
	return ""
}
