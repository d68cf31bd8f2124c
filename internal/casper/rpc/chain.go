package rpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
)

// JSON-RPC methods used by the client.
const (
	MethodStateRootHash  = "chain_get_state_root_hash"
	MethodGetItem        = "state_get_item"
	MethodDictionaryItem = "state_get_dictionary_item"
	MethodAccountInfo    = "state_get_account_info"
	MethodGetBalance     = "state_get_balance"
	MethodPutDeploy      = "account_put_deploy"
	MethodGetDeploy      = "info_get_deploy"
	MethodGetStatus      = "info_get_status"
)

// LatestStateRoot returns the state root hash of the latest block.
func (c *Client) LatestStateRoot(ctx context.Context) (string, error) {
	var res struct {
		StateRootHash *string `json:"state_root_hash"`
	}
	if err := c.Call(ctx, MethodStateRootHash, []any{}, &res); err != nil {
		return "", err
	}
	if res.StateRootHash == nil || *res.StateRootHash == "" {
		return "", &DecodingError{Method: MethodStateRootHash, Field: "state_root_hash"}
	}
	return *res.StateRootHash, nil
}

// NamedKey is one entry of a contract's named keys.
type NamedKey struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// NamedKeys maps a contract's named key names to their key strings.
type NamedKeys map[string]string

// Lookup returns the key named name parsed as an address.
func (n NamedKeys) Lookup(name string) (keys.Address, error) {
	raw, ok := n[name]
	if !ok {
		return keys.Address{}, fmt.Errorf("named key %q: %w", name, ErrNotFound)
	}
	return keys.ParseAddress(raw)
}

// GetContractNamedKeys reads the named keys of a contract at stateRoot.
func (c *Client) GetContractNamedKeys(ctx context.Context, stateRoot string, contract keys.Address) (NamedKeys, error) {
	params := map[string]any{
		"state_root_hash": stateRoot,
		"key":             keys.PrefixContractHash + contract.Hex(),
		"path":            []string{},
	}
	var res struct {
		StoredValue *struct {
			Contract *struct {
				NamedKeys []NamedKey `json:"named_keys"`
			} `json:"Contract"`
		} `json:"stored_value"`
	}
	if err := c.Call(ctx, MethodGetItem, params, &res); err != nil {
		return nil, notFound(err, "contract "+contract.String())
	}
	if res.StoredValue == nil || res.StoredValue.Contract == nil {
		return nil, &DecodingError{Method: MethodGetItem, Field: "stored_value.Contract"}
	}
	out := make(NamedKeys, len(res.StoredValue.Contract.NamedKeys))
	for _, nk := range res.StoredValue.Contract.NamedKeys {
		out[nk.Name] = nk.Key
	}
	return out, nil
}

// QueryDictionaryItem reads one item of the dictionary seeded by seed.
// A missing item yields an error matching ErrNotFound.
func (c *Client) QueryDictionaryItem(ctx context.Context, stateRoot string, seed keys.Address, itemKey string) (*CLValue, error) {
	params := map[string]any{
		"state_root_hash": stateRoot,
		"dictionary_identifier": map[string]any{
			"URef": map[string]string{
				"seed_uref":           seed.String(),
				"dictionary_item_key": itemKey,
			},
		},
	}
	var res struct {
		StoredValue *struct {
			CLValue *CLValue `json:"CLValue"`
		} `json:"stored_value"`
	}
	if err := c.Call(ctx, MethodDictionaryItem, params, &res); err != nil {
		return nil, notFound(err, "dictionary item "+itemKey)
	}
	if res.StoredValue == nil || res.StoredValue.CLValue == nil {
		return nil, &DecodingError{Method: MethodDictionaryItem, Field: "stored_value.CLValue"}
	}
	return res.StoredValue.CLValue, nil
}

// GetAccountMainPurse returns the main purse URef of the account owning pub.
func (c *Client) GetAccountMainPurse(ctx context.Context, pub keys.PublicKey) (keys.Address, error) {
	params := map[string]any{"public_key": pub.Hex()}
	var res struct {
		Account *struct {
			MainPurse string `json:"main_purse"`
		} `json:"account"`
	}
	if err := c.Call(ctx, MethodAccountInfo, params, &res); err != nil {
		return keys.Address{}, notFound(err, "account "+pub.Hex())
	}
	if res.Account == nil || res.Account.MainPurse == "" {
		return keys.Address{}, &DecodingError{Method: MethodAccountInfo, Field: "account.main_purse"}
	}
	purse, err := keys.ParseAddress(res.Account.MainPurse)
	if err != nil {
		return keys.Address{}, &DecodingError{Method: MethodAccountInfo, Field: "account.main_purse", Err: err}
	}
	return purse, nil
}

// GetPurseBalance returns the motes held by purse.
func (c *Client) GetPurseBalance(ctx context.Context, stateRoot string, purse keys.Address) (*big.Int, error) {
	params := map[string]any{
		"state_root_hash": stateRoot,
		"purse_uref":      purse.String(),
	}
	var res struct {
		BalanceValue string `json:"balance_value"`
	}
	if err := c.Call(ctx, MethodGetBalance, params, &res); err != nil {
		return nil, notFound(err, "purse "+purse.String())
	}
	v, ok := new(big.Int).SetString(res.BalanceValue, 10)
	if !ok {
		return nil, &DecodingError{Method: MethodGetBalance, Field: "balance_value", Err: fmt.Errorf("not an integer: %q", res.BalanceValue)}
	}
	return v, nil
}

// SubmitDeploy sends a signed deploy. Node rejections come back as *RPCError
// and are never retried here.
func (c *Client) SubmitDeploy(ctx context.Context, d *deploy.Deploy) (deploy.Hash, error) {
	var res struct {
		DeployHash *deploy.Hash `json:"deploy_hash"`
	}
	if err := c.Call(ctx, MethodPutDeploy, map[string]any{"deploy": d}, &res); err != nil {
		return deploy.Hash{}, err
	}
	if res.DeployHash == nil {
		return deploy.Hash{}, &DecodingError{Method: MethodPutDeploy, Field: "deploy_hash"}
	}
	return *res.DeployHash, nil
}

// NodeStatus is the part of info_get_status the client uses.
type NodeStatus struct {
	APIVersion    string `json:"api_version"`
	ChainspecName string `json:"chainspec_name"`
	BuildVersion  string `json:"build_version"`
}

// GetStatus returns the node's status.
func (c *Client) GetStatus(ctx context.Context) (*NodeStatus, error) {
	var res NodeStatus
	if err := c.Call(ctx, MethodGetStatus, []any{}, &res); err != nil {
		return nil, err
	}
	if res.APIVersion == "" {
		return nil, &DecodingError{Method: MethodGetStatus, Field: "api_version"}
	}
	return &res, nil
}
