package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/casper/signer"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/swapmath"
)

// stdinIsTerminal is swapped out in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var errAborted = errors.New("aborted")

// newFacade wires a DEX service against the configured node.
func newFacade() (dex.Facade, error) {
	chain, err := chainConfig()
	if err != nil {
		return nil, err
	}
	cfg, err := dex.NewConfig(chain)
	if err != nil {
		return nil, fmt.Errorf("invalid chain config: %w", err)
	}

	logger := newLogger()
	gw := rpc.New(chain.NodeAddress, rpc.WithLogger(logger))
	svc := dex.New(cfg, gw, dex.WithLogger(logger))
	return dex.LoggingMiddleware(logger)(svc), nil
}

// commandContext is cancelled on SIGINT so long polls can be interrupted.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// loadSigner returns nil when no key is configured.
func loadSigner() (signer.Signer, error) {
	path := getKeyFile()
	if path == "" {
		return nil, nil
	}
	s, err := signer.LoadPEM(path)
	if err != nil {
		return nil, fmt.Errorf("loading key %s: %w", path, err)
	}
	return s, nil
}

// resolveSender picks the deploy's account: the signing key's public key, or
// --sender when deploys are built for an external signer.
func resolveSender(s signer.Signer, senderHex string) (keys.PublicKey, error) {
	if s != nil {
		pub := s.PublicKey()
		if senderHex != "" && !strings.EqualFold(strings.TrimSpace(senderHex), pub.Hex()) {
			return keys.PublicKey{}, fmt.Errorf("--sender %s does not match key %s", senderHex, pub.Hex())
		}
		return pub, nil
	}
	if senderHex == "" {
		return keys.PublicKey{}, errors.New("--sender or --key is required")
	}
	return keys.ParsePublicKey(senderHex)
}

// parseAccount accepts a public key or an account hash. Empty falls back to
// the signing key's account.
func parseAccount(s string, sgn signer.Signer) (keys.Address, error) {
	if s == "" {
		if sgn == nil {
			return keys.Address{}, errors.New("account argument or --key is required")
		}
		return sgn.PublicKey().AccountHash(), nil
	}
	if pub, err := keys.ParsePublicKey(s); err == nil {
		return pub.AccountHash(), nil
	}
	return keys.ParseAddressAs(s, keys.KindAccountHash)
}

// parseOptionalAddress parses a recipient or spender; empty is the zero address.
func parseOptionalAddress(s string) (keys.Address, error) {
	if s == "" {
		return keys.Address{}, nil
	}
	if pub, err := keys.ParsePublicKey(s); err == nil {
		return pub.AccountHash(), nil
	}
	return keys.ParseAddressAs(s, keys.KindAccountHash)
}

// parseAmount reads a decimal token amount, or integer base units with --raw.
func parseAmount(name, s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	if rawUnits {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("--%s: invalid base unit amount %q", name, s)
		}
		return v, nil
	}
	v, err := swapmath.ParseUnits(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func tokenDecimals(svc dex.Facade, symbol string) (uint8, error) {
	for _, t := range svc.Tokens() {
		if strings.EqualFold(t.Symbol, symbol) {
			return t.Decimals, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", dex.ErrUnknownToken, symbol)
}

// broadcastOptions are shared by every command that produces a deploy.
type broadcastOptions struct {
	sender string
	out    string
	wait   bool
}

func (o *broadcastOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.sender, "sender", "", "sender public key when building for an external signer")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "write the deploy JSON to this file instead of broadcasting")
	cmd.Flags().BoolVar(&o.wait, "wait", false, "wait for the execution result after broadcasting")
}

// finish signs d when a key is available, then either writes it out or
// broadcasts it. Without a key the unsigned deploy is written to --out or
// stdout for an external signer.
func (o *broadcastOptions) finish(cmd *cobra.Command, svc dex.Facade, s signer.Signer, d *deploy.Deploy) error {
	if s != nil {
		if err := signer.SignDeploy(d, s); err != nil {
			return err
		}
	}
	if s == nil || o.out != "" {
		return writeDeploy(cmd.OutOrStdout(), o.out, d)
	}
	return broadcast(cmd, svc, d, o.wait)
}

func writeDeploy(stdout io.Writer, path string, d *deploy.Deploy) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding deploy: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing deploy: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote deploy %s to %s\n", d.Hash, path)
	return nil
}

// broadcast submits a signed deploy, asking first when attached to a terminal.
func broadcast(cmd *cobra.Command, svc dex.Facade, d *deploy.Deploy, wait bool) error {
	out := cmd.OutOrStdout()
	if !assumeYes && stdinIsTerminal() {
		summary := fmt.Sprintf("Deploy %s\n  entry point: %s\n  account:     %s\n  chain:       %s\n  expires:     %s",
			d.Hash, d.Session.EntryPoint(), d.Header.Account, d.Header.ChainName, d.Expiry().Format("2006-01-02 15:04:05 MST"))
		ok, err := askYesNo(cmd.InOrStdin(), out, summary+"\nBroadcast? [y/N]: ")
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	hash, err := svc.Submit(ctx, d)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	fmt.Fprintf(out, "Submitted %s\n", hash)
	if !wait {
		return nil
	}
	return waitFor(ctx, out, svc, hash)
}

func waitFor(ctx context.Context, out io.Writer, svc dex.Facade, hash deploy.Hash) error {
	fmt.Fprintln(out, "Waiting for execution...")
	res, err := svc.Wait(ctx, hash)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", hash, err)
	}
	return printResult(out, hash, res)
}

func printResult(out io.Writer, hash deploy.Hash, res rpc.ExecutionResult) error {
	switch res.Status {
	case rpc.StatusSuccess:
		fmt.Fprintf(out, "✅ %s executed", hash)
		if res.Cost != "" {
			fmt.Fprintf(out, " (cost %s motes)", res.Cost)
		}
		fmt.Fprintln(out)
		return nil
	case rpc.StatusFailure:
		return fmt.Errorf("deploy %s failed: %s", hash, res.ErrorMessage)
	case rpc.StatusTimeout:
		return fmt.Errorf("deploy %s not executed after %d attempts", hash, res.Attempts)
	default:
		fmt.Fprintf(out, "%s is %s\n", hash, res.Status)
		return nil
	}
}

func askYesNo(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
