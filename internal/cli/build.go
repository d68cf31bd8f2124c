package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/signer"
	"github.com/ectoplasm/dexclient/internal/dex"
)

// lpDecimals is the precision of the pair's liquidity token.
const lpDecimals = 9

// buildContext is what every deploy-building command needs before it can
// fill in its request.
type buildContext struct {
	svc    dex.Facade
	signer signer.Signer
	sender keys.PublicKey
}

func newBuildContext(opts *broadcastOptions) (*buildContext, error) {
	s, err := loadSigner()
	if err != nil {
		return nil, err
	}
	sender, err := resolveSender(s, opts.sender)
	if err != nil {
		return nil, err
	}
	svc, err := newFacade()
	if err != nil {
		return nil, err
	}
	return &buildContext{svc: svc, signer: s, sender: sender}, nil
}

// runBuild builds a deploy with build and hands it to the broadcast options.
func runBuild(cmd *cobra.Command, opts *broadcastOptions, build func(*buildContext) (*deploy.Deploy, error)) error {
	bc, err := newBuildContext(opts)
	if err != nil {
		return err
	}
	d, err := build(bc)
	if err != nil {
		return err
	}
	return opts.finish(cmd, bc.svc, bc.signer, d)
}

func createApproveCmd() *cobra.Command {
	var opts broadcastOptions
	var token, spender, amount string

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a spender (default: the router) for a token amount",
		Long: `Build an approve deploy against a CEP-18 token package.

EXAMPLES:
  # Sign and broadcast
  ectoplasm approve --token ECTO --amount 1000 --key secret_key.pem

  # Unsigned deploy for an external signer
  ectoplasm approve --token WCSPR --amount 50 --sender 01ab... --out approve.json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &opts, func(bc *buildContext) (*deploy.Deploy, error) {
				decimals, err := tokenDecimals(bc.svc, token)
				if err != nil {
					return nil, err
				}
				amt, err := parseAmount("amount", amount, decimals)
				if err != nil {
					return nil, err
				}
				sp, err := parseOptionalAddress(spender)
				if err != nil {
					return nil, fmt.Errorf("--spender: %w", err)
				}
				return bc.svc.Approve(cmd.Context(), dex.ApproveRequest{
					Token:   token,
					Spender: sp,
					Amount:  amt,
					Sender:  bc.sender,
				})
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token symbol")
	cmd.Flags().StringVar(&spender, "spender", "", "spender address (default: router contract)")
	cmd.Flags().StringVar(&amount, "amount", "", "allowance amount")
	cmd.MarkFlagRequired("token")
	opts.addFlags(cmd)

	return cmd
}

func createMintCmd() *cobra.Command {
	var opts broadcastOptions
	var token, to, amount string

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint test tokens (requires minter rights)",
		Long: `Build a mint deploy against a CEP-18 token package. Only accounts with
minter rights on the token can execute it.

EXAMPLES:
  ectoplasm mint --token ECTO --amount 1000 --key secret_key.pem --wait
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &opts, func(bc *buildContext) (*deploy.Deploy, error) {
				decimals, err := tokenDecimals(bc.svc, token)
				if err != nil {
					return nil, err
				}
				amt, err := parseAmount("amount", amount, decimals)
				if err != nil {
					return nil, err
				}
				recipient, err := parseOptionalAddress(to)
				if err != nil {
					return nil, fmt.Errorf("--to: %w", err)
				}
				return bc.svc.Mint(cmd.Context(), dex.MintRequest{
					Token:  token,
					To:     recipient,
					Amount: amt,
					Sender: bc.sender,
				})
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token symbol")
	cmd.Flags().StringVar(&to, "to", "", "recipient (default: sender account)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to mint")
	cmd.MarkFlagRequired("token")
	opts.addFlags(cmd)

	return cmd
}

func createSwapCmd() *cobra.Command {
	var opts broadcastOptions
	var path []string
	var amountIn, minOut, to string
	var deadline time.Duration

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap an exact input along a token path",
		Long: `Build a swap_exact_tokens_for_tokens deploy on the router. The input must
be approved for the router first.

Use 'ectoplasm quote' to work out --min-out from the pool reserves.

EXAMPLES:
  ectoplasm swap --path WCSPR,ECTO --amount-in 10 --min-out 48.5 --key secret_key.pem --wait
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &opts, func(bc *buildContext) (*deploy.Deploy, error) {
				if len(path) < 2 {
					return nil, fmt.Errorf("--path needs at least two tokens")
				}
				decIn, err := tokenDecimals(bc.svc, path[0])
				if err != nil {
					return nil, err
				}
				decOut, err := tokenDecimals(bc.svc, path[len(path)-1])
				if err != nil {
					return nil, err
				}
				in, err := parseAmount("amount-in", amountIn, decIn)
				if err != nil {
					return nil, err
				}
				out, err := parseAmount("min-out", minOut, decOut)
				if err != nil {
					return nil, err
				}
				recipient, err := parseOptionalAddress(to)
				if err != nil {
					return nil, fmt.Errorf("--to: %w", err)
				}
				symbols := make([]string, len(path))
				for i, p := range path {
					symbols[i] = strings.TrimSpace(p)
				}
				return bc.svc.Swap(cmd.Context(), dex.SwapRequest{
					AmountIn:     in,
					AmountOutMin: out,
					Path:         symbols,
					To:           recipient,
					DeadlineIn:   deadline,
					Sender:       bc.sender,
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&path, "path", nil, "token symbols from input to output, comma separated")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "exact input amount")
	cmd.Flags().StringVar(&minOut, "min-out", "0", "minimum output amount")
	cmd.Flags().StringVar(&to, "to", "", "recipient (default: sender account)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "swap deadline from now (default: deploy TTL)")
	opts.addFlags(cmd)

	return cmd
}

func createLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liquidity",
		Short: "Add or remove pool liquidity",
	}

	cmd.AddCommand(createAddLiquidityCmd())
	cmd.AddCommand(createRemoveLiquidityCmd())

	return cmd
}

func createAddLiquidityCmd() *cobra.Command {
	var opts broadcastOptions
	var tokenA, tokenB, amountA, amountB, minA, minB, to string
	var deadline time.Duration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Deposit a token pair into its pool",
		Long: `Build an add_liquidity deploy on the router. Both tokens must be approved
for the router first.

EXAMPLES:
  ectoplasm liquidity add --token-a WCSPR --amount-a 100 --token-b ECTO --amount-b 100 --key secret_key.pem
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &opts, func(bc *buildContext) (*deploy.Deploy, error) {
				decA, err := tokenDecimals(bc.svc, tokenA)
				if err != nil {
					return nil, err
				}
				decB, err := tokenDecimals(bc.svc, tokenB)
				if err != nil {
					return nil, err
				}
				req := dex.AddLiquidityRequest{
					TokenA:     tokenA,
					TokenB:     tokenB,
					DeadlineIn: deadline,
					Sender:     bc.sender,
				}
				if req.AmountADesired, err = parseAmount("amount-a", amountA, decA); err != nil {
					return nil, err
				}
				if req.AmountBDesired, err = parseAmount("amount-b", amountB, decB); err != nil {
					return nil, err
				}
				if req.AmountAMin, err = parseAmount("min-a", minA, decA); err != nil {
					return nil, err
				}
				if req.AmountBMin, err = parseAmount("min-b", minB, decB); err != nil {
					return nil, err
				}
				if req.To, err = parseOptionalAddress(to); err != nil {
					return nil, fmt.Errorf("--to: %w", err)
				}
				return bc.svc.AddLiquidity(cmd.Context(), req)
			})
		},
	}

	cmd.Flags().StringVar(&tokenA, "token-a", "WCSPR", "first token symbol")
	cmd.Flags().StringVar(&tokenB, "token-b", "ECTO", "second token symbol")
	cmd.Flags().StringVar(&amountA, "amount-a", "", "desired amount of token A")
	cmd.Flags().StringVar(&amountB, "amount-b", "", "desired amount of token B")
	cmd.Flags().StringVar(&minA, "min-a", "0", "minimum amount of token A")
	cmd.Flags().StringVar(&minB, "min-b", "0", "minimum amount of token B")
	cmd.Flags().StringVar(&to, "to", "", "LP token recipient (default: sender account)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "deadline from now (default: deploy TTL)")
	opts.addFlags(cmd)

	return cmd
}

func createRemoveLiquidityCmd() *cobra.Command {
	var opts broadcastOptions
	var tokenA, tokenB, liquidity, minA, minB, to string
	var deadline time.Duration

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Burn LP tokens for the underlying pair",
		Long: `Build a remove_liquidity deploy on the router. The pair's LP token must be
approved for the router first.

EXAMPLES:
  ectoplasm liquidity remove --liquidity 10 --key secret_key.pem --wait
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &opts, func(bc *buildContext) (*deploy.Deploy, error) {
				decA, err := tokenDecimals(bc.svc, tokenA)
				if err != nil {
					return nil, err
				}
				decB, err := tokenDecimals(bc.svc, tokenB)
				if err != nil {
					return nil, err
				}
				req := dex.RemoveLiquidityRequest{
					TokenA:     tokenA,
					TokenB:     tokenB,
					DeadlineIn: deadline,
					Sender:     bc.sender,
				}
				if req.Liquidity, err = parseAmount("liquidity", liquidity, lpDecimals); err != nil {
					return nil, err
				}
				if req.AmountAMin, err = parseAmount("min-a", minA, decA); err != nil {
					return nil, err
				}
				if req.AmountBMin, err = parseAmount("min-b", minB, decB); err != nil {
					return nil, err
				}
				if req.To, err = parseOptionalAddress(to); err != nil {
					return nil, fmt.Errorf("--to: %w", err)
				}
				return bc.svc.RemoveLiquidity(cmd.Context(), req)
			})
		},
	}

	cmd.Flags().StringVar(&tokenA, "token-a", "WCSPR", "first token symbol")
	cmd.Flags().StringVar(&tokenB, "token-b", "ECTO", "second token symbol")
	cmd.Flags().StringVar(&liquidity, "liquidity", "", "LP tokens to burn")
	cmd.Flags().StringVar(&minA, "min-a", "0", "minimum amount of token A")
	cmd.Flags().StringVar(&minB, "min-b", "0", "minimum amount of token B")
	cmd.Flags().StringVar(&to, "to", "", "recipient of the pair tokens (default: sender account)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "deadline from now (default: deploy TTL)")
	opts.addFlags(cmd)

	return cmd
}
