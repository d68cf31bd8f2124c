package cli

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ectoplasm/dexclient/internal/casper/keys"
	"github.com/ectoplasm/dexclient/internal/casper/signer"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/swapmath"
)

// cspr has 9 decimals (1 CSPR = 1e9 motes)
const csprDecimals = 9

func createTokensCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List configured tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newFacade()
			if err != nil {
				return err
			}
			tokens := svc.Tokens()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tokens)
			}

			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens configured")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tDECIMALS\tPACKAGE\tCONTRACT")
			for _, t := range tokens {
				contract := "-"
				if !t.Contract.IsZero() {
					contract = truncateHash(t.Contract.String())
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.Symbol, t.Decimals, truncateHash(t.Package.String()), contract)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createQuoteCmd() *cobra.Command {
	var tokenIn, tokenOut string
	var amountIn, reserveIn, reserveOut string
	var slippageBps uint32
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given pool reserves",
		Long: `Compute the constant product output for an exact input, with the 0.3% fee,
and the minimum output after slippage.

Amounts use the decimals of --in (input and its reserve) and --out (output
reserve). With --raw, or without token symbols, amounts are base units.

EXAMPLES:
  ectoplasm quote --in WCSPR --out ECTO --amount-in 10 --reserve-in 1000 --reserve-out 5000
  ectoplasm quote --raw --amount-in 1000 --reserve-in 1000000 --reserve-out 1000000 --slippage-bps 100
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newFacade()
			if err != nil {
				return err
			}

			var decIn, decOut uint8
			if tokenIn != "" && tokenOut != "" {
				if decIn, err = tokenDecimals(svc, tokenIn); err != nil {
					return err
				}
				if decOut, err = tokenDecimals(svc, tokenOut); err != nil {
					return err
				}
			} else if !rawUnits {
				return fmt.Errorf("--in and --out are required unless --raw is set")
			}

			req := dex.QuoteRequest{TokenIn: tokenIn, TokenOut: tokenOut, SlippageBps: slippageBps}
			if req.AmountIn, err = parseAmount("amount-in", amountIn, decIn); err != nil {
				return err
			}
			if req.ReserveIn, err = parseAmount("reserve-in", reserveIn, decIn); err != nil {
				return err
			}
			if req.ReserveOut, err = parseAmount("reserve-out", reserveOut, decOut); err != nil {
				return err
			}

			q, err := svc.Quote(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			fmt.Fprintf(out, "Amount in:      %s %s\n", swapmath.FormatUnits(q.AmountIn, decIn), tokenIn)
			fmt.Fprintf(out, "Amount out:     %s %s\n", swapmath.FormatUnits(q.AmountOut, decOut), tokenOut)
			fmt.Fprintf(out, "Minimum out:    %s %s (%d bps slippage)\n", swapmath.FormatUnits(q.MinAmountOut, decOut), tokenOut, slippageBps)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenIn, "in", "", "input token symbol")
	cmd.Flags().StringVar(&tokenOut, "out", "", "output token symbol")
	cmd.Flags().StringVar(&amountIn, "amount-in", "", "exact input amount")
	cmd.Flags().StringVar(&reserveIn, "reserve-in", "", "pool reserve of the input token")
	cmd.Flags().StringVar(&reserveOut, "reserve-out", "", "pool reserve of the output token")
	cmd.Flags().Uint32Var(&slippageBps, "slippage-bps", 50, "slippage tolerance in basis points")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read token and CSPR balances from the node",
	}

	cmd.AddCommand(createTokenBalanceCmd())
	cmd.AddCommand(createNativeBalanceCmd())

	return cmd
}

func createTokenBalanceCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "token <symbol> [account]",
		Short: "Show a CEP-18 token balance",
		Long: `Resolve a CEP-18 token balance by probing the token's balances dictionary.

The account is a public key or account-hash; it defaults to the --key account.

EXAMPLES:
  ectoplasm balance token ECTO --key secret_key.pem
  ectoplasm balance token WCSPR account-hash-5a...
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var accountArg string
			if len(args) == 2 {
				accountArg = args[1]
			}
			s := signerOrNil()
			account, err := parseAccount(accountArg, s)
			if err != nil {
				return err
			}

			svc, err := newFacade()
			if err != nil {
				return err
			}
			decimals, err := tokenDecimals(svc, args[0])
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			bal, err := svc.TokenBalance(ctx, args[0], account)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(bal)
			}
			fmt.Fprintf(out, "%s %s\n", swapmath.FormatUnits(bal.Amount, decimals), bal.Token)
			fmt.Fprintf(out, "  account:   %s\n", bal.Account)
			fmt.Fprintf(out, "  raw:       %s\n", bal.Amount)
			if bal.Candidate != "" {
				fmt.Fprintf(out, "  key:       %s\n", bal.Candidate)
			} else {
				fmt.Fprintln(out, "  key:       (no entry found)")
			}
			fmt.Fprintf(out, "  probes:    %d\n", bal.Probes)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createNativeBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cspr [public-key]",
		Short: "Show the CSPR balance of an account's main purse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pub keys.PublicKey
			if len(args) == 1 {
				p, err := keys.ParsePublicKey(args[0])
				if err != nil {
					return err
				}
				pub = p
			} else {
				s := signerOrNil()
				if s == nil {
					return fmt.Errorf("public key argument or --key is required")
				}
				pub = s.PublicKey()
			}

			svc, err := newFacade()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			motes, err := svc.NativeBalance(ctx, pub)
			if err != nil {
				return err
			}
			printNative(cmd, motes)
			return nil
		},
	}

	return cmd
}

func printNative(cmd *cobra.Command, motes *big.Int) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s CSPR (%s motes)\n", swapmath.FormatUnits(motes, csprDecimals), motes)
}

// signerOrNil loads the configured key for read-only commands, which only
// need its account; a broken key file is reported and ignored.
func signerOrNil() signer.Signer {
	s, err := loadSigner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return nil
	}
	return s
}

// truncateHash shortens a prefixed hash for table output.
func truncateHash(s string) string {
	if len(s) <= 24 {
		return s
	}
	return s[:18] + "..." + s[len(s)-6:]
}
