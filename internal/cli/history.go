package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ectoplasm/dexclient/pkg/client"
)

func createHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Deploy history recorded by ectoplasm-server",
	}

	cmd.AddCommand(createHistoryListCmd())
	cmd.AddCommand(createHistoryInfoCmd())

	return cmd
}

func createHistoryListCmd() *cobra.Command {
	var filter client.HistoryFilter
	var mine bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deploys",
		Long: `List deploys submitted through ectoplasm-server, newest first.

EXAMPLES:
  # All deploys
  ectoplasm history list

  # Failed swaps of the --key account
  ectoplasm history list --mine --operation swap --status failure

  # Next page
  ectoplasm history list --cursor 42
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				s, err := loadSigner()
				if err != nil {
					return err
				}
				if s == nil {
					return fmt.Errorf("--mine needs --key")
				}
				filter.Account = s.PublicKey().Hex()
			}

			c := client.New(getServer())
			resp, err := c.ListDeploys(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list deploys: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return printHistory(out, resp)
		},
	}

	cmd.Flags().StringVar(&filter.Account, "account", "", "filter by account public key")
	cmd.Flags().BoolVar(&mine, "mine", false, "filter by the --key account")
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "filter by operation (approve, mint, swap, add_liquidity, remove_liquidity)")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by status (pending, success, failure, timeout)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&filter.Cursor, "cursor", "", "pagination cursor from a previous page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printHistory(out io.Writer, resp *client.ListDeploysResponse) error {
	if len(resp.Data) == 0 {
		fmt.Fprintln(out, "No deploys found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tOPERATION\tSTATUS\tACCOUNT\tSUBMITTED")
	for _, d := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateHash(d.DeployHash),
			d.Operation,
			d.Status,
			truncateHash(d.Account),
			d.SubmittedAt.Format("2006-01-02 15:04:05"),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if resp.Pagination.HasMore {
		fmt.Fprintf(out, "\n(showing %d deploys, more with --cursor %s)\n", len(resp.Data), resp.Pagination.NextCursor)
	}
	return nil
}

func createHistoryInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <deploy-hash>",
		Short: "Show one recorded deploy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(getServer())
			d, err := c.GetDeploy(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get deploy: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			printHistoryDeploy(out, d)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printHistoryDeploy(out io.Writer, d *client.Deploy) {
	fmt.Fprintf(out, "Deploy:      %s\n", d.DeployHash)
	fmt.Fprintf(out, "Operation:   %s (%s)\n", d.Operation, d.EntryPoint)
	fmt.Fprintf(out, "Status:      %s\n", d.Status)
	if d.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", d.ErrorMessage)
	}
	fmt.Fprintf(out, "Account:     %s\n", d.Account)
	if d.Target != "" {
		fmt.Fprintf(out, "Contract:    %s\n", d.Target)
	}
	fmt.Fprintf(out, "Chain:       %s\n", d.ChainName)
	if d.PaymentMotes != "" {
		fmt.Fprintf(out, "Payment:     %s motes\n", d.PaymentMotes)
	}
	if d.Cost != "" {
		fmt.Fprintf(out, "Cost:        %s motes\n", d.Cost)
	}
	if d.BlockHash != "" {
		fmt.Fprintf(out, "Block:       %s\n", d.BlockHash)
	}
	fmt.Fprintf(out, "Submitted:   %s\n", d.SubmittedAt.Format("2006-01-02 15:04:05 MST"))
	if !d.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated:     %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
