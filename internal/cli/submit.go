package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ectoplasm/dexclient/internal/casper/deploy"
	"github.com/ectoplasm/dexclient/internal/casper/signer"
)

func createSubmitCmd() *cobra.Command {
	var signerHex, signature string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <deploy.json>",
		Short: "Sign (optionally) and broadcast a deploy file",
		Long: `Broadcast a deploy written by a build command with --out.

A signature from an external signer is attached with --signer/--signature;
--key signs locally. Use - to read the deploy from stdin.

EXAMPLES:
  ectoplasm submit swap.json --key secret_key.pem --wait
  ectoplasm submit approve.json --signer 01ab... --signature 01cd...
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDeploy(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			svc, err := newFacade()
			if err != nil {
				return err
			}

			if signature != "" {
				if signerHex == "" {
					signerHex = d.Header.Account.Hex()
				}
				if err := svc.AttachSignature(d, signerHex, signature); err != nil {
					return fmt.Errorf("attaching signature: %w", err)
				}
			}

			s, err := loadSigner()
			if err != nil {
				return err
			}
			if s != nil {
				if err := signer.SignDeploy(d, s); err != nil {
					return err
				}
			}
			if len(d.Approvals) == 0 {
				return fmt.Errorf("deploy %s has no approvals: pass --key or --signature", d.Hash)
			}

			return broadcast(cmd, svc, d, wait)
		},
	}

	cmd.Flags().StringVar(&signerHex, "signer", "", "public key of the external signer (default: deploy account)")
	cmd.Flags().StringVar(&signature, "signature", "", "hex signature of the deploy hash")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the execution result")

	return cmd
}

func readDeploy(stdin io.Reader, path string) (*deploy.Deploy, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading deploy: %w", err)
	}
	d, err := deploy.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing deploy: %w", err)
	}
	return d, nil
}

func createWaitCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "wait <deploy-hash>",
		Short: "Wait for a deploy's execution result",
		Long: `Poll the node until the deploy executes or the configured attempts run out
(DEPLOY_POLL_ATTEMPTS x DEPLOY_POLL_INTERVAL_MS). --once checks a single time.

EXAMPLES:
  ectoplasm wait 5a1b...
  ectoplasm wait 5a1b... --once
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := deploy.ParseHash(args[0])
			if err != nil {
				return err
			}
			svc, err := newFacade()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			if !once {
				return waitFor(ctx, cmd.OutOrStdout(), svc, hash)
			}
			res, err := svc.Status(ctx, hash)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), hash, res)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "check once instead of polling")

	return cmd
}
