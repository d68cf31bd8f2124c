package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	server    string
	node      string
	keyFile   string
	rawUnits  bool
	assumeYes bool
	verbose   bool
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ectoplasm",
		Short: "Ectoplasm DEX client",
		Long: `ectoplasm builds, signs and submits Ectoplasm DEX deploys on a Casper network,
reads token balances and quotes swaps.

Chain settings come from ectoplasm.toml, environment variables (NODE_ADDRESS,
CHAIN_NAME, ROUTER_PACKAGE_HASH, ...) and the flags below.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: ectoplasm.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "ectoplasm-server URL for history commands")
	rootCmd.PersistentFlags().StringVar(&node, "node", "", "Casper node address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "", "secret key PEM used to sign deploys")
	rootCmd.PersistentFlags().BoolVar(&rawUnits, "raw", false, "amounts are integer base units instead of decimal token units")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "broadcast without asking for confirmation")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log node calls to stderr")

	// Add subcommands
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createTokensCmd())
	rootCmd.AddCommand(createQuoteCmd())
	rootCmd.AddCommand(createBalanceCmd())
	rootCmd.AddCommand(createApproveCmd())
	rootCmd.AddCommand(createMintCmd())
	rootCmd.AddCommand(createSwapCmd())
	rootCmd.AddCommand(createLiquidityCmd())
	rootCmd.AddCommand(createSubmitCmd())
	rootCmd.AddCommand(createWaitCmd())
	rootCmd.AddCommand(createHistoryCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, project config, or global config
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("ECTOPLASM_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Global config (YAML)
	if global := loadGlobalConfigSilent(); global != nil && global.Server != "" {
		return global.Server
	}

	// 5. Default
	return "http://localhost:8080"
}

// getKeyFile returns the signing key path from flag, env, project config, or
// global config. Empty means deploys are left unsigned.
func getKeyFile() string {
	path := keyFile
	if path == "" {
		path = os.Getenv("ECTOPLASM_KEY")
	}
	if path == "" {
		if config := loadProjectConfigSilent(); config != nil {
			path = config.Key
		}
	}
	if path == "" {
		if global := loadGlobalConfigSilent(); global != nil {
			path = global.KeyFile
		}
	}
	return expandHome(path)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
