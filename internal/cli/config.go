package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ectoplasm/dexclient/internal/config"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"ectoplasm.toml", ".ectoplasm.toml"}

// ProjectConfig is the top level of ectoplasm.toml. The [chain] table is read
// separately by config.LoadChain.
type ProjectConfig struct {
	Server string `toml:"server"`
	Key    string `toml:"key,omitempty"`
}

// GlobalConfig is stored in ~/.ectoplasm/config.yaml
type GlobalConfig struct {
	Server  string `yaml:"server"`
	KeyFile string `yaml:"key_file,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())
	cmd.AddCommand(createConfigSetCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var nodeAddress string
	var chainName string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an ectoplasm.toml configuration file in the current directory.

The file holds the server URL and a [chain] table with the node address,
chain name, router and token hashes. Environment variables override it.

EXAMPLES:
  # Create config for a local NCTL network
  ectoplasm config init

  # Create config for testnet
  ectoplasm config init --node-address https://node.testnet.casper.network --chain-name casper-test

  # Overwrite existing config
  ectoplasm config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), "ectoplasm.toml", serverURL, nodeAddress, chainName, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&nodeAddress, "node-address", config.DefaultNodeAddress, "Casper node address")
	cmd.Flags().StringVar(&chainName, "chain-name", config.DefaultChainName, "chain name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (ectoplasm.toml), the global config from
~/.ectoplasm/config.yaml and the effective chain settings.

EXAMPLES:
  ectoplasm config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func createConfigSetCmd() *cobra.Command {
	var serverURL string
	var key string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the global config",
		Long: `Store a default server URL or signing key path in ~/.ectoplasm/config.yaml.

EXAMPLES:
  ectoplasm config set --server https://dex-api.example.com
  ectoplasm config set --key ~/.casper/secret_key.pem
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" && key == "" {
				return fmt.Errorf("nothing to set: pass --server or --key")
			}
			global, err := loadGlobalConfig()
			if err != nil {
				if !os.IsNotExist(err) {
					return err
				}
				global = &GlobalConfig{}
			}
			if serverURL != "" {
				global.Server = serverURL
			}
			if key != "" {
				global.KeyFile = key
			}
			if err := writeGlobalConfig(global); err != nil {
				return fmt.Errorf("failed to write global config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", globalConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "default server URL")
	cmd.Flags().StringVar(&key, "key", "", "default secret key PEM path")

	return cmd
}

func runConfigInit(w io.Writer, configPath, serverURL, nodeAddress, chainName string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	content := fmt.Sprintf(`# Ectoplasm DEX client configuration

server = "%s"
# key = "~/.casper/secret_key.pem"

[chain]
node_address = "%s"
chain_name = "%s"
router_package_hash = ""
# router_contract_hash = ""
# factory_contract_hash = ""
# deploy_ttl_minutes = 30
# balance_probe_delay_ms = 100

[[chain.tokens]]
symbol = "WCSPR"
decimals = 9
package_hash = ""
contract_hash = ""

[[chain.tokens]]
symbol = "ECTO"
decimals = 18
package_hash = ""
contract_hash = ""
`, serverURL, nodeAddress, chainName)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Server: %s\n", serverURL)
	fmt.Fprintf(w, "  Node:   %s\n", nodeAddress)
	fmt.Fprintf(w, "  Chain:  %s\n", chainName)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Fill in the router and token hashes in %s\n", configPath)
	fmt.Fprintln(w, "  2. Run 'ectoplasm tokens' to check them")
	fmt.Fprintln(w, "  3. Run 'ectoplasm balance cspr --key secret_key.pem'")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	// 1. Command line flags
	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --server, --node, --key, --config")
	fmt.Fprintln(w)

	// 2. Environment variables
	fmt.Fprintln(w, "2. Environment variables")
	for _, name := range []string{"ECTOPLASM_SERVER", "ECTOPLASM_KEY", "NODE_ADDRESS", "CHAIN_NAME", "ROUTER_PACKAGE_HASH"} {
		if v := os.Getenv(name); v != "" {
			fmt.Fprintf(w, "   %s=%s\n", name, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", name)
		}
	}
	fmt.Fprintln(w)

	// 3. Local project config
	fmt.Fprintln(w, "3. Local project config (ectoplasm.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else {
		fmt.Fprintf(w, "   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Fprintf(w, "   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Key != "" {
			fmt.Fprintf(w, "   key: %s\n", projectConfig.Key)
		}
	}
	fmt.Fprintln(w)

	// 4. Global config
	fmt.Fprintln(w, "4. Global config (~/.ectoplasm/config.yaml)")
	global, err := loadGlobalConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else {
		if global.Server != "" {
			fmt.Fprintf(w, "   server: %s\n", global.Server)
		}
		if global.KeyFile != "" {
			fmt.Fprintf(w, "   key_file: %s\n", global.KeyFile)
		}
	}
	fmt.Fprintln(w)

	// Effective config
	fmt.Fprintln(w, "Effective configuration:")
	fmt.Fprintf(w, "   Server: %s\n", getServer())
	if key := getKeyFile(); key != "" {
		fmt.Fprintf(w, "   Key:    %s\n", key)
	} else {
		fmt.Fprintln(w, "   Key:    (not set, deploys are written unsigned)")
	}
	chain, err := chainConfig()
	if err != nil {
		fmt.Fprintf(w, "   Chain:  error: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "   Node:   %s\n", chain.NodeAddress)
	fmt.Fprintf(w, "   Chain:  %s\n", chain.ChainName)
	if chain.RouterPackageHash != "" {
		fmt.Fprintf(w, "   Router: %s\n", chain.RouterPackageHash)
	} else {
		fmt.Fprintln(w, "   Router: (not set)")
	}
	for _, t := range chain.Tokens {
		hash := t.PackageHash
		if hash == "" {
			hash = "(not set)"
		}
		fmt.Fprintf(w, "   Token:  %s (%d decimals) %s\n", t.Symbol, t.Decimals, hash)
	}

	return nil
}

// chainConfig resolves the chain section: defaults, then the project file's
// [chain] table, then environment variables, then --node.
func chainConfig() (config.ChainConfig, error) {
	_, path, err := loadProjectConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			return config.ChainConfig{}, err
		}
		path = ""
	}
	chain, err := config.LoadChain(path)
	if err != nil {
		return config.ChainConfig{}, err
	}
	if node != "" {
		chain.NodeAddress = node
	}
	return chain, nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ectoplasm"
	}
	return filepath.Join(home, ".ectoplasm")
}

func globalConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil, err
	}

	var global GlobalConfig
	if err := yaml.Unmarshal(data, &global); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", globalConfigPath(), err)
	}
	return &global, nil
}

func loadGlobalConfigSilent() *GlobalConfig {
	global, err := loadGlobalConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load global config: %v\n", err)
		}
		return nil
	}
	return global
}

func writeGlobalConfig(global *GlobalConfig) error {
	if err := os.MkdirAll(configDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(global)
	if err != nil {
		return err
	}
	return os.WriteFile(globalConfigPath(), data, 0600)
}
