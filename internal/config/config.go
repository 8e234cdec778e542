// Package config provides configuration loading for lockctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults mirroring the Hardhat project this tool manages.
const (
	DefaultNetwork      = "hardhat"
	DefaultMnemonic     = "test test test test test test test test test test test junk"
	DefaultPath         = "m/44'/60'/0'/0"
	DefaultAccountCount = 10
	DefaultBalance      = "10000ether"
	DefaultArtifactPath = "artifacts/contracts/Lock.sol/Lock.json"
	DefaultRegistryPath = "deployments/registry.json"
)

// Registry drivers.
const (
	RegistryDriverFile = "file"
	RegistryDriverBolt = "bolt"
)

var ErrUnknownNetwork = errors.New("config: unknown network")

// Config holds all configuration for lockctl.
type Config struct {
	Solidity       string                   `mapstructure:"solidity"`
	DefaultNetwork string                   `mapstructure:"default_network" validate:"required"`
	Networks       map[string]NetworkConfig `mapstructure:"networks" validate:"required,min=1,dive"`
	Artifacts      string                   `mapstructure:"artifacts" validate:"required"`
	Registry       RegistryConfig           `mapstructure:"registry"`
	Log            LogConfig                `mapstructure:"log"`
}

// NetworkConfig describes one chain lockctl can talk to.
// A network without a URL runs on the in-process simulated ledger.
type NetworkConfig struct {
	URL      string         `mapstructure:"url" validate:"omitempty,url"`
	ChainID  int64          `mapstructure:"chain_id" validate:"required,gt=0"`
	Accounts AccountsConfig `mapstructure:"accounts"`
}

// Simulated reports whether the network is served in-process.
func (n NetworkConfig) Simulated() bool {
	return n.URL == ""
}

// AccountsConfig holds HD wallet settings for a network.
type AccountsConfig struct {
	Mnemonic string `mapstructure:"mnemonic"`
	Path     string `mapstructure:"path"`
	Count    int    `mapstructure:"count" validate:"gte=0"`
	// Balance funds each account at genesis on simulated networks.
	Balance string `mapstructure:"balance"`
}

// RegistryConfig selects where deployments are recorded.
type RegistryConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=file bolt"`
	Path   string `mapstructure:"path" validate:"required"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load reads configuration from an optional .env file, a config file and
// environment variables. An empty configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("lockctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lockctl"))
		}
	}

	v.SetEnvPrefix("LOCKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional when searching)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("solidity", "0.8.19")
	v.SetDefault("default_network", DefaultNetwork)
	v.SetDefault("artifacts", DefaultArtifactPath)

	// Networks
	v.SetDefault("networks.hardhat.chain_id", 31337)
	v.SetDefault("networks.hardhat.accounts.mnemonic", DefaultMnemonic)
	v.SetDefault("networks.hardhat.accounts.path", DefaultPath)
	v.SetDefault("networks.hardhat.accounts.count", DefaultAccountCount)
	v.SetDefault("networks.hardhat.accounts.balance", DefaultBalance)

	v.SetDefault("networks.localhost.url", "http://127.0.0.1:8545")
	v.SetDefault("networks.localhost.chain_id", 31337)
	v.SetDefault("networks.localhost.accounts.mnemonic", DefaultMnemonic)
	v.SetDefault("networks.localhost.accounts.path", DefaultPath)
	v.SetDefault("networks.localhost.accounts.count", DefaultAccountCount)

	v.SetDefault("networks.arbitrum-goerli.url", "https://arb-goerli.g.alchemy.com/v2/${ALCHEMY_API_KEY}")
	v.SetDefault("networks.arbitrum-goerli.chain_id", 421613)
	v.SetDefault("networks.arbitrum-goerli.accounts.mnemonic", "${MNEMONIC}")
	v.SetDefault("networks.arbitrum-goerli.accounts.path", DefaultPath)
	v.SetDefault("networks.arbitrum-goerli.accounts.count", DefaultAccountCount)

	// Registry
	v.SetDefault("registry.driver", RegistryDriverFile)
	v.SetDefault("registry.path", DefaultRegistryPath)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// expand substitutes ${VAR} references and fills per-network account defaults.
func (c *Config) expand() {
	for name, n := range c.Networks {
		n.URL = os.ExpandEnv(n.URL)
		n.Accounts.Mnemonic = os.ExpandEnv(n.Accounts.Mnemonic)
		if n.Accounts.Path == "" {
			n.Accounts.Path = DefaultPath
		}
		if n.Accounts.Count == 0 {
			n.Accounts.Count = DefaultAccountCount
		}
		c.Networks[name] = n
	}
}

// Validate checks struct constraints and that the default network exists.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := c.Networks[c.DefaultNetwork]; !ok {
		return fmt.Errorf("%w: default network %q", ErrUnknownNetwork, c.DefaultNetwork)
	}
	return nil
}

// Network returns the named network. An empty name selects DefaultNetwork.
func (c *Config) Network(name string) (string, NetworkConfig, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	n, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return "", NetworkConfig{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return strings.ToLower(name), n, nil
}

// NetworkNames returns configured network names in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
