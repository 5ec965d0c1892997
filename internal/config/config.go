// Package config loads sorolend settings from defaults, a yaml file and the
// environment, in that order.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"gopkg.in/yaml.v3"
)

// TokenNames are the token contracts that may be set from the environment
// under their own name, e.g. USDC=C...
var TokenNames = []string{"XLM", "USDC", "ETH", "ATK", "BTK"}

// Config holds every setting. FeeMarginPercent is a global margin added to the
// simulated fee of every call from every account; zero submits fees verbatim.
type Config struct {
	RPCURL            string            `yaml:"rpcUrl"`
	NetworkPassphrase string            `yaml:"networkPassphrase"`
	ContractAddress   string            `yaml:"contractAddress"`
	FaucetAddress     string            `yaml:"faucetAddress"`
	AdminSecret       string            `yaml:"adminSecret"`
	UserSecret        string            `yaml:"userSecret"`
	Tokens            map[string]string `yaml:"tokens"`
	PollInterval      time.Duration     `yaml:"pollInterval"`
	ValidityLedgers   uint32            `yaml:"validityLedgers"`
	FeeMarginPercent  int64             `yaml:"feeMarginPercent"`
	RequestsPerSecond float64           `yaml:"requestsPerSecond"`
	MinServerVersion  string            `yaml:"minServerVersion"`
	WatchlistPath     string            `yaml:"watchlistPath"`
	OTLPEndpoint      string            `yaml:"otlpEndpoint"`
	LogLevel          string            `yaml:"logLevel"`
	MetricsAddr       string            `yaml:"metricsAddr"`
}

func Default() Config {
	return Config{
		RPCURL:            "https://soroban-testnet.stellar.org",
		NetworkPassphrase: network.TestNetworkPassphrase,
		Tokens:            map[string]string{},
		PollInterval:      time.Second,
		ValidityLedgers:   10,
		RequestsPerSecond: 10,
		MinServerVersion:  "22.0.0",
		WatchlistPath:     "sorolend.db",
		LogLevel:          "info",
		MetricsAddr:       ":9464",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parsing config %s", path)
		}
		if cfg.Tokens == nil {
			cfg.Tokens = map[string]string{}
		}
	}
	if err := ApplyEnvOverrides(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides sets every field whose variable getenv reports non-empty.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("RPC_URL", &cfg.RPCURL)
	str("NETWORK_PASSPHRASE", &cfg.NetworkPassphrase)
	str("CONTRACT_ADDRESS", &cfg.ContractAddress)
	str("FAUCET", &cfg.FaucetAddress)
	str("ADMIN_SECRET", &cfg.AdminSecret)
	str("USER_SECRET", &cfg.UserSecret)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	str("SOROLEND_LOG_LEVEL", &cfg.LogLevel)
	str("SOROLEND_WATCHLIST", &cfg.WatchlistPath)

	for _, name := range TokenNames {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			if cfg.Tokens == nil {
				cfg.Tokens = map[string]string{}
			}
			cfg.Tokens[name] = v
		}
	}

	if raw := strings.TrimSpace(getenv("SOROLEND_POLL_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.Wrap(err, "SOROLEND_POLL_INTERVAL")
		}
		cfg.PollInterval = d
	}
	if raw := strings.TrimSpace(getenv("SOROLEND_VALIDITY_LEDGERS")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return errors.Wrap(err, "SOROLEND_VALIDITY_LEDGERS")
		}
		cfg.ValidityLedgers = uint32(n)
	}
	return nil
}

// Validate checks the settings every command needs. Secrets are checked only
// when present; commands that sign call RequireSecret.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc url is not set")
	}
	if c.NetworkPassphrase == "" {
		return errors.New("network passphrase is not set")
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.FeeMarginPercent < 0 {
		return errors.Errorf("fee margin must not be negative, got %d", c.FeeMarginPercent)
	}
	if c.ContractAddress != "" && !isContract(c.ContractAddress) {
		return errors.Errorf("contract address %q is not a contract", c.ContractAddress)
	}
	if c.FaucetAddress != "" && !isContract(c.FaucetAddress) {
		return errors.Errorf("faucet address %q is not a contract", c.FaucetAddress)
	}
	for name, addr := range c.Tokens {
		if !isContract(addr) {
			return errors.Errorf("token %s address %q is not a contract", name, addr)
		}
	}
	for name, secret := range map[string]string{"admin": c.AdminSecret, "user": c.UserSecret} {
		if secret == "" {
			continue
		}
		if _, err := keypair.ParseFull(secret); err != nil {
			return errors.Errorf("%s secret is not a valid seed", name)
		}
	}
	return nil
}

// Secret returns the seed for role ("admin" or "user").
func (c Config) Secret(role string) (string, error) {
	var s string
	switch role {
	case "admin":
		s = c.AdminSecret
	case "user":
		s = c.UserSecret
	default:
		return "", errors.Errorf("unknown role %q", role)
	}
	if s == "" {
		return "", errors.Errorf("%s secret is not set", role)
	}
	return s, nil
}

// RequireContract returns the lending contract address or an error if unset.
func (c Config) RequireContract() (string, error) {
	if c.ContractAddress == "" {
		return "", errors.New("contract address is not set")
	}
	return c.ContractAddress, nil
}

func isContract(addr string) bool {
	_, err := strkey.Decode(strkey.VersionByteContract, addr)
	return err == nil
}
