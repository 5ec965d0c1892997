package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractAddr(t *testing.T, b byte) string {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = b
	addr, err := strkey.Encode(strkey.VersionByteContract, raw)
	require.NoError(t, err)
	return addr
}

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, network.TestNetworkPassphrase, cfg.NetworkPassphrase)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, uint32(10), cfg.ValidityLedgers)
	assert.Zero(t, cfg.FeeMarginPercent)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	usdc := contractAddr(t, 2)
	path := filepath.Join(t.TempDir(), "sorolend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpcUrl: http://localhost:8000/soroban/rpc
pollInterval: 250ms
validityLedgers: 20
tokens:
  USDC: `+usdc+`
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/soroban/rpc", cfg.RPCURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, uint32(20), cfg.ValidityLedgers)
	assert.Equal(t, usdc, cfg.Tokens["USDC"])
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pollInterval: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	pool := contractAddr(t, 1)
	eth := contractAddr(t, 3)
	cfg := Default()
	err := ApplyEnvOverrides(&cfg, envOf(map[string]string{
		"RPC_URL":                   " https://rpc.example ",
		"CONTRACT_ADDRESS":          pool,
		"ETH":                       eth,
		"SOROLEND_LOG_LEVEL":        "debug",
		"SOROLEND_POLL_INTERVAL":    "2s",
		"SOROLEND_VALIDITY_LEDGERS": "5",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example", cfg.RPCURL)
	assert.Equal(t, pool, cfg.ContractAddress)
	assert.Equal(t, eth, cfg.Tokens["ETH"])
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, uint32(5), cfg.ValidityLedgers)

	assert.Error(t, ApplyEnvOverrides(&cfg, envOf(map[string]string{"SOROLEND_POLL_INTERVAL": "soon"})))
	assert.Error(t, ApplyEnvOverrides(&cfg, envOf(map[string]string{"SOROLEND_VALIDITY_LEDGERS": "-1"})))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no rpc":          func(c *Config) { c.RPCURL = "" },
		"zero poll":       func(c *Config) { c.PollInterval = 0 },
		"negative margin": func(c *Config) { c.FeeMarginPercent = -1 },
		"account pool":    func(c *Config) { c.ContractAddress = keypair.MustRandom().Address() },
		"bad token":       func(c *Config) { c.Tokens["XLM"] = "nope" },
		"bad secret":      func(c *Config) { c.AdminSecret = "SNOTASEED" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSecret(t *testing.T) {
	cfg := Default()
	_, err := cfg.Secret("user")
	assert.Error(t, err)
	_, err = cfg.Secret("liquidator")
	assert.Error(t, err)

	kp := keypair.MustRandom()
	cfg.UserSecret = kp.Seed()
	s, err := cfg.Secret("user")
	require.NoError(t, err)
	assert.Equal(t, kp.Seed(), s)
	assert.NoError(t, cfg.Validate())
}
