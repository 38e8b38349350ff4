package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/scanpay/types"
)

const testConfigYAML = `network: sepolia
provider: local
rpc_url: http://localhost:8545
signer_key: "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
payment:
  token_address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
  token_decimals: 6
  payment_contract: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  poll_interval: 500ms
`

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(testConfigYAML), 0o600))

	cfg, err := loadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, types.NetworkSepolia, cfg.Network)
	assert.Equal(t, types.ProviderLocal, cfg.Provider)
	assert.Equal(t, "http://localhost:8545", cfg.RPCUrl)
	assert.Equal(t, 6, cfg.Payment.TokenDecimals)
	assert.Equal(t, 500*time.Millisecond, cfg.Payment.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Payment.ConfirmationTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(testConfigYAML), 0o600))

	t.Setenv("SCANPAY_NETWORK", "base-sepolia")
	t.Setenv("SCANPAY_PAYMENT_TOKEN_DECIMALS", "18")

	cfg, err := loadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, types.NetworkBaseSepolia, cfg.Network)
	assert.Equal(t, 18, cfg.Payment.TokenDecimals)
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("SCANPAY_RPC_URL", "http://node:8545")

	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.RPCUrl)
	assert.Equal(t, types.ProviderEmbedded, cfg.Provider)
}

func TestLoadConfig_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("network: [unclosed"), 0o600))

	_, err := loadConfig(dir)
	assert.Error(t, err)
}

func TestMetricsRouter(t *testing.T) {
	srv := httptest.NewServer(metricsRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

const testConfigJSON = `{
	"network": "sepolia",
	"provider": "local",
	"rpcUrl": "http://localhost:8545",
	"payment": {
		"tokenAddress": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		"tokenDecimals": 6,
		"paymentContract": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"paymentId": "0x0000000000000000000000000000000000000000000000000000000000000001"
	}
}`

func TestResolveConfig_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanpay.json")
	require.NoError(t, os.WriteFile(path, []byte(testConfigJSON), 0o600))

	configJSON = path
	t.Cleanup(func() { configJSON = "" })

	cfg, err := resolveConfig()
	require.NoError(t, err)
	assert.Equal(t, types.NetworkSepolia, cfg.Network)
	assert.Equal(t, 6, cfg.Payment.TokenDecimals)
}

func TestLoadJSONConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := loadJSONConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"network":"sepolia"}`), 0o600))
	_, err = loadJSONConfig(path)

	var serr *types.ScanPayError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, types.ErrConfigError, serr.Code)
}
