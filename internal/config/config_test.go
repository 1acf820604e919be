package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/types"
)

func TestLoad(t *testing.T) {
	t.Setenv("NETWORK", "mainnet")
	t.Setenv("RPC_ETHEREUM", "https://eth.example")
	t.Setenv("RPC_SOLANA", "https://sol.example")
	t.Setenv("RPC_BASE", "")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("GASLESS_ENABLED", "false")
	t.Setenv("WEBHOOK_BATCH_SIZE", "not-a-number")

	cfg := Load()
	assert.Equal(t, types.Mainnet, cfg.Network)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.False(t, cfg.GaslessEnabled)
	assert.Equal(t, 50, cfg.WebhookBatch, "unparsable values fall back to the default")
	assert.Equal(t, 1.02, cfg.RelayFeeMaxChangeMargin)

	rpc, ok := cfg.RPC(types.Ethereum)
	assert.True(t, ok)
	assert.Equal(t, "https://eth.example", rpc)
	_, ok = cfg.RPC(types.Solana)
	assert.True(t, ok)
	_, ok = cfg.RPC(types.Base)
	assert.False(t, ok, "empty RPC_ values are ignored")
	assert.Len(t, cfg.Chains, 2)
}

func TestLoad_InvalidNetwork(t *testing.T) {
	t.Setenv("NETWORK", "devnet")
	assert.Equal(t, types.Testnet, Load().Network)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "7")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_DUR", "nope")

	assert.Equal(t, 7, GetEnvAsInt("CFG_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("CFG_MISSING", 1))
	assert.True(t, GetEnvAsBool("CFG_BOOL", false))
	assert.Equal(t, time.Minute, GetEnvAsDuration("CFG_DUR", time.Minute))
	assert.Equal(t, "x", GetEnvOrDefault("CFG_MISSING", "x"))
}

const deploymentJSON = `{
  "network": "Mainnet",
  "cctpr_program": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
  "cctpr_buffer": "",
  "cctpr_deployer": "",
  "prioritization_fee": 1000,
  "evm_contracts": {
    "Ethereum": "0x000000000000000000000000000000000000c0de",
    "Arbitrum": "0x000000000000000000000000000000000000beef"
  },
  "avax_router": "0x00000000000000000000000000000000000a0a0a"
}`

func writeDeployment(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDeployment(t *testing.T) {
	d, err := LoadDeployment(writeDeployment(t, deploymentJSON))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), d.PrioritizationFee)
	assert.Len(t, d.EvmContracts, 2)

	require.NoError(t, d.Apply(types.Mainnet))
	addr, ok := types.CctprContract(types.Mainnet, types.Arbitrum)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xbeef").Hex(), addr)
	addr, ok = types.CctprContract(types.Mainnet, types.Solana)
	require.True(t, ok)
	assert.Equal(t, d.CctprProgram, addr)
	router, ok := types.AvaxRouter(types.Mainnet)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x0a0a0a").Hex(), router)

	t.Run("network mismatch", func(t *testing.T) {
		assert.Error(t, d.Apply(types.Testnet))
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("CCTPR_PRIORITIZATION_FEE", "5")
		d, err := LoadDeployment(writeDeployment(t, deploymentJSON))
		require.NoError(t, err)
		assert.Equal(t, uint64(5), d.PrioritizationFee)
	})
}

func TestLoadDeployment_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad program", body: `{"cctpr_program": "not-base58-0OIl"}`},
		{name: "unknown domain", body: `{"evm_contracts": {"Atlantis": "0x000000000000000000000000000000000000c0de"}}`},
		{name: "solana in evm contracts", body: `{"evm_contracts": {"Solana": "0x000000000000000000000000000000000000c0de"}}`},
		{name: "bad evm address", body: `{"evm_contracts": {"Base": "0x1234"}}`},
		{name: "bad router", body: `{"avax_router": "router"}`},
		{name: "not json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDeployment(writeDeployment(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDeployment(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}
