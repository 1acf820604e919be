// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Network selects the static tables and default service URLs
	Network types.Network

	// Chains holds the RPC endpoint of every domain with RPC_<DOMAIN> set
	Chains map[types.Domain]types.ChainConfig

	// Base URLs of the external services; empty means the network default
	IrisURL     string
	ExplorerURL string
	GaslessURL  string

	// GaslessEnabled turns on gasless route candidates
	GaslessEnabled bool

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// DeploymentConfig is the path of the persisted deployment file
	DeploymentConfig string

	// Webhook receiving transfer progress events
	WebhookURL     string
	WebhookAPIKey  string
	WebhookBatch   int
	WebhookFlushAt time.Duration

	// QuoterPrivateKey signs off-chain quotes and API responses
	QuoterPrivateKey string
	QuoteValidity    time.Duration

	// Request handling
	RequestTimeout          time.Duration
	RelayFeeMaxChangeMargin float64
	RateLimitRPS            float64
	RateLimitBurst          int

	// Relay quote breaker settings
	MaxRelayFeeUsdc   float64
	MaxFeeChange      float64
	CircuitResetDelay time.Duration
}

// Load creates a new Config from environment variables
func Load() Config {
	network, err := types.ParseNetwork(GetEnvOrDefault("NETWORK", string(types.Testnet)))
	if err != nil {
		logrus.WithError(err).Warn("Invalid NETWORK, using Testnet")
		network = types.Testnet
	}

	return Config{
		Port:                    GetEnvOrDefault("PORT", "8080"),
		Network:                 network,
		Chains:                  loadChains(),
		IrisURL:                 GetEnvOrDefault("IRIS_URL", ""),
		ExplorerURL:             GetEnvOrDefault("EXPLORER_URL", ""),
		GaslessURL:              GetEnvOrDefault("GASLESS_API_URL", ""),
		GaslessEnabled:          GetEnvAsBool("GASLESS_ENABLED", true),
		OtelEndpoint:            GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DeploymentConfig:        GetEnvOrDefault("DEPLOYMENT_CONFIG", ""),
		WebhookURL:              GetEnvOrDefault("WEBHOOK_URL", ""),
		WebhookAPIKey:           GetEnvOrDefault("WEBHOOK_API_KEY", ""),
		WebhookBatch:            GetEnvAsInt("WEBHOOK_BATCH_SIZE", 50),
		WebhookFlushAt:          GetEnvAsDuration("WEBHOOK_EXPORT_INTERVAL", 30*time.Second),
		QuoterPrivateKey:        GetEnvOrDefault("QUOTER_PRIVATE_KEY", ""),
		QuoteValidity:           GetEnvAsDuration("QUOTE_VALIDITY", 5*time.Minute),
		RequestTimeout:          GetEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		RelayFeeMaxChangeMargin: GetEnvAsFloat("RELAY_FEE_MAX_CHANGE_MARGIN", 1.02),
		RateLimitRPS:            GetEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:          GetEnvAsInt("RATE_LIMIT_BURST", 20),
		MaxRelayFeeUsdc:         GetEnvAsFloat("MAX_RELAY_FEE_USDC", 100), // 0 disables
		MaxFeeChange:            GetEnvAsFloat("MAX_FEE_CHANGE", 3.0),    // relay fee may triple
		CircuitResetDelay:       GetEnvAsDuration("CIRCUIT_RESET_DELAY", 5*time.Minute),
	}
}

// loadChains reads RPC_<DOMAIN> (RPC_ETHEREUM, RPC_SOLANA, ...) for every
// known domain.
func loadChains() map[types.Domain]types.ChainConfig {
	chains := map[types.Domain]types.ChainConfig{}
	for _, d := range types.Domains {
		url, ok := GetEnv("RPC_" + strings.ToUpper(string(d)))
		if !ok || url == "" {
			continue
		}
		chains[d] = types.ChainConfig{Enabled: true, RPCEndpoint: url}
	}
	return chains
}

// RPC returns the endpoint configured for d.
func (c Config) RPC(d types.Domain) (string, bool) {
	chain, ok := c.Chains[d]
	if !ok || !chain.Enabled {
		return "", false
	}
	return chain.RPCEndpoint, true
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a bool with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
