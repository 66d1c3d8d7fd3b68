package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDAIContractAddress is the DAI token on Ethereum mainnet.
	DefaultDAIContractAddress = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

	defaultExplorerTxURL = "https://etherscan.io/tx/"
)

var hexAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ethereum node configuration
	InfuraID           string
	EthRPCURL          string
	EthWSURL           string // empty disables websocket subscriptions (polling is used instead)
	DAIContractAddress string

	// Feed configuration
	BlockWindow     uint64
	MaxTransfers    int
	RPCConcurrency  int
	PollInterval    time.Duration
	HeaderCacheSize int
	ExplorerTxURL   string

	// Optional sinks
	NATSURL     string
	DatabaseURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Ethereum node configuration. The API key is the only required value;
	// explicit URLs take precedence when set.
	cfg.InfuraID = os.Getenv("INFURA_ID")
	cfg.EthRPCURL = os.Getenv("ETH_RPC_URL")
	if cfg.EthRPCURL == "" && cfg.InfuraID != "" {
		cfg.EthRPCURL = fmt.Sprintf("https://mainnet.infura.io/v3/%s", cfg.InfuraID)
	}
	if cfg.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("INFURA_ID or ETH_RPC_URL is required"))
	}

	cfg.EthWSURL = os.Getenv("ETH_WS_URL")
	if cfg.EthWSURL == "" && cfg.InfuraID != "" && os.Getenv("ETH_RPC_URL") == "" {
		cfg.EthWSURL = fmt.Sprintf("wss://mainnet.infura.io/ws/v3/%s", cfg.InfuraID)
	}

	cfg.DAIContractAddress = getEnvOrDefault("DAI_CONTRACT_ADDRESS", DefaultDAIContractAddress)
	if !hexAddressRegex.MatchString(cfg.DAIContractAddress) {
		errs = append(errs, fmt.Errorf("DAI_CONTRACT_ADDRESS: invalid address %q", cfg.DAIContractAddress))
	}

	// Feed configuration
	window, err := parseInt("BLOCK_WINDOW", 100)
	if err != nil {
		errs = append(errs, err)
	} else if window <= 0 {
		errs = append(errs, fmt.Errorf("BLOCK_WINDOW must be positive, got %d", window))
	} else {
		cfg.BlockWindow = uint64(window)
	}

	if cfg.MaxTransfers, err = parseInt("MAX_TRANSFERS", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCConcurrency, err = parseInt("RPC_CONCURRENCY", 8); err != nil {
		errs = append(errs, err)
	}
	if cfg.HeaderCacheSize, err = parseInt("HEADER_CACHE_SIZE", 256); err != nil {
		errs = append(errs, err)
	}
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", "12s"); err != nil {
		errs = append(errs, err)
	}

	cfg.ExplorerTxURL = getEnvOrDefault("EXPLORER_TX_URL", defaultExplorerTxURL)

	// Optional sinks; empty disables them
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("EthRPCURL is required"))
	}

	if !hexAddressRegex.MatchString(c.DAIContractAddress) {
		errs = append(errs, fmt.Errorf("DAIContractAddress is not a valid address"))
	}

	if c.BlockWindow == 0 {
		errs = append(errs, fmt.Errorf("BlockWindow must be positive"))
	}

	if c.MaxTransfers <= 0 {
		errs = append(errs, fmt.Errorf("MaxTransfers must be positive"))
	}

	if c.RPCConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("RPCConcurrency must be positive"))
	}

	if c.HeaderCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("HeaderCacheSize must be positive"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.ExplorerTxURL == "" {
		errs = append(errs, fmt.Errorf("ExplorerTxURL is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RedactedRPCURL returns the RPC URL with the API key removed, for logging.
func (c *Config) RedactedRPCURL() string {
	if c.InfuraID == "" {
		return c.EthRPCURL
	}
	return strings.ReplaceAll(c.EthRPCURL, c.InfuraID, "***")
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
