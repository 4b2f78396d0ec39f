// Package config provides configuration management for the ledger scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledger-scanner/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Chains   ChainsConfig
	Feed     FeedConfig
	Price    PriceConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// ChainsConfig holds per-network RPC endpoints plus the shared fallback
type ChainsConfig struct {
	Enabled []types.ChainID
	// RPCEndpoints maps network id to its JSON-RPC endpoint.
	RPCEndpoints map[types.ChainID]string
	// RPCDefault is used for any network without a dedicated endpoint.
	RPCDefault string
}

// RPCEndpoint resolves the receipt-lookup endpoint for a network. Absence
// of both a dedicated and a default endpoint is a hard configuration error.
func (c ChainsConfig) RPCEndpoint(network types.ChainID) (string, bool) {
	if url, ok := c.RPCEndpoints[network]; ok && url != "" {
		return url, true
	}
	if c.RPCDefault != "" {
		return c.RPCDefault, true
	}
	return "", false
}

// FeedConfig holds transfer-feed API configuration
type FeedConfig struct {
	BaseURL           string
	APIKey            string
	PageSize          int
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// PriceConfig holds price-source configuration
type PriceConfig struct {
	AggregatorBaseURL string
	AggregatorAPIKey  string
	DEXBaseURL        string
	MinLiquidityUSD   float64
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	RetryDelay        time.Duration
	WarmConcurrency   int
}

// CacheConfig holds in-process cache sizing and TTLs
type CacheConfig struct {
	QuoteTTL           time.Duration
	QuoteSize          int
	ReceiptTTL         time.Duration
	ReceiptSize        int
	CurrentPriceBucket time.Duration
}

// RedisConfig holds the optional shared quote-cache tier. An empty Addr
// disables the tier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UpstreamConfig holds shared upstream-call policy
type UpstreamConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Feed: FeedConfig{
			BaseURL:           getEnv("FEED_BASE_URL", "https://api.etherscan.io/v2/api"),
			APIKey:            getEnv("FEED_API_KEY", ""),
			PageSize:          getEnvAsInt("FEED_PAGE_SIZE", 100),
			RequestTimeout:    getEnvAsDuration("FEED_REQUEST_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("FEED_REQUESTS_PER_SECOND", 4),
		},
		Price: PriceConfig{
			AggregatorBaseURL: getEnv("PRICE_AGGREGATOR_BASE_URL", "https://api.coingecko.com/api/v3"),
			AggregatorAPIKey:  getEnv("PRICE_AGGREGATOR_API_KEY", ""),
			DEXBaseURL:        getEnv("PRICE_DEX_BASE_URL", "https://api.dexscreener.com"),
			MinLiquidityUSD:   getEnvAsFloat("PRICE_MIN_LIQUIDITY_USD", 10000),
			RequestTimeout:    getEnvAsDuration("PRICE_REQUEST_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvAsFloat("PRICE_REQUESTS_PER_SECOND", 8),
			MaxRetries:        getEnvAsInt("PRICE_MAX_RETRIES", 2),
			RetryDelay:        getEnvAsDuration("PRICE_RETRY_DELAY", 500*time.Millisecond),
			WarmConcurrency:   getEnvAsInt("PRICE_WARM_CONCURRENCY", 8),
		},
		Cache: CacheConfig{
			QuoteTTL:           getEnvAsDuration("CACHE_QUOTE_TTL", 30*time.Minute),
			QuoteSize:          getEnvAsInt("CACHE_QUOTE_SIZE", 4096),
			ReceiptTTL:         getEnvAsDuration("CACHE_RECEIPT_TTL", time.Hour),
			ReceiptSize:        getEnvAsInt("CACHE_RECEIPT_SIZE", 8192),
			CurrentPriceBucket: getEnvAsDuration("CACHE_CURRENT_PRICE_BUCKET", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Upstream: UpstreamConfig{
			MaxRetries: getEnvAsInt("UPSTREAM_MAX_RETRIES", 2),
			RetryDelay: getEnvAsDuration("UPSTREAM_RETRY_DELAY", time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	chains, err := loadChainsConfig()
	if err != nil {
		return nil, err
	}
	config.Chains = chains

	return config, nil
}

// loadChainsConfig loads network-specific configuration.
// RPC endpoints come from RPC_<NETWORK> (e.g. RPC_ETHEREUM) with RPC_DEFAULT
// as the shared fallback.
func loadChainsConfig() (ChainsConfig, error) {
	enabledRaw := strings.Split(getEnv("ENABLED_CHAINS", "ethereum,polygon,arbitrum,optimism,base,bnb"), ",")

	var enabled []types.ChainID
	endpoints := make(map[types.ChainID]string)
	for _, raw := range enabledRaw {
		name := strings.TrimSpace(strings.ToLower(raw))
		if name == "" {
			continue
		}
		chain := types.ChainID(name)
		if !types.IsValidChain(chain) {
			return ChainsConfig{}, fmt.Errorf("unsupported chain in ENABLED_CHAINS: %q", name)
		}
		enabled = append(enabled, chain)
		if url := getEnv("RPC_"+strings.ToUpper(name), ""); url != "" {
			endpoints[chain] = url
		}
	}

	return ChainsConfig{
		Enabled:      enabled,
		RPCEndpoints: endpoints,
		RPCDefault:   getEnv("RPC_DEFAULT", ""),
	}, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
