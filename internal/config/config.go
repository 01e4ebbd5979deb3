// Package config loads and validates the engine configuration from the
// environment. Everything tunable lives here with its default so workers
// never reach for os.Getenv themselves.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ChainEndpoints holds the RPC endpoints for one chain as parsed from
// CHAIN_CONFIG.
type ChainEndpoints struct {
	ChainID int    `json:"chain_id"`
	RPCHTTP string `json:"rpc_http"`
	RPCWS   string `json:"rpc_ws"`
}

// ChainParams carries the per-chain economic constants used by the NetEV
// gate and the autopilot quality filters.
type ChainParams struct {
	DefaultExpectedMove float64
	DefaultGasCostUsd   float64
	MinUsdProfit        float64
	MinRoiAfterCosts    float64
	LiquidityFloorUsd   float64
	VolumeFloorUsd      float64
}

// MeritParams groups the merit engine tunables.
type MeritParams struct {
	Decay                  float64
	PriorConstant          float64
	ClampMin               float64
	ClampMax               float64
	ShadowToTitanThreshold float64
	ShadowToTitanSamples   int
	ShadowToTitanIntegrity float64
	OceanToShadowPositives int
	SeedDecaySamples       int
	SeedDecayThreshold     float64
	SeedDecayTargetTier    string
}

// AutopilotParams groups the watchlist autopilot tunables.
type AutopilotParams struct {
	MinSleepSeconds       int
	MaxSleepSeconds       int
	MaxPairsPerChain      int
	MinPairAgeHours       float64
	AgeFallbackMultiplier float64
	PairTTLHours          int
}

// Config is the full engine configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string

	Chains           map[string]ChainEndpoints
	ChainParams      map[string]ChainParams
	WatchedAddresses map[string][]string

	// Wallet value tier thresholds in USD.
	OceanThreshold  float64
	ShadowThreshold float64
	TitanThreshold  float64

	Merit     MeritParams
	Autopilot AutopilotParams

	AlertIntervalSeconds   int
	AlertLookbackHours     int
	AlertCooldownMinutes   int
	OutcomeIntervalSeconds int
	OutcomeHorizonsMinutes []int
	OutcomeBatchPerHorizon int

	StreamMaxRetries int

	OllamaURL   string
	OllamaModel string

	// Directory of operator-curated seed CSVs, empty to skip import.
	SeedPackDir string

	APIAddr         string
	AllowedOrigins  string
	APIAuthToken    string
	RateLimitPerMin int
	RateLimitBurst  int

	// Comma-separated worker names, or "all".
	Workers []string
}

var requiredChains = []string{"ethereum", "bsc"}

// AllWorkers names every long-lived worker the engine can run.
var AllWorkers = []string{
	"listener", "decoder", "risk", "profiler",
	"merit", "alerts", "outcomes", "autopilot",
}

// Load reads the environment into a Config and validates it. It returns an
// error for any condition the workers cannot start under.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		OceanThreshold:  getEnvFloat("TIER_OCEAN_THRESHOLD", 1_000_000),
		ShadowThreshold: getEnvFloat("TIER_SHADOW_THRESHOLD", 100_000),
		TitanThreshold:  getEnvFloat("TIER_TITAN_THRESHOLD", 10_000),

		Merit: MeritParams{
			Decay:                  getEnvFloat("MERIT_DECAY", 0.85),
			PriorConstant:          getEnvFloat("MERIT_PRIOR_CONSTANT", 0.05),
			ClampMin:               getEnvFloat("MERIT_CLAMP_MIN", -0.5),
			ClampMax:               getEnvFloat("MERIT_CLAMP_MAX", 0.5),
			ShadowToTitanThreshold: getEnvFloat("MERIT_SHADOW_TO_TITAN_THRESHOLD", 0.08),
			ShadowToTitanSamples:   getEnvInt("MERIT_SHADOW_TO_TITAN_SAMPLES", 20),
			ShadowToTitanIntegrity: getEnvFloat("MERIT_SHADOW_TO_TITAN_INTEGRITY", 0.8),
			OceanToShadowPositives: getEnvInt("MERIT_OCEAN_TO_SHADOW_POSITIVES", 3),
			SeedDecaySamples:       getEnvInt("MERIT_SEED_DECAY_SAMPLES", 12),
			SeedDecayThreshold:     getEnvFloat("MERIT_SEED_DECAY_THRESHOLD", -0.02),
			SeedDecayTargetTier:    getEnvOrDefault("MERIT_SEED_DECAY_TARGET_TIER", "ocean"),
		},

		Autopilot: AutopilotParams{
			MinSleepSeconds:       getEnvInt("AUTOPILOT_MIN_SLEEP_SECONDS", 180),
			MaxSleepSeconds:       getEnvInt("AUTOPILOT_MAX_SLEEP_SECONDS", 420),
			MaxPairsPerChain:      getEnvInt("AUTOPILOT_MAX_PAIRS_PER_CHAIN", 40),
			MinPairAgeHours:       getEnvFloat("AUTOPILOT_MIN_PAIR_AGE_HOURS", 6),
			AgeFallbackMultiplier: getEnvFloat("AUTOPILOT_AGE_FALLBACK_MULTIPLIER", 2.0),
			PairTTLHours:          getEnvInt("AUTOPILOT_PAIR_TTL_HOURS", 6),
		},

		AlertIntervalSeconds:   getEnvInt("ALERT_INTERVAL_SECONDS", 60),
		AlertLookbackHours:     getEnvInt("ALERT_LOOKBACK_HOURS", 24),
		AlertCooldownMinutes:   getEnvInt("ALERT_COOLDOWN_MINUTES", 60),
		OutcomeIntervalSeconds: getEnvInt("OUTCOME_RUN_INTERVAL_SECONDS", 300),
		OutcomeHorizonsMinutes: []int{30, 360, 1440},
		OutcomeBatchPerHorizon: getEnvInt("OUTCOME_BATCH_PER_HORIZON", 200),

		StreamMaxRetries: getEnvInt("STREAM_MAX_RETRIES", 3),

		OllamaURL:   getEnvOrDefault("OLLAMA_URL", ""),
		OllamaModel: getEnvOrDefault("OLLAMA_MODEL", "llama3.1"),

		SeedPackDir: getEnvOrDefault("SEED_PACK_DIR", ""),

		APIAddr:         getEnvOrDefault("API_ADDR", ":8080"),
		AllowedOrigins:  getEnvOrDefault("ALLOWED_ORIGINS", "*"),
		APIAuthToken:    os.Getenv("API_AUTH_TOKEN"),
		RateLimitPerMin: getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:  getEnvInt("API_RATE_LIMIT_BURST", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	chains, err := parseChainConfig(os.Getenv("CHAIN_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	cfg.ChainParams = map[string]ChainParams{
		"ethereum": {
			DefaultExpectedMove: getEnvFloat("NETEV_EXPECTED_MOVE_ETH", 0.08),
			DefaultGasCostUsd:   getEnvFloat("NETEV_DEFAULT_GAS_USD_ETH", 12.0),
			MinUsdProfit:        getEnvFloat("NETEV_MIN_USD_PROFIT_ETH", 20.0),
			MinRoiAfterCosts:    getEnvFloat("NETEV_MIN_ROI_ETH", 0.05),
			LiquidityFloorUsd:   getEnvFloat("AUTOPILOT_LIQUIDITY_FLOOR_ETH", 50_000),
			VolumeFloorUsd:      getEnvFloat("AUTOPILOT_VOLUME_FLOOR_ETH", 25_000),
		},
		"bsc": {
			DefaultExpectedMove: getEnvFloat("NETEV_EXPECTED_MOVE_BSC", 0.05),
			DefaultGasCostUsd:   getEnvFloat("NETEV_DEFAULT_GAS_USD_BSC", 0.5),
			MinUsdProfit:        getEnvFloat("NETEV_MIN_USD_PROFIT_BSC", 10.0),
			MinRoiAfterCosts:    getEnvFloat("NETEV_MIN_ROI_BSC", 0.04),
			LiquidityFloorUsd:   getEnvFloat("AUTOPILOT_LIQUIDITY_FLOOR_BSC", 25_000),
			VolumeFloorUsd:      getEnvFloat("AUTOPILOT_VOLUME_FLOOR_BSC", 10_000),
		},
	}

	cfg.WatchedAddresses = map[string][]string{
		"ethereum": parseAddressList(os.Getenv("WATCHED_ADDRESSES_ETH")),
		"bsc":      parseAddressList(os.Getenv("WATCHED_ADDRESSES_BSC")),
	}

	workers := getEnvOrDefault("WORKERS", "all")
	for _, w := range strings.Split(workers, ",") {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			cfg.Workers = append(cfg.Workers, w)
		}
	}

	return cfg, nil
}

// RunsWorker reports whether the named worker is enabled.
func (c *Config) RunsWorker(name string) bool {
	for _, w := range c.Workers {
		if w == "all" || w == name {
			return true
		}
	}
	return false
}

// ProfilerRunsMerit reports whether merit cycles should piggyback on the
// profiler refresh. When the standalone merit worker is also enabled it owns
// the cadence alone, so decay is never applied twice per interval.
func (c *Config) ProfilerRunsMerit() bool {
	return c.RunsWorker("profiler") && !c.RunsWorker("merit")
}

// Params returns the chain constants, defaulting to the ethereum set for an
// unknown chain so callers never divide by zero.
func (c *Config) Params(chain string) ChainParams {
	if p, ok := c.ChainParams[chain]; ok {
		return p
	}
	return c.ChainParams["ethereum"]
}

func parseChainConfig(raw string) (map[string]ChainEndpoints, error) {
	if raw == "" {
		return nil, fmt.Errorf("CHAIN_CONFIG is required")
	}
	var chains map[string]ChainEndpoints
	if err := json.Unmarshal([]byte(raw), &chains); err != nil {
		return nil, fmt.Errorf("invalid CHAIN_CONFIG: %w", err)
	}
	for _, name := range requiredChains {
		ep, ok := chains[name]
		if !ok {
			return nil, fmt.Errorf("CHAIN_CONFIG missing required chain %q", name)
		}
		if ep.RPCHTTP == "" && ep.RPCWS == "" {
			return nil, fmt.Errorf("CHAIN_CONFIG chain %q has no endpoints", name)
		}
	}
	return chains, nil
}

// parseAddressList accepts either a JSON string array or a comma-separated
// list. Addresses are lowercased.
func parseAddressList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(raw, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			for _, a := range arr {
				if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
					out = append(out, a)
				}
			}
			return out
		}
	}
	for _, a := range strings.Split(raw, ",") {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
