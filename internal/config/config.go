package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/keeperlabs/rebalancer/internal/types"
)

// Application configuration loaded from environment variables, populated at
// startup by LoadConfig.
var (
	// Mode selects the execution backend. Only "sim" is currently supported;
	// anything else halts at startup.
	Mode string

	// Threshold is the drift tolerance as a fraction of types.Scale.
	Threshold sdkmath.Int
	// Interval is the minimum elapsed time between keeper sweeps.
	Interval time.Duration
	// KeeperPoll is how often the keeper loop probes the trigger condition.
	KeeperPoll time.Duration
	// SwapMinOut is the minimum-output floor for every swap.
	SwapMinOut sdkmath.Int
	// DeadlineGrace is the window added to "now" for swap deadlines.
	DeadlineGrace time.Duration

	// VolatileAsset and PeggedAsset are the two supported assets.
	VolatileAsset types.Asset
	PeggedAsset   types.Asset

	// OraclePrice seeds the sim-mode oracle, quoted with OraclePriceDecimals.
	OraclePrice         sdkmath.Int
	OraclePriceDecimals uint8

	// AmmReserveVolatile / AmmReservePegged seed the sim-mode pool.
	AmmReserveVolatile sdkmath.Int
	AmmReservePegged   sdkmath.Int

	// Owner gates administrative operations; VaultAddr holds custody funds;
	// RouterAddr is the swap venue's approval target.
	Owner      string
	VaultAddr  string
	RouterAddr string
)

// LoadConfig loads configuration from environment variables. Core variables
// are required; operational knobs carry defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("MODE")
	if err != nil {
		return err
	}

	Threshold, err = getEnvAsFraction("REBALANCE_THRESHOLD")
	if err != nil {
		return err
	}

	intervalSec, err := getEnvAsUint64("REBALANCE_INTERVAL_SECONDS")
	if err != nil {
		return err
	}
	if intervalSec == 0 {
		return errors.New("REBALANCE_INTERVAL_SECONDS must be positive")
	}
	Interval = time.Duration(intervalSec) * time.Second

	pollSec := getEnvUint64OrDefault("KEEPER_POLL_SECONDS", 30)
	KeeperPoll = time.Duration(pollSec) * time.Second

	SwapMinOut, err = getEnvIntOrDefault("SWAP_MIN_OUT", sdkmath.OneInt())
	if err != nil {
		return err
	}

	graceSec := getEnvUint64OrDefault("SWAP_DEADLINE_GRACE_SECONDS", 0)
	DeadlineGrace = time.Duration(graceSec) * time.Second

	VolatileAsset, err = loadAsset("VOLATILE", types.AssetVolatile)
	if err != nil {
		return err
	}
	PeggedAsset, err = loadAsset("PEGGED", types.AssetPegged)
	if err != nil {
		return err
	}

	OraclePrice, err = getEnvAsInt("ORACLE_PRICE")
	if err != nil {
		return err
	}
	priceDecimals, err := getEnvAsUint64("ORACLE_PRICE_DECIMALS")
	if err != nil {
		return err
	}
	if priceDecimals > 18 {
		return fmt.Errorf("ORACLE_PRICE_DECIMALS must be at most 18, got %d", priceDecimals)
	}
	OraclePriceDecimals = uint8(priceDecimals)

	AmmReserveVolatile, err = getEnvAsInt("AMM_RESERVE_VOLATILE")
	if err != nil {
		return err
	}
	AmmReservePegged, err = getEnvAsInt("AMM_RESERVE_PEGGED")
	if err != nil {
		return err
	}

	Owner, err = getEnv("OWNER_ADDRESS")
	if err != nil {
		return err
	}
	VaultAddr = getEnvOrDefault("VAULT_ADDRESS", "rebalancer-vault")
	RouterAddr = getEnvOrDefault("ROUTER_ADDRESS", "amm-router")

	log.Debug().
		Str("mode", Mode).
		Str("threshold", Threshold.String()).
		Str("interval", Interval.String()).
		Str("volatile", VolatileAsset.Denom).
		Str("pegged", PeggedAsset.Denom).
		Msg("Configuration loaded successfully.")
	return nil
}

// loadAsset reads <PREFIX>_DENOM, <PREFIX>_SYMBOL, and <PREFIX>_DECIMALS.
func loadAsset(prefix string, class types.AssetClass) (types.Asset, error) {
	denom, err := getEnv(prefix + "_DENOM")
	if err != nil {
		return types.Asset{}, err
	}
	symbol, err := getEnv(prefix + "_SYMBOL")
	if err != nil {
		return types.Asset{}, err
	}
	decimals, err := getEnvAsUint64(prefix + "_DECIMALS")
	if err != nil {
		return types.Asset{}, err
	}
	// Range-check before the narrowing cast so oversized values fail loudly
	// instead of truncating into something Validate would accept.
	if decimals > 18 {
		return types.Asset{}, fmt.Errorf("%s_DECIMALS must be at most 18, got %d", prefix, decimals)
	}
	asset := types.Asset{
		Denom:    denom,
		Symbol:   symbol,
		Decimals: uint8(decimals),
		Class:    class,
	}
	if err := asset.Validate(); err != nil {
		return types.Asset{}, fmt.Errorf("invalid %s asset configuration: %w", prefix, err)
	}
	return asset, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvUint64OrDefault(key string, fallback uint64) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid value, using default")
		return fallback
	}
	return value
}

// getEnvAsInt retrieves an environment variable as a positive sdkmath.Int.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || !value.IsPositive() {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a positive integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvIntOrDefault(key string, fallback sdkmath.Int) (sdkmath.Int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || !value.IsPositive() {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a positive integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFraction parses a decimal string like "0.05" into a fraction of
// types.Scale.
func getEnvAsFraction(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	dec, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("environment variable %s must be a decimal fraction, got %q: %w", key, valueStr, err)
	}
	fraction := dec.MulInt(types.Scale).TruncateInt()
	if !fraction.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("environment variable %s must be a positive fraction, got %q", key, valueStr)
	}
	return fraction, nil
}
