package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OwnerAddress is the protocol owner; it passes every role gate.
	OwnerAddress string
	// FeeWalletAddress receives staking performance fees.
	FeeWalletAddress string
	// StakingWalletAddress is the account that custodies staked balances.
	StakingWalletAddress string
	// USDReferenceContract is the token used as the USD price reference
	// when converting tier thresholds to native units.
	USDReferenceContract string

	// CycleIntervalSecs is the period of the engine loop.
	CycleIntervalSecs uint64

	// WebPort is the port for the dashboard and API server.
	WebPort string

	// SeedRegistry controls whether the default token universe is
	// registered at startup. Intended for dev and test deployments.
	SeedRegistry bool
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set unless noted otherwise.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	OwnerAddress, err = getEnv("PROTOCOL_OWNER")
	if err != nil {
		return err
	}

	FeeWalletAddress, err = getEnv("FEE_WALLET")
	if err != nil {
		return err
	}

	StakingWalletAddress, err = getEnv("STAKING_WALLET")
	if err != nil {
		return err
	}

	USDReferenceContract, err = getEnv("USD_REFERENCE_CONTRACT")
	if err != nil {
		return err
	}

	CycleIntervalSecs, err = getEnvAsUint64("CYCLE_INTERVAL_SECS")
	if err != nil {
		return err
	}

	// Optional settings with defaults.
	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}
	SeedRegistry = os.Getenv("SEED_REGISTRY") == "true"

	log.Debug().
		Str("Owner", OwnerAddress).
		Str("FeeWallet", FeeWalletAddress).
		Uint64("CycleIntervalSecs", CycleIntervalSecs).
		Str("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
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
