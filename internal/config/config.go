// Package config reads process configuration from the environment. Both
// binaries call godotenv.Load first so a local .env file works the same as
// real environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Headend is the central process configuration.
type Headend struct {
	AssetsPath  string
	GRPCAddr    string
	HTTPAddr    string
	DatabaseURL string
	ResetDB     bool
}

// LoadHeadend reads the headend configuration. Only DATABASE_URL is optional
// in the sense of changing behavior: without it the headend runs journal-less.
func LoadHeadend() Headend {
	return Headend{
		AssetsPath:  getString("ASSETS_PATH", "assets.yaml"),
		GRPCAddr:    getString("HEADEND_GRPC_ADDR", ":50061"),
		HTTPAddr:    getString("HEADEND_HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ResetDB:     getBool("RESET_DB", false),
	}
}

// Agent is a field agent's configuration. One process simulates one asset.
type Agent struct {
	AssetID            uuid.UUID
	SiteID             uuid.UUID
	AssetName          string
	SiteName           string
	Location           string
	CapacityMWhr       float64
	MaxMW              float64
	MinMW              float64
	MinSocPct          float64
	MaxSocPct          float64
	Efficiency         float64
	RampRateMWPerMin   float64
	HeadendGRPC        string
	TickIntervalS      float64
	HeartbeatIntervalS float64
}

// LoadAgent reads the agent configuration. ASSET_ID and SITE_ID must be
// well-formed UUIDs; everything else has a workable default.
func LoadAgent() (Agent, error) {
	assetID, err := uuid.Parse(os.Getenv("ASSET_ID"))
	if err != nil {
		return Agent{}, fmt.Errorf("ASSET_ID: %w", err)
	}
	siteID, err := uuid.Parse(os.Getenv("SITE_ID"))
	if err != nil {
		return Agent{}, fmt.Errorf("SITE_ID: %w", err)
	}
	cfg := Agent{
		AssetID:            assetID,
		SiteID:             siteID,
		AssetName:          getString("ASSET_NAME", "bess-"+assetID.String()[:8]),
		SiteName:           getString("SITE_NAME", "unnamed-site"),
		Location:           os.Getenv("ASSET_LOCATION"),
		CapacityMWhr:       getFloat("CAPACITY_MWHR", 100),
		MaxMW:              getFloat("MAX_MW", 25),
		MinMW:              getFloat("MIN_MW", -25),
		MinSocPct:          getFloat("MIN_SOC_PCT", 10),
		MaxSocPct:          getFloat("MAX_SOC_PCT", 90),
		Efficiency:         getFloat("EFFICIENCY", 0.92),
		RampRateMWPerMin:   getFloat("RAMP_RATE_MW_PER_MIN", 10),
		HeadendGRPC:        getString("HEADEND_GRPC", "localhost:50061"),
		TickIntervalS:      getFloat("TICK_INTERVAL_S", 4),
		HeartbeatIntervalS: getFloat("HEARTBEAT_INTERVAL_S", 30),
	}
	if cfg.CapacityMWhr <= 0 {
		return Agent{}, fmt.Errorf("CAPACITY_MWHR must be positive, got %v", cfg.CapacityMWhr)
	}
	if cfg.TickIntervalS <= 0 {
		return Agent{}, fmt.Errorf("TICK_INTERVAL_S must be positive, got %v", cfg.TickIntervalS)
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
