package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL          string
	Port           int
	LogLevel       string
	LogFormat      string
	BroadcastURL   string
	ServiceRoleKey string

	// CronSecret is compared against x-cron-secret / x-internal-secret / body.
	// Mismatches only warn unless EnforceCronSecret is set.
	CronSecret        string
	EnforceCronSecret bool

	JobName         string
	PositionWindow  time.Duration
	CountDailySends bool
	RunLock         bool

	BroadcastTimeout time.Duration
	BroadcastRPS     float64
}

const (
	defaultPort             = 8080
	defaultLogLevel         = "info"
	defaultJobName          = "geofence-engine"
	defaultPositionWindow   = 15 * time.Minute
	defaultBroadcastTimeout = 10 * time.Second
)

// Load reads required values from environment variables.
// DB_URL, BROADCAST_URL and SERVICE_ROLE_KEY are required.
func Load() (Config, error) {
	cfg := Config{
		Port:             defaultPort,
		LogLevel:         defaultLogLevel,
		LogFormat:        "text",
		JobName:          defaultJobName,
		PositionWindow:   defaultPositionWindow,
		RunLock:          true,
		BroadcastTimeout: defaultBroadcastTimeout,
	}

	cfg.DBURL = strings.TrimSpace(os.Getenv("DB_URL"))
	if cfg.DBURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	cfg.BroadcastURL = strings.TrimSpace(os.Getenv("BROADCAST_URL"))
	if cfg.BroadcastURL == "" {
		return Config{}, errors.New("BROADCAST_URL required")
	}

	cfg.ServiceRoleKey = strings.TrimSpace(os.Getenv("SERVICE_ROLE_KEY"))
	if cfg.ServiceRoleKey == "" {
		return Config{}, errors.New("SERVICE_ROLE_KEY required")
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	cfg.CronSecret = strings.TrimSpace(os.Getenv("CRON_SECRET"))

	var err error
	if cfg.EnforceCronSecret, err = boolEnv("CRON_SECRET_ENFORCE", false); err != nil {
		return Config{}, err
	}
	if cfg.CountDailySends, err = boolEnv("GEO_PUSH_COUNT_DAILY_SENDS", false); err != nil {
		return Config{}, err
	}
	if cfg.RunLock, err = boolEnv("GEO_PUSH_RUN_LOCK", true); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv("GEO_PUSH_JOB_NAME")); v != "" {
		cfg.JobName = v
	}

	if cfg.PositionWindow, err = durationEnv("GEO_PUSH_POSITION_WINDOW", defaultPositionWindow); err != nil {
		return Config{}, err
	}
	if cfg.BroadcastTimeout, err = durationEnv("BROADCAST_TIMEOUT", defaultBroadcastTimeout); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv("BROADCAST_RPS")); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("invalid BROADCAST_RPS %q", v)
		}
		cfg.BroadcastRPS = rps
	}

	return cfg, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func boolEnv(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
