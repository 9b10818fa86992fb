package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"fleet-alert-service/internal/domain/fleet"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type UpstreamConfig struct {
	ColtrackBaseURL  string
	ColtrackUser     string
	ColtrackPassword string
	SatrackBaseURL   string
	SatrackToken     string
	FetchTimeout     time.Duration
}

type EngineConfig struct {
	SpeedThresholdKmh float64
	// DedupWindows holds the per-type sliding window; DefaultDedupWindow
	// covers types with no entry.
	DedupWindows       map[fleet.AlertType]time.Duration
	DefaultDedupWindow time.Duration
	CriticalLookback   time.Duration
	PollInterval       time.Duration
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Upstream    UpstreamConfig
	Engine      EngineConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Upstream: UpstreamConfig{
			ColtrackBaseURL:  v.GetString("COLTRACK_BASE_URL"),
			ColtrackUser:     v.GetString("COLTRACK_USER"),
			ColtrackPassword: v.GetString("COLTRACK_PASSWORD"),
			SatrackBaseURL:   v.GetString("SATRACK_BASE_URL"),
			SatrackToken:     v.GetString("SATRACK_TOKEN"),
			FetchTimeout:     v.GetDuration("UPSTREAM_FETCH_TIMEOUT"),
		},
		Engine: EngineConfig{
			SpeedThresholdKmh:  v.GetFloat64("SPEED_THRESHOLD_KMH"),
			DefaultDedupWindow: time.Duration(v.GetInt("DEDUP_DEFAULT_WINDOW_MIN")) * time.Minute,
			CriticalLookback:   time.Duration(v.GetInt("CRITICAL_LOOKBACK_HOURS")) * time.Hour,
			PollInterval:       time.Duration(v.GetInt("POLL_INTERVAL_MIN")) * time.Minute,
		},
	}

	cfg.Engine.DedupWindows = map[fleet.AlertType]time.Duration{
		fleet.AlertSpeedViolation:    windowMinutes(v, "DEDUP_WINDOW_SPEED_MIN", 15),
		fleet.AlertHarshBraking:      windowMinutes(v, "DEDUP_WINDOW_HARSH_BRAKING_MIN", 10),
		fleet.AlertHarshAcceleration: windowMinutes(v, "DEDUP_WINDOW_HARSH_ACCEL_MIN", 10),
		fleet.AlertPanicButton:       windowMinutes(v, "DEDUP_WINDOW_PANIC_MIN", 60),
		fleet.AlertCollision:         windowMinutes(v, "DEDUP_WINDOW_COLLISION_MIN", 1440),
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Upstream.FetchTimeout == 0 {
		cfg.Upstream.FetchTimeout = 30 * time.Second
	}
	if cfg.Engine.SpeedThresholdKmh == 0 {
		cfg.Engine.SpeedThresholdKmh = 80
	}
	if cfg.Engine.DefaultDedupWindow == 0 {
		cfg.Engine.DefaultDedupWindow = 15 * time.Minute
	}
	if cfg.Engine.CriticalLookback == 0 {
		cfg.Engine.CriticalLookback = 24 * time.Hour
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = 5 * time.Minute
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func windowMinutes(v *viper.Viper, key string, fallback int) time.Duration {
	minutes := v.GetInt(key)
	if minutes <= 0 {
		minutes = fallback
	}
	return time.Duration(minutes) * time.Minute
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	for alertType, window := range cfg.Engine.DedupWindows {
		if fleet.CriticalTypes[alertType] && cfg.Engine.CriticalLookback < window {
			return fmt.Errorf("CRITICAL_LOOKBACK_HOURS must cover the %s dedup window", alertType)
		}
	}
	return nil
}
