package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Index sources.
const (
	IndexSourceFile = "file"
	IndexSourceDB   = "db"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	HPOJSON     string   `mapstructure:"HPO_JSON"`
	IndexSource string   `mapstructure:"INDEX_SOURCE"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	Workers     int      `mapstructure:"CR_WORKERS"`
	OverlayFile string   `mapstructure:"OVERLAY_FILE"`
	AuthSecret  string   `mapstructure:"AUTH_SECRET"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("HPO_JSON", "hp.json")
	v.SetDefault("INDEX_SOURCE", IndexSourceFile)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CR_WORKERS", 0) // 0 -> GOMAXPROCS
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "HPO_JSON", "INDEX_SOURCE", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "CR_WORKERS", "OVERLAY_FILE",
		"AUTH_SECRET", "LOG_LEVEL", "CORS_ORIGINS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.IndexSource = strings.ToLower(strings.TrimSpace(cfg.IndexSource))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer tokens are required on the API.
func (c *Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can serve recognition requests.
// The index comes either from an obographs file or from a previously
// imported database copy.
func (c *Config) Validate() error {
	switch c.IndexSource {
	case IndexSourceFile:
		if c.HPOJSON == "" {
			return fmt.Errorf("HPO_JSON is required when INDEX_SOURCE is %q", IndexSourceFile)
		}
	case IndexSourceDB:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when INDEX_SOURCE is %q", IndexSourceDB)
		}
	default:
		return fmt.Errorf("INDEX_SOURCE must be %q or %q, got %q", IndexSourceFile, IndexSourceDB, c.IndexSource)
	}

	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.Workers < 0 {
		return fmt.Errorf("CR_WORKERS must not be negative, got %d", c.Workers)
	}

	// Refuse an open API outside development.
	if c.IsProduction() && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	if c.AuthEnabled() && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes, got %d", len(c.AuthSecret))
	}
	return nil
}

// RequireDatabase checks that a database is configured for commands that
// always need one.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
