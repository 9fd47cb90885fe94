package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Duration lets TOML files spell durations as "250ms" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all configuration for the application.
type Config struct {
	AppEnv   string         `toml:"app_env"`
	Survey   SurveyConfig   `toml:"survey"`
	HTTP     HTTPConfig     `toml:"http"`
	GRPC     GRPCConfig     `toml:"grpc"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
}

type SurveyConfig struct {
	Dir           string   `toml:"dir"`
	Extensions    []string `toml:"extensions"`
	CatalogFile   string   `toml:"catalog"`
	WatchDebounce Duration `toml:"watch_debounce"`
	Parallelism   int      `toml:"parallelism"`
	ReloadTimeout Duration `toml:"reload_timeout"`
}

type HTTPConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type GRPCConfig struct {
	Enabled           bool `toml:"enabled"`
	Port              int  `toml:"port"`
	ReflectionEnabled bool `toml:"reflection"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	// Path empty disables the load history.
	Path string `toml:"path"`
}

type RedisConfig struct {
	// Addr empty disables reload broadcasts.
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		AppEnv: "development",
		Survey: SurveyConfig{
			Dir:           "./Quarters",
			Extensions:    []string{".sav"},
			WatchDebounce: Duration{250 * time.Millisecond},
			Parallelism:   4,
			ReloadTimeout: Duration{2 * time.Minute},
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    8080,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Port:    50051,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "./data/surveydash.db",
		},
		Redis: RedisConfig{
			Channel: "surveydash:reload",
		},
	}
}

// LoadFromEnv builds the configuration from defaults, the TOML file named by
// CONFIG_FILE (if any) and environment variables, in that order.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)

	c.Survey.Dir = getEnv("SURVEY_DIR", c.Survey.Dir)
	if exts := getEnv("SURVEY_EXTENSIONS", ""); exts != "" {
		c.Survey.Extensions = splitList(exts)
	}
	c.Survey.CatalogFile = getEnv("CATALOG_FILE", c.Survey.CatalogFile)
	c.Survey.WatchDebounce.Duration = getDuration("WATCH_DEBOUNCE", c.Survey.WatchDebounce.Duration)
	c.Survey.Parallelism = getInt("LOAD_PARALLELISM", c.Survey.Parallelism)
	c.Survey.ReloadTimeout.Duration = getDuration("RELOAD_TIMEOUT", c.Survey.ReloadTimeout.Duration)

	c.HTTP.Enabled = getBool("HTTP_ENABLED", c.HTTP.Enabled)
	c.HTTP.Port = getInt("HTTP_PORT", c.HTTP.Port)

	c.GRPC.Enabled = getBool("GRPC_ENABLED", c.GRPC.Enabled)
	c.GRPC.Port = getInt("GRPC_PORT", c.GRPC.Port)
	c.GRPC.ReflectionEnabled = getBool("GRPC_REFLECTION_ENABLED", c.GRPC.ReflectionEnabled)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getInt("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = getEnv("REDIS_CHANNEL", c.Redis.Channel)
}

// Validate reports settings the application cannot start with.
func (c *Config) Validate() error {
	if c.Survey.Dir == "" {
		return fmt.Errorf("%w: survey directory is empty", ErrInvalidConfig)
	}
	if len(c.Survey.Extensions) == 0 {
		return fmt.Errorf("%w: no survey extensions enabled", ErrInvalidConfig)
	}
	if c.Survey.WatchDebounce.Duration < 0 {
		return fmt.Errorf("%w: negative watch debounce %s", ErrInvalidConfig, c.Survey.WatchDebounce)
	}
	if c.Survey.Parallelism < 1 {
		return fmt.Errorf("%w: load parallelism must be at least 1, got %d", ErrInvalidConfig, c.Survey.Parallelism)
	}
	if c.HTTP.Enabled {
		if err := validPort("http", c.HTTP.Port); err != nil {
			return err
		}
	}
	if c.GRPC.Enabled {
		if err := validPort("grpc", c.GRPC.Port); err != nil {
			return err
		}
	}
	if c.HTTP.Enabled && c.GRPC.Enabled && c.HTTP.Port == c.GRPC.Port {
		return fmt.Errorf("%w: http and grpc both use port %d", ErrInvalidConfig, c.HTTP.Port)
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: invalid %s port %d", ErrInvalidConfig, name, port)
	}
	return nil
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
