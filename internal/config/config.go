// Package config loads and validates importer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported catalog repository drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverNoop     = "noop"
)

// Supported archive and publish providers.
const (
	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderPubSub = "pubsub"
	ProviderMemory = "memory"
)

// Config captures all importer configuration knobs loaded via Viper.
type Config struct {
	TMDB       TMDBConfig       `mapstructure:"tmdb"`
	Import     ImportConfig     `mapstructure:"import"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Retry      RetryConfig      `mapstructure:"retry"`
	DB         DBConfig         `mapstructure:"db"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TMDBConfig holds catalog API access settings.
type TMDBConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ImageBaseURL    string        `mapstructure:"image_base_url"`
	DisplayLanguage string        `mapstructure:"display_language"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ImportConfig governs which slices of the catalog are walked.
type ImportConfig struct {
	FromYear      int               `mapstructure:"from_year"`
	ToYear        int               `mapstructure:"to_year"`
	Languages     []string          `mapstructure:"languages"`
	DefaultRegion string            `mapstructure:"default_region"`
	Regions       map[string]string `mapstructure:"regions"`
	CastLimit     int               `mapstructure:"cast_limit"`
}

// RateLimitConfig sizes the token bucket shared by all catalog API calls.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RetryConfig bounds the retry-on-429 policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DBConfig controls access to the destination database.
type DBConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	TLSCAFile    string `mapstructure:"tls_ca_file"`
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// CheckpointConfig locates the resume cursor database.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ArchiveConfig selects where raw API payloads are copied.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    LocalArchiveConfig `mapstructure:"local"`
	GCS      GCSArchiveConfig   `mapstructure:"gcs"`
}

// LocalArchiveConfig points the archive at a directory.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSArchiveConfig points the archive at a bucket.
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// PublishConfig selects where upsert notifications go.
type PublishConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps config keys to the bare variable names older deployments export.
var legacyEnv = map[string]string{
	"tmdb.api_key":   "TMDB_API_KEY",
	"db.host":        "DB_HOST",
	"db.port":        "DB_PORT",
	"db.user":        "DB_USER",
	"db.password":    "DB_PASS",
	"db.name":        "DB_NAME",
	"db.tls_ca_file": "DB_SSL_CA",
}

// Load builds a Config from disk/environment. Callers run Validate once
// command-line overrides have been applied.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "IMPORTER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Import.Languages = NormalizeLanguages(cfg.Import.Languages)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.image_base_url", "https://image.tmdb.org/t/p/w500")
	v.SetDefault("tmdb.display_language", "en-US")
	v.SetDefault("tmdb.timeout", "15s")
	v.SetDefault("import.from_year", 2015)
	v.SetDefault("import.to_year", 2025)
	v.SetDefault("import.languages", []string{"en", "hi", "ta", "te", "ml", "kn"})
	v.SetDefault("import.default_region", "IN")
	v.SetDefault("import.regions", map[string]string{"en": "US"})
	v.SetDefault("import.cast_limit", 5)
	v.SetDefault("rate_limit.requests_per_second", 4.0)
	v.SetDefault("rate_limit.burst", 4)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("db.driver", DriverMySQL)
	v.SetDefault("db.host", "")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.tls_ca_file", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "movie_series")
	v.SetDefault("db.max_open_conns", 1)
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("checkpoint.enabled", true)
	v.SetDefault("checkpoint.path", "data/import-cursor.db")
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.local.base_dir", "data/archive")
	v.SetDefault("archive.gcs.bucket", "")
	v.SetDefault("publish.provider", ProviderNone)
	v.SetDefault("publish.pubsub.project_id", "")
	v.SetDefault("publish.pubsub.topic_id", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return fmt.Errorf("tmdb.api_key must be set")
	}
	if c.TMDB.Timeout <= 0 {
		return fmt.Errorf("tmdb.timeout must be > 0")
	}
	if c.Import.FromYear <= 0 || c.Import.FromYear > c.Import.ToYear {
		return fmt.Errorf("import.from_year must be > 0 and <= import.to_year")
	}
	if len(c.Import.Languages) == 0 {
		return fmt.Errorf("import.languages must list at least one language")
	}
	if c.Import.CastLimit <= 0 {
		return fmt.Errorf("import.cast_limit must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if err := c.DB.validate(); err != nil {
		return err
	}
	if c.Checkpoint.Enabled && strings.TrimSpace(c.Checkpoint.Path) == "" {
		return fmt.Errorf("checkpoint.path must be set when checkpoints are enabled")
	}
	switch c.Archive.Provider {
	case ProviderNone, "", ProviderMemory:
	case ProviderLocal:
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set for the local archive")
		}
	case ProviderGCS:
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Publish.Provider {
	case ProviderNone, "", ProviderMemory:
	case ProviderPubSub:
		if c.Publish.PubSub.ProjectID == "" || c.Publish.PubSub.TopicID == "" {
			return fmt.Errorf("publish.pubsub.project_id and publish.pubsub.topic_id must be set")
		}
	default:
		return fmt.Errorf("unknown publish.provider %q", c.Publish.Provider)
	}
	return nil
}

func (d DBConfig) validate() error {
	switch d.Driver {
	case DriverMySQL:
		if d.Host == "" || d.User == "" || d.Name == "" {
			return fmt.Errorf("db.host, db.user and db.name must be set for mysql")
		}
		if d.Port <= 0 {
			return fmt.Errorf("db.port must be > 0")
		}
	case DriverPostgres, DriverSQLite:
		if d.DSN == "" {
			return fmt.Errorf("db.dsn must be set for %s", d.Driver)
		}
	case DriverMemory, DriverNoop:
		return nil
	default:
		return fmt.Errorf("unknown db.driver %q", d.Driver)
	}
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("db.max_open_conns must be > 0")
	}
	return nil
}

// RegionFor returns the discovery region used for an original language.
func (c ImportConfig) RegionFor(language string) string {
	if region, ok := c.Regions[strings.ToLower(language)]; ok && region != "" {
		return region
	}
	return c.DefaultRegion
}

// NormalizeLanguages lowercases, trims and splits comma-joined entries
// (env values sometimes arrive as one "en,hi" element).
func NormalizeLanguages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			lang := strings.ToLower(strings.TrimSpace(part))
			if lang == "" {
				continue
			}
			if _, dup := seen[lang]; dup {
				continue
			}
			seen[lang] = struct{}{}
			out = append(out, lang)
		}
	}
	return out
}
