// Package config loads and validates the engine's configuration
// document (spec.md §6): authoritative-store credentials, pool sizes,
// cache-store tuning, persisted-file paths, loop periods, and the
// stationtypes/parameters registry declarations.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fmiobs/obsengine/internal/obserrors"
)

// DatabaseConfig holds the authoritative-store connection credentials.
type DatabaseConfig struct {
	Service  string `mapstructure:"service"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	NLSLang  string `mapstructure:"nls_lang"`
}

// SQLiteConfig holds local-cache-store engine tuning knobs.
type SQLiteConfig struct {
	ThreadingMode string `mapstructure:"threading_mode"`
	Timeout       int    `mapstructure:"timeout"`
	SharedCache   bool   `mapstructure:"shared_cache"`
	MemStatus     bool   `mapstructure:"memstatus"`
	Synchronous   string `mapstructure:"synchronous"`
	JournalMode   string `mapstructure:"journal_mode"`
}

// CacheConfig holds the LRU constellation's capacities and TTLs.
type CacheConfig struct {
	DisableUpdates               bool `mapstructure:"disableUpdates"`
	BoundingBoxCacheSize         int  `mapstructure:"boundingBoxCacheSize"`
	StationCacheSize             int  `mapstructure:"stationCacheSize"`
	ResultCacheSize              int  `mapstructure:"resultCacheSize"`
	LocationCacheSize            int  `mapstructure:"locationCacheSize"`
	SpatialiteCacheDuration      int  `mapstructure:"spatialiteCacheDuration"`
	SpatialiteFlashCacheDuration int  `mapstructure:"spatialiteFlashCacheDuration"`
	QueryResultBaseCacheSize     int  `mapstructure:"queryResultBaseCacheSize"`
}

// StationTypeConfig is one entry of the stationtypes list.
type StationTypeConfig struct {
	Name                 string   `mapstructure:"name"`
	UseCommonQueryMethod bool     `mapstructure:"useCommonQueryMethod"`
	Cached               bool     `mapstructure:"cached"`
	StationGroups        []string `mapstructure:"stationGroups"`
	ProducerIDs          []int    `mapstructure:"producerIds"`
	DatabaseTableName    string   `mapstructure:"databaseTableName"`
}

// ParameterConfig is one entry of the parameters list: an alias plus its
// per-class measurand code map (<alias>.<class> = <measurand_code>).
type ParameterConfig struct {
	Alias    string            `mapstructure:"alias"`
	PerClass map[string]string `mapstructure:"perClass"`
}

// Config is the fully parsed, validated configuration document.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`

	PoolSize              int `mapstructure:"poolsize"`
	SpatialitePoolSize    int `mapstructure:"spatialitePoolSize"`
	PoolGetTimeoutSeconds int `mapstructure:"oracleConnectionPoolGetConnectionTimeOutSeconds"`

	SpatialiteFile         string `mapstructure:"spatialiteFile"`
	SerializedStationsFile string `mapstructure:"serializedStationsFile"`
	DBRegistryFolderPath   string `mapstructure:"dbRegistryFolderPath"`

	SQLite SQLiteConfig `mapstructure:"sqlite"`

	FinUpdateIntervalSeconds   int `mapstructure:"finUpdateInterval"`
	ExtUpdateIntervalSeconds   int `mapstructure:"extUpdateInterval"`
	FlashUpdateIntervalSeconds int `mapstructure:"flashUpdateInterval"`

	ObservationRetentionSeconds int `mapstructure:"observationRetentionSeconds"`
	QCRetentionSeconds          int `mapstructure:"qcRetentionSeconds"`
	FlashRetentionSeconds       int `mapstructure:"flashRetentionSeconds"`

	Cache CacheConfig `mapstructure:"cache"`

	StationTypes []StationTypeConfig `mapstructure:"stationtypes"`
	Parameters   []ParameterConfig   `mapstructure:"parameters"`

	MaxInsertSize int `mapstructure:"maxInsertSize"`
}

// PoolGetTimeout returns the pool acquire timeout as a time.Duration.
func (c *Config) PoolGetTimeout() time.Duration {
	return time.Duration(c.PoolGetTimeoutSeconds) * time.Second
}

// FinUpdateInterval returns the observation-data loop period.
func (c *Config) FinUpdateInterval() time.Duration {
	return time.Duration(c.FinUpdateIntervalSeconds) * time.Second
}

// ExtUpdateInterval returns the weather-data-qc loop period.
func (c *Config) ExtUpdateInterval() time.Duration {
	return time.Duration(c.ExtUpdateIntervalSeconds) * time.Second
}

// FlashUpdateInterval returns the flash-data loop period.
func (c *Config) FlashUpdateInterval() time.Duration {
	return time.Duration(c.FlashUpdateIntervalSeconds) * time.Second
}

// ObservationRetention returns how far back the observation-data loop
// keeps rows in the local store before trimming them.
func (c *Config) ObservationRetention() time.Duration {
	return time.Duration(c.ObservationRetentionSeconds) * time.Second
}

// QCRetention returns the weather-data-qc loop's retention window.
func (c *Config) QCRetention() time.Duration {
	return time.Duration(c.QCRetentionSeconds) * time.Second
}

// FlashRetention returns the flash-data loop's retention window.
func (c *Config) FlashRetention() time.Duration {
	return time.Duration(c.FlashRetentionSeconds) * time.Second
}

// Validate accumulates every configuration violation it finds and
// returns them joined, rather than failing on the first missing key.
func (c *Config) Validate() error {
	var violations []string

	if c.Database.Service == "" {
		violations = append(violations, "database.service must not be empty")
	}
	if c.Database.Username == "" {
		violations = append(violations, "database.username must not be empty")
	}
	if c.PoolSize <= 0 {
		violations = append(violations, "poolsize must be positive")
	}
	if c.SpatialitePoolSize <= 0 {
		violations = append(violations, "spatialitePoolSize must be positive")
	}
	if c.PoolGetTimeoutSeconds <= 0 {
		violations = append(violations, "oracleConnectionPoolGetConnectionTimeOutSeconds must be positive")
	}
	if c.SpatialiteFile == "" {
		violations = append(violations, "spatialiteFile must not be empty")
	}
	if c.MaxInsertSize <= 0 {
		violations = append(violations, "maxInsertSize must be positive")
	}
	if len(c.StationTypes) == 0 {
		violations = append(violations, "stationtypes must declare at least one class")
	}
	if c.FinUpdateIntervalSeconds <= 0 {
		violations = append(violations, "finUpdateInterval must be positive")
	}
	if c.ExtUpdateIntervalSeconds <= 0 {
		violations = append(violations, "extUpdateInterval must be positive")
	}
	if c.FlashUpdateIntervalSeconds <= 0 {
		violations = append(violations, "flashUpdateInterval must be positive")
	}
	if c.ObservationRetentionSeconds <= 0 {
		violations = append(violations, "observationRetentionSeconds must be positive")
	}
	if c.QCRetentionSeconds <= 0 {
		violations = append(violations, "qcRetentionSeconds must be positive")
	}
	if c.FlashRetentionSeconds <= 0 {
		violations = append(violations, "flashRetentionSeconds must be positive")
	}

	if len(violations) > 0 {
		return fmt.Errorf("config: %s: %w", strings.Join(violations, "; "), obserrors.ErrConfig)
	}
	return nil
}

// Load reads the configuration document at path (YAML, JSON, or TOML,
// detected by extension), overlays any OBSENGINE_-prefixed environment
// variables on top, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("OBSENGINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, obserrors.ErrConfig)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", obserrors.ErrConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
