package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Region     RegionConfig     `yaml:"region" mapstructure:"region"`
	Collect    CollectConfig    `yaml:"collect" mapstructure:"collect"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Features   FeaturesConfig   `yaml:"features" mapstructure:"features"`
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the checkpoint/results database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"` // sqlite file path
}

// RegionConfig defines the swept region and its seed tiling.
type RegionConfig struct {
	LatMin        float64 `yaml:"lat_min" mapstructure:"lat_min"`
	LatMax        float64 `yaml:"lat_max" mapstructure:"lat_max"`
	LonMin        float64 `yaml:"lon_min" mapstructure:"lon_min"`
	LonMax        float64 `yaml:"lon_max" mapstructure:"lon_max"`
	SpacingMeters float64 `yaml:"spacing_meters" mapstructure:"spacing_meters"`
	LandmarkFile  string  `yaml:"landmark_file" mapstructure:"landmark_file"` // optional GeoJSON of extra seeds
	ZoneFile      string  `yaml:"zone_file" mapstructure:"zone_file"`         // zone boundaries (.geojson or .shp)
}

// CollectConfig configures the tile sweep.
type CollectConfig struct {
	Workers       int     `yaml:"workers" mapstructure:"workers"`
	RadiusMeters  int     `yaml:"radius_meters" mapstructure:"radius_meters"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// PlacesConfig holds listings source API settings.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ClassifierConfig configures the cuisine classification pass.
type ClassifierConfig struct {
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`
	InterCallDelay time.Duration `yaml:"inter_call_delay" mapstructure:"inter_call_delay"`
	Labels         []string      `yaml:"labels" mapstructure:"labels"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FeaturesConfig configures feature construction.
type FeaturesConfig struct {
	ClusterRadiusMeters float64 `yaml:"cluster_radius_meters" mapstructure:"cluster_radius_meters"`
	ChainMinSightings   int     `yaml:"chain_min_sightings" mapstructure:"chain_min_sightings"`
	ZoneBufferMeters    float64 `yaml:"zone_buffer_meters" mapstructure:"zone_buffer_meters"`
}

// ModelConfig configures expectation model training.
type ModelConfig struct {
	Trees        int     `yaml:"trees" mapstructure:"trees"`
	MaxDepth     int     `yaml:"max_depth" mapstructure:"max_depth"`
	LearningRate float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	L2           float64 `yaml:"l2" mapstructure:"l2"`
	MinLeaf      int     `yaml:"min_leaf" mapstructure:"min_leaf"`
	CVFolds      int     `yaml:"cv_folds" mapstructure:"cv_folds"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	MaxRMSE      float64 `yaml:"max_rmse" mapstructure:"max_rmse"`
}

// ScoringConfig configures tiering and downstream filtering.
type ScoringConfig struct {
	GemThreshold  float64 `yaml:"gem_threshold" mapstructure:"gem_threshold"`
	FairThreshold float64 `yaml:"fair_threshold" mapstructure:"fair_threshold"`
	MinReviews    int     `yaml:"min_reviews" mapstructure:"min_reviews"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "gems.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	// Singapore bounding box; 700m grid spacing gives good coverage for a
	// 500m query radius without excessive overlap.
	v.SetDefault("region.lat_min", 1.20)
	v.SetDefault("region.lat_max", 1.48)
	v.SetDefault("region.lon_min", 103.60)
	v.SetDefault("region.lon_max", 104.05)
	v.SetDefault("region.spacing_meters", 700.0)
	v.SetDefault("collect.workers", 4)
	v.SetDefault("collect.radius_meters", 500)
	v.SetDefault("collect.rate_per_second", 2.0)
	v.SetDefault("collect.max_retries", 3)
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("classifier.batch_size", 20)
	v.SetDefault("classifier.inter_call_delay", "6s")
	v.SetDefault("classifier.labels", []string{
		"Japanese", "Korean", "Chinese", "Indian", "Thai", "Vietnamese",
		"Malay", "Western", "Italian", "Mexican", "Middle Eastern",
		"Seafood", "Hawker", "Cafe", "Fast Food", "BBQ", "Other",
	})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("features.cluster_radius_meters", 200.0)
	v.SetDefault("features.chain_min_sightings", 3)
	v.SetDefault("features.zone_buffer_meters", 2000.0)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.max_depth", 4)
	v.SetDefault("model.learning_rate", 0.1)
	v.SetDefault("model.l2", 1.0)
	v.SetDefault("model.min_leaf", 5)
	v.SetDefault("model.cv_folds", 5)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.max_rmse", 0.45)
	v.SetDefault("scoring.gem_threshold", 0.5)
	v.SetDefault("scoring.fair_threshold", 0.0)
	v.SetDefault("scoring.min_reviews", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
