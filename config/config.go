package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	AppName    string `env:"APP_NAME" env-default:"clover-api"`
	AppVersion string `env:"APP_VERSION" env-default:"dev"`

	HTTP       HTTPConfig
	Resolution ResolutionDefaults
	Logging    logging.Config
	Tracing    tracing.Config
	Database   database.Config
	Migration  database.MigrationConfig
	Graph      graph.Config
	Kafka      KafkaConfig
	Intake     kafka.ConsumerConfig
}

type HTTPConfig struct {
	Port              int           `env:"PORT" env-default:"3002" validate:"gt=0,lte=65535"`
	ReadTimeout       time.Duration `env:"HTTP_SERVER_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout      time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_SERVER_READ_HEADER_TIMEOUT" env-default:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ShutdownTimeout   time.Duration `env:"HTTP_SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	BodyLimit         string        `env:"HTTP_SERVER_BODY_LIMIT" env-default:"32M"`
	AllowOrigins      []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods      []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
}

// ResolutionDefaults is the resolution config used when a request doesn't carry one
type ResolutionDefaults struct {
	MinAutoMergeConfidence  float64 `env:"RESOLUTION_MIN_AUTO_MERGE_CONFIDENCE" env-default:"0.85" validate:"gte=0,lte=1"`
	MinReviewConfidence     float64 `env:"RESOLUTION_MIN_REVIEW_CONFIDENCE" env-default:"0" validate:"gte=0,lte=1"`
	MaxAutoMergeClusterSize int     `env:"RESOLUTION_MAX_AUTO_MERGE_CLUSTER_SIZE" env-default:"10" validate:"gte=2"`
	ExactEmailMatch         bool    `env:"RESOLUTION_EXACT_EMAIL_MATCH" env-default:"true"`
	ExactOrgIDMatch         bool    `env:"RESOLUTION_EXACT_ORG_ID_MATCH" env-default:"true"`
	PrefixScale             float64 `env:"RESOLUTION_PREFIX_SCALE" env-default:"0.1" validate:"gte=0,lte=0.25"`
	Workers                 int     `env:"RESOLUTION_WORKERS" env-default:"0" validate:"gte=0"`
}

type KafkaConfig struct {
	Enabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	kafka.ProducerConfig
}

var validate = validator.New()

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and that the resolution defaults form a usable config
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("invalid config: KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.Intake.Enabled && (len(c.Intake.Brokers) == 0 || c.Intake.Topic == "") {
		return fmt.Errorf("invalid config: KAFKA_BROKERS and KAFKA_INPUT_TOPIC are required when KAFKA_CONSUMER_ENABLED is set")
	}
	if err := c.ResolutionConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// ResolutionConfig returns the default field rules with the configured thresholds applied
func (c *Config) ResolutionConfig() models.ResolutionConfig {
	cfg := models.DefaultResolutionConfig()
	cfg.MinAutoMergeConfidence = c.Resolution.MinAutoMergeConfidence
	cfg.MinReviewConfidence = c.Resolution.MinReviewConfidence
	cfg.MaxAutoMergeClusterSize = c.Resolution.MaxAutoMergeClusterSize
	cfg.ExactEmailMatch = c.Resolution.ExactEmailMatch
	cfg.ExactOrgIDMatch = c.Resolution.ExactOrgIDMatch
	cfg.PrefixScale = c.Resolution.PrefixScale
	return cfg
}
