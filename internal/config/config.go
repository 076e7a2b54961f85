// Package config loads the uploader's configuration from the environment.
//
// Values are resolved in this order:
//
//	OS environment (highest) -> .env file
//
// A missing publisher id, station number or password is fatal.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrConfigurationMissing is returned when a required credential is absent.
var ErrConfigurationMissing = errors.New("required configuration is missing")

// Config is the full service configuration.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Port     string `envconfig:"PORT" default:"8080" validate:"required,numeric"`

	Station    StationConfig
	WeatherBug WeatherBugConfig
	Store      StoreConfig
	Scheduler  SchedulerConfig
}

// StationConfig holds station-wide metadata.
type StationConfig struct {
	Latitude  float64 `envconfig:"STATION_LATITUDE" default:"0" validate:"min=-90,max=90"`
	Longitude float64 `envconfig:"STATION_LONGITUDE" default:"0" validate:"min=-180,max=180"`
}

// WeatherBugConfig holds the uploader's site settings.
type WeatherBugConfig struct {
	PublisherID   string       `envconfig:"WBUG_PUBLISHER_ID"`
	StationNumber string       `envconfig:"WBUG_STATION_NUMBER"`
	Password      SecretString `envconfig:"WBUG_PASSWORD"`

	// Nil means "use the station coordinates".
	Latitude  *float64 `envconfig:"WBUG_LATITUDE" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `envconfig:"WBUG_LONGITUDE" validate:"omitempty,min=-180,max=180"`

	ServerURL   string `envconfig:"WBUG_SERVER_URL" default:"http://data.backyard2.weatherbug.com/data/livedata.aspx" validate:"required,url"`
	SkipUpload  bool   `envconfig:"WBUG_SKIP_UPLOAD" default:"false"`
	SkipMessage string `envconfig:"WBUG_SKIP_MESSAGE" default:"upload disabled for this service"`

	PostInterval time.Duration `envconfig:"WBUG_POST_INTERVAL" default:"0s" validate:"min=0"`
	MaxBacklog   int           `envconfig:"WBUG_MAX_BACKLOG" default:"0" validate:"min=0"`
	Stale        time.Duration `envconfig:"WBUG_STALE" default:"0s" validate:"min=0"`

	LogSuccess bool `envconfig:"WBUG_LOG_SUCCESS" default:"true"`
	LogFailure bool `envconfig:"WBUG_LOG_FAILURE" default:"true"`

	Timeout          time.Duration `envconfig:"WBUG_TIMEOUT" default:"60s" validate:"gt=0"`
	MaxTries         int           `envconfig:"WBUG_MAX_TRIES" default:"3" validate:"min=1"`
	RetryWait        time.Duration `envconfig:"WBUG_RETRY_WAIT" default:"5s" validate:"min=0"`
	QueueSize        int           `envconfig:"WBUG_QUEUE_SIZE" default:"1000" validate:"min=1"`
	BreakerThreshold int           `envconfig:"WBUG_BREAKER_THRESHOLD" default:"20" validate:"min=0"`
}

// StoreConfig selects and configures the archive store.
type StoreConfig struct {
	Backend string        `envconfig:"STORE_BACKEND" default:"memory" validate:"oneof=memory postgres influx"`
	MaxAge  time.Duration `envconfig:"STORE_MAX_AGE" default:"8784h" validate:"min=0"`

	DatabaseURL  SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	ArchiveTable string       `envconfig:"ARCHIVE_TABLE" default:"archive" validate:"required"`

	InfluxURL         string       `envconfig:"INFLUX_URL" validate:"required_if=Backend influx,omitempty,url"`
	InfluxToken       SecretString `envconfig:"INFLUX_TOKEN"`
	InfluxOrg         string       `envconfig:"INFLUX_ORG" validate:"required_if=Backend influx"`
	InfluxBucket      string       `envconfig:"INFLUX_BUCKET" validate:"required_if=Backend influx"`
	InfluxMeasurement string       `envconfig:"INFLUX_MEASUREMENT" default:"archive" validate:"required"`
}

// SchedulerConfig holds the periodic job intervals.
type SchedulerConfig struct {
	PruneInterval  time.Duration `envconfig:"PRUNE_INTERVAL" default:"1h" validate:"gt=0"`
	StatusInterval time.Duration `envconfig:"STATUS_INTERVAL" default:"15m" validate:"gt=0"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// ConfigError is returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads the configuration. A .env file in the working directory is
// loaded first if present; it never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if missing := cfg.WeatherBug.missing(); len(missing) > 0 {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: strings.Join(missing, ", "),
			Err:     ErrConfigurationMissing,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

func (w WeatherBugConfig) missing() []string {
	var out []string
	if strings.TrimSpace(w.PublisherID) == "" {
		out = append(out, "WBUG_PUBLISHER_ID")
	}
	if strings.TrimSpace(w.StationNumber) == "" {
		out = append(out, "WBUG_STATION_NUMBER")
	}
	if w.Password.Unmask() == "" {
		out = append(out, "WBUG_PASSWORD")
	}
	return out
}

// Coordinates returns the uploader's latitude and longitude, falling back to
// the station values for whichever is unset.
func (c *Config) Coordinates() (lat, lon float64) {
	lat, lon = c.Station.Latitude, c.Station.Longitude
	if c.WeatherBug.Latitude != nil {
		lat = *c.WeatherBug.Latitude
	}
	if c.WeatherBug.Longitude != nil {
		lon = *c.WeatherBug.Longitude
	}
	return lat, lon
}
