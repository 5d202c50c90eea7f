// Package config loads the service configuration from the environment, an
// optional .env file and an optional config file.
//
// Precedence (highest first): environment variables, config file, .env, defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	Port string `mapstructure:"PORT" validate:"required,numeric"`

	// Source is the location ingested at boot and by the ingest CLI.
	// Accepts a local path, file://, gs://bucket/object or http(s):// URL.
	// SourceFormat "auto" picks the parser from the location's extension.
	SourcePath     string `mapstructure:"CSV_PATH" validate:"required"`
	SourceFormat   string `mapstructure:"SOURCE_FORMAT" validate:"oneof=auto csv xlsx json"`
	SourceEncoding string `mapstructure:"SOURCE_ENCODING"`
	CSVDelimiter   string `mapstructure:"CSV_DELIMITER"`
	XLSXSheet      string `mapstructure:"XLSX_SHEET"`
	AutoIngest     bool   `mapstructure:"AUTO_INGEST"`

	StoreKind string `mapstructure:"STORE_KIND" validate:"required,oneof=sqlite postgres mssql"`
	StoreDSN  string `mapstructure:"STORE_DSN" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`

	MetricsBackend string `mapstructure:"METRICS_BACKEND" validate:"oneof=none datadog pushgateway"`
	PushgatewayURL string `mapstructure:"PUSHGATEWAY_URL"`
	MetricsTags    string `mapstructure:"METRICS_TAGS"`
	MetricsJob     string `mapstructure:"METRICS_JOB"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"PORT":             "3000",
	"CSV_PATH":         "atlas_inventory.csv",
	"SOURCE_FORMAT":    "auto",
	"SOURCE_ENCODING":  "",
	"CSV_DELIMITER":    ",",
	"XLSX_SHEET":       "",
	"AUTO_INGEST":      true,
	"STORE_KIND":       "sqlite",
	"STORE_DSN":        "collectwise.db",
	"LOG_LEVEL":        "info",
	"LOG_FORMAT":       "text",
	"METRICS_BACKEND":  "none",
	"PUSHGATEWAY_URL":  "http://localhost:9091",
	"METRICS_TAGS":     "",
	"METRICS_JOB":      "collectwise",
	"RABBITMQ_URL":     "",
	"EVENTS_EXCHANGE":  "collectwise.events",
	"SHUTDOWN_TIMEOUT": "10s",
}

// Load reads configuration. configFile may be empty; when set it must exist
// and its format is inferred from the extension (json, yaml, toml, env).
func Load(configFile string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	// Every key has a default, so AutomaticEnv also covers Unmarshal.
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.SourceFormat = strings.ToLower(strings.TrimSpace(c.SourceFormat))
	if c.SourceFormat == "" {
		c.SourceFormat = "auto"
	}
	c.StoreKind = strings.ToLower(strings.TrimSpace(c.StoreKind))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.MetricsBackend = strings.ToLower(strings.TrimSpace(c.MetricsBackend))
	if c.MetricsBackend == "" {
		c.MetricsBackend = "none"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

var validate = validator.New()

// Validate checks struct tags and reports every failing field in one error.
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %q)", fe.Field(), fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// ParserOptions builds the option bag handed to the configured parser.
func (c *Config) ParserOptions() Options {
	opt := Options{
		"has_header": true,
		"trim_space": true,
	}
	if c.SourceEncoding != "" {
		opt["encoding"] = c.SourceEncoding
	}
	if c.CSVDelimiter != "" {
		opt["comma"] = c.CSVDelimiter
	}
	if c.XLSXSheet != "" {
		opt["sheet"] = c.XLSXSheet
	}
	return opt
}
