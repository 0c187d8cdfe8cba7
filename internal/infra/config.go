package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"5000" validate:"required,numeric"`
	DatabaseURL string `env:"DATABASE_URL"`
	Locale      string `env:"LOCALE" envDefault:"zh"`

	VolcengineAccessKey string `env:"VOLCENGINE_ACCESS_KEY"`
	VolcengineSecretKey string `env:"VOLCENGINE_SECRET_KEY"`
	VolcengineRegion    string `env:"VOLCENGINE_REGION" envDefault:"cn-north-1"`
	VolcengineService   string `env:"VOLCENGINE_SERVICE" envDefault:"cv"`
	VolcengineHost      string `env:"VOLCENGINE_HOST"`
	VolcengineBaseURL   string `env:"VOLCENGINE_BASE_URL" envDefault:"https://visual.volcengineapi.com" validate:"required,url"`
	SecretKeyEncoding   string `env:"SECRET_KEY_ENCODING" envDefault:"auto" validate:"oneof=auto raw"`

	Transport    string `env:"TRANSPORT" envDefault:"direct" validate:"oneof=direct proxy"`
	ProxyBaseURL string `env:"PROXY_BASE_URL" envDefault:"http://localhost:5000" validate:"required,url"`
	ProxyToken   string `env:"PROXY_TOKEN"`

	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"3s" validate:"gt=0"`
	MaxPolls       int           `env:"MAX_POLLS" envDefault:"0" validate:"gte=0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	ProviderQPS    float64       `env:"PROVIDER_QPS" envDefault:"0" validate:"gte=0"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin    int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30" validate:"gte=0"`
}

var configValidator = validator.New()

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Key material is not checked here; the components that sign requests reject
// missing keys when they are constructed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// HasVolcengineKeys reports whether both keys were provided through the environment.
func (c *Config) HasVolcengineKeys() bool {
	return c.VolcengineAccessKey != "" && c.VolcengineSecretKey != ""
}

// IsDevelopment reports whether verbose development defaults apply.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
