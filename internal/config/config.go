// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища идентичностей.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// ErrInvalidConfig возвращается, когда значения прочитаны, но несовместимы.
var ErrInvalidConfig = errors.New("invalid config")

// Config: корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	Redis    RedisConfig   `yaml:"redis"`
	OAuth    OAuthConfig   `yaml:"oauth"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig: таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig описывает сетевые настройки API-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// MetricsConfig описывает отдельный листенер для /metrics.
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// Access и refresh подписываются разными секретами.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"ACCESS_SECRET" env-required:"true"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"chat-auth"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"chat-api"`
	CookieFallback  bool          `yaml:"cookie_fallback" env:"COOKIE_FALLBACK" env-default:"true"`
}

// StorageConfig выбирает драйвер хранилища идентичностей.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	PostgresURL string `yaml:"postgres_url" env:"DATABASE_URL"`
	MongoURL    string `yaml:"mongo_url" env:"MONGO_URL"`
}

// RedisConfig: пустой URL означает хранение OAuth state в памяти процесса.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// OAuthConfig содержит параметры внешних провайдеров.
// Провайдер без client_id считается выключенным.
type OAuthConfig struct {
	FrontendURL string         `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	StateTTL    time.Duration  `yaml:"state_ttl" env:"OAUTH_STATE_TTL" env-default:"10m"`
	Google      ProviderConfig `yaml:"google" env-prefix:"GOOGLE_"`
	GitHub      GitHubConfig   `yaml:"github" env-prefix:"GITHUB_"`
}

// ProviderConfig: учётные данные OAuth-приложения.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"REDIRECT_URL"`
}

// Enabled сообщает, настроен ли провайдер.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

// GitHubConfig дополняет ProviderConfig выбором источника e-mail.
// При UsePrivateEmail=false используется только публичный e-mail профиля.
type GitHubConfig struct {
	ProviderConfig  `yaml:",inline"`
	UsePrivateEmail bool `yaml:"use_private_email" env:"USE_PRIVATE_EMAIL" env-default:"false"`
}

// MustLoad: обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %q: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}

// Validate проверяет согласованность прочитанных значений.
func (c *Config) Validate() error {
	switch {
	case c.Auth.AccessSecret == c.Auth.RefreshSecret:
		return fmt.Errorf("%w: auth.refresh_secret must differ from auth.access_secret", ErrInvalidConfig)
	case c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: token ttl must be positive", ErrInvalidConfig)
	case c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL:
		return fmt.Errorf("%w: refresh_token_ttl must exceed access_token_ttl", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for driver %q", ErrInvalidConfig, c.Storage.Driver)
		}
	case DriverMongo:
		if c.Storage.MongoURL == "" {
			return fmt.Errorf("%w: storage.mongo_url is required for driver %q", ErrInvalidConfig, c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("%w: oauth.state_ttl must be positive", ErrInvalidConfig)
	}

	return nil
}
