package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Вспомогательные хелперы.
func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// Полный корректный YAML с заданными значениями (не зависящими от дефолтов).
const sampleYAML = `
env: "prod"
http:
  host: "127.0.0.1"
  port: "6000"
metrics:
  port: "6001"
auth:
  access_secret: "access-secret"
  refresh_secret: "refresh-secret"
  access_token_ttl: "10m"
  refresh_token_ttl: "240h"
  issuer: "issuerX"
  audience: ["chat-api", "web"]
  cookie_fallback: false
storage:
  driver: "mongo"
  mongo_url: "mongodb://localhost:27017/chat"
redis:
  url: "redis://localhost:6379/0"
oauth:
  frontend_url: "https://chat.example.com"
  state_ttl: "5m"
  google:
    client_id: "g-id"
    client_secret: "g-secret"
    redirect_url: "https://api.example.com/auth/google/callback"
  github:
    client_id: "gh-id"
    client_secret: "gh-secret"
    redirect_url: "https://api.example.com/auth/github/callback"
    use_private_email: true
timeouts:
  service: "3s"
`

// Минимально валидный YAML (только обязательные поля).
const minimalYAML = `
auth:
  access_secret: "min-access"
  refresh_secret: "min-refresh"
storage:
  postgres_url: "postgres://localhost/min"
`

// Некорректный YAML для проверки ошибок парсинга.
const brokenYAML = `
auth:
  access_secret: [unclosed
`

func TestLoad_WithExplicitPath_OK(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "127.0.0.1:6000", cfg.HTTP.Addr())
	require.Equal(t, "6001", cfg.Metrics.Port)

	require.Equal(t, "access-secret", cfg.Auth.AccessSecret)
	require.Equal(t, "refresh-secret", cfg.Auth.RefreshSecret)
	require.Equal(t, 10*time.Minute, cfg.Auth.AccessTokenTTL)
	require.Equal(t, 240*time.Hour, cfg.Auth.RefreshTokenTTL)
	require.Equal(t, "issuerX", cfg.Auth.Issuer)
	require.ElementsMatch(t, []string{"chat-api", "web"}, cfg.Auth.Audience)
	require.False(t, cfg.Auth.CookieFallback)

	require.Equal(t, DriverMongo, cfg.Storage.Driver)
	require.Equal(t, "mongodb://localhost:27017/chat", cfg.Storage.MongoURL)
	require.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	require.Equal(t, "https://chat.example.com", cfg.OAuth.FrontendURL)
	require.Equal(t, 5*time.Minute, cfg.OAuth.StateTTL)
	require.True(t, cfg.OAuth.Google.Enabled())
	require.Equal(t, "g-secret", cfg.OAuth.Google.ClientSecret)
	require.Equal(t, "gh-id", cfg.OAuth.GitHub.ClientID)
	require.True(t, cfg.OAuth.GitHub.UsePrivateEmail)

	require.Equal(t, 3*time.Second, cfg.Timeouts.Service)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "min.yaml", minimalYAML)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, "local", cfg.Env)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	require.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	require.True(t, cfg.Auth.CookieFallback)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Empty(t, cfg.Redis.URL)
	require.False(t, cfg.OAuth.Google.Enabled())
	require.False(t, cfg.OAuth.GitHub.UsePrivateEmail)
	require.Equal(t, 10*time.Minute, cfg.OAuth.StateTTL)
}

func TestLoad_WithExplicitPath_FileDoesNotExist(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "config file does not exist")
}

func TestLoad_WithExplicitPath_BrokenYAML(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "broken.yaml", brokenYAML)

	_, err := Load(cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "same secrets",
			yaml: `
auth: {access_secret: "s", refresh_secret: "s"}
storage: {driver: "memory"}
`,
			want: "refresh_secret must differ",
		},
		{
			name: "unknown driver",
			yaml: `
auth: {access_secret: "a", refresh_secret: "r"}
storage: {driver: "sqlite"}
`,
			want: "unknown storage driver",
		},
		{
			name: "postgres without url",
			yaml: `
auth: {access_secret: "a", refresh_secret: "r"}
storage: {driver: "postgres"}
`,
			want: "postgres_url is required",
		},
		{
			name: "mongo without url",
			yaml: `
auth: {access_secret: "a", refresh_secret: "r"}
storage: {driver: "mongo"}
`,
			want: "mongo_url is required",
		},
		{
			name: "refresh shorter than access",
			yaml: `
auth: {access_secret: "a", refresh_secret: "r", access_token_ttl: "1h", refresh_token_ttl: "30m"}
storage: {driver: "memory"}
`,
			want: "refresh_token_ttl must exceed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfgPath := writeFile(t, t.TempDir(), "cfg.yaml", tt.yaml)
			_, err := Load(cfgPath)
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "cfg.yaml", minimalYAML)

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("GITHUB_CLIENT_ID", "from-env")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Equal(t, "from-env", cfg.OAuth.GitHub.ClientID)
}

func TestLoad_WithCONFIG_PATH_OK(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "from_env_path.yaml", minimalYAML)

	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "min-access", cfg.Auth.AccessSecret)
	require.Equal(t, "postgres://localhost/min", cfg.Storage.PostgresURL)
}

func TestLoad_WithLocalYAML_OK(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, ".", "local.yaml", sampleYAML)

	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "access-secret", cfg.Auth.AccessSecret)
}

func TestLoad_EnvOnly_NoConfigInEnv_ReturnsDescriptiveError(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ACCESS_SECRET", "")
	t.Setenv("REFRESH_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "config not found: provide --config, CONFIG_PATH, local.yaml or env vars")
}

func TestLoad_EnvOnly_OK(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ACCESS_SECRET", "env-access")
	t.Setenv("REFRESH_SECRET", "env-refresh")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-access", cfg.Auth.AccessSecret)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestMustLoad_OK(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, t.TempDir(), "ok.yaml", minimalYAML)

	cfg := MustLoad(cfgPath)
	require.NotNil(t, cfg)
	require.Equal(t, "min-access", cfg.Auth.AccessSecret)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_ = MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
