package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "") // restores the original value on cleanup
		os.Unsetenv(env)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "data/accomplo.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, MailerLog, cfg.Mail.Driver)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSAllowedOrigins)
	assert.False(t, cfg.OAuth.GitHub.Enabled())
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://accomplo@localhost/accomplo")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://accomplo@localhost/accomplo", cfg.Storage.PostgresDSN)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.True(t, cfg.OAuth.GitHub.Enabled())
	assert.False(t, cfg.OAuth.Google.Enabled())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}

func TestLoad_ConfigFileThenEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
server:
  port: 7070
storage:
  backend: local
  local_dir: /var/lib/accomplo
auth:
  jwt_secret: `+testSecret+`
`)
	t.Setenv("PORT", "6060")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/accomplo", cfg.Storage.LocalDir)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, ".env", "JWT_SECRET="+testSecret+"\nMAILER=smtp\nSMTP_HOST=mail.example\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, MailerSMTP, cfg.Mail.Driver)
	assert.Equal(t, "mail.example", cfg.Mail.Host)
	assert.Equal(t, 587, cfg.Mail.Port)
}

func TestLoad_BrokenConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "server: [unclosed")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_MissingSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func validConfig() *Config {
	var c Config
	c.Server.Port = 8080
	c.Storage.Backend = BackendSQLite
	c.Storage.SQLitePath = "x.db"
	c.Auth.JWTSecret = testSecret
	c.Auth.TokenTTL = time.Hour
	c.Log.Level = "info"
	c.Mail.Driver = MailerLog
	c.Mail.From = "noreply@example.com"
	return &c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "PORT"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "STORAGE_BACKEND"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "DATABASE_URL"},
		{"local without dir", func(c *Config) { c.Storage.Backend = BackendLocal }, "LOCAL_DATA_DIR"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT_SECRET"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "TOKEN_TTL"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "LOG_LEVEL"},
		{"smtp without host", func(c *Config) { c.Mail.Driver = MailerSMTP; c.Mail.Port = 25 }, "SMTP_HOST"},
		{"unknown mailer", func(c *Config) { c.Mail.Driver = "pigeon" }, "MAILER"},
		{"wildcard mixed with origins", func(c *Config) {
			c.Server.CORSAllowedOrigins = []string{"*", "https://a.example"}
		}, "CORS_ALLOWED_ORIGINS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := validConfig()
	c.Server.Port = -1
	c.Auth.JWTSecret = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestCallbackURL(t *testing.T) {
	c := validConfig()
	c.Server.BaseURL = "https://accomplo.example/"
	assert.Equal(t, "https://accomplo.example/auth/github/callback", c.CallbackURL("github"))
}

func TestResetRedirectOrigins(t *testing.T) {
	c := validConfig()
	c.Server.AppURL = "https://app.accomplo.example"
	c.Server.BaseURL = "https://api.accomplo.example"
	c.Server.CORSAllowedOrigins = []string{"https://admin.accomplo.example"}

	assert.Equal(t, []string{
		"https://app.accomplo.example",
		"https://api.accomplo.example",
		"https://admin.accomplo.example",
	}, c.ResetRedirectOrigins())

	c.Server.CORSAllowedOrigins = []string{"*"}
	assert.NotContains(t, c.ResetRedirectOrigins(), "*")
}
