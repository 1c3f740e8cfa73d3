// Package config loads the server configuration.
//
// Sources, lowest priority first:
//
//	defaults registered here
//	config.yaml in the working directory (optional)
//	.env in the working directory (optional, loaded into the environment)
//	the process environment
//
// Every key has a flat environment name (PORT, DATABASE_URL, JWT_SECRET,
// ...) bound explicitly, so deployments never need to know the nested keys.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
)

// Mail drivers.
const (
	MailerLog  = "log"
	MailerSMTP = "smtp"
)

// minSecretLength matches the HMAC key size of HS256.
const minSecretLength = 32

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		BaseURL            string   `mapstructure:"base_url"`
		AppURL             string   `mapstructure:"app_url"`
		SecureCookies      bool     `mapstructure:"secure_cookies"`
		CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`
	Storage struct {
		Backend     string `mapstructure:"backend"`
		SQLitePath  string `mapstructure:"sqlite_path"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
		LocalDir    string `mapstructure:"local_dir"`
	} `mapstructure:"storage"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Mail struct {
		Driver   string `mapstructure:"driver"`
		From     string `mapstructure:"from"`
		Host     string `mapstructure:"smtp_host"`
		Port     int    `mapstructure:"smtp_port"`
		Username string `mapstructure:"smtp_username"`
		Password string `mapstructure:"smtp_password"`
	} `mapstructure:"mail"`
	OAuth struct {
		Google   OAuthClient `mapstructure:"google"`
		Facebook OAuthClient `mapstructure:"facebook"`
		GitHub   OAuthClient `mapstructure:"github"`
	} `mapstructure:"oauth"`
}

// OAuthClient is one provider's app registration. A provider is enabled
// when both values are set.
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.base_url":              "APP_BASE_URL",
	"server.app_url":               "APP_URL",
	"server.secure_cookies":        "SECURE_COOKIES",
	"server.cors_allowed_origins":  "CORS_ALLOWED_ORIGINS",
	"storage.backend":              "STORAGE_BACKEND",
	"storage.sqlite_path":          "DB_PATH",
	"storage.postgres_dsn":         "DATABASE_URL",
	"storage.local_dir":            "LOCAL_DATA_DIR",
	"auth.jwt_secret":              "JWT_SECRET",
	"auth.token_ttl":               "TOKEN_TTL",
	"redis.addr":                   "REDIS_ADDR",
	"redis.password":               "REDIS_PASSWORD",
	"log.level":                    "LOG_LEVEL",
	"mail.driver":                  "MAILER",
	"mail.from":                    "MAIL_FROM",
	"mail.smtp_host":               "SMTP_HOST",
	"mail.smtp_port":               "SMTP_PORT",
	"mail.smtp_username":           "SMTP_USERNAME",
	"mail.smtp_password":           "SMTP_PASSWORD",
	"oauth.google.client_id":       "GOOGLE_CLIENT_ID",
	"oauth.google.client_secret":   "GOOGLE_CLIENT_SECRET",
	"oauth.facebook.client_id":     "FACEBOOK_CLIENT_ID",
	"oauth.facebook.client_secret": "FACEBOOK_CLIENT_SECRET",
	"oauth.github.client_id":       "GITHUB_CLIENT_ID",
	"oauth.github.client_secret":   "GITHUB_CLIENT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.app_url", "/")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "data/accomplo.db")
	v.SetDefault("storage.local_dir", "data/local")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("mail.driver", MailerLog)
	v.SetDefault("mail.from", "Accomplo <noreply@accomplo.local>")
	v.SetDefault("mail.smtp_port", 587)
}

// Load reads the configuration from dir (config.yaml and .env, both
// optional) and the environment, then validates it.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(dir + "/.env"); err != nil {
		slog.Debug("no .env file, using the environment only", slog.String("dir", dir))
	}

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config.yaml: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once so a misconfigured deployment can
// be fixed in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("LOCAL_DATA_DIR is required for the local backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be one of sqlite, postgres, local; got %q", c.Storage.Backend))
	}

	if len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Mail.Driver {
	case MailerLog:
	case MailerSMTP:
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required when MAILER=smtp"))
		}
		if c.Mail.Port < 1 || c.Mail.Port > 65535 {
			errs = append(errs, fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.Mail.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("MAILER must be log or smtp; got %q", c.Mail.Driver))
	}
	if c.Mail.From == "" {
		errs = append(errs, errors.New("MAIL_FROM is required"))
	}

	if slices.Contains(c.Server.CORSAllowedOrigins, "*") && len(c.Server.CORSAllowedOrigins) > 1 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS: \"*\" cannot be combined with other origins"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel parses log.level (debug, info, warn, error).
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error; got %q", c.Log.Level)
	}
	return level, nil
}

// CallbackURL is the OAuth redirect URI registered with provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/auth/" + provider + "/callback"
}

// ResetRedirectOrigins lists where password reset links may send the user:
// the app, the API itself and every explicit CORS origin. A "*" CORS
// setting does not open reset links to any host.
func (c *Config) ResetRedirectOrigins() []string {
	origins := []string{c.Server.AppURL, c.Server.BaseURL}
	for _, o := range c.Server.CORSAllowedOrigins {
		if o != "*" {
			origins = append(origins, o)
		}
	}
	return origins
}
