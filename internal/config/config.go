// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads accountd configuration from defaults, a YAML file,
// the environment and command flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/xdg"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: ACCOUNTD_TOKEN__SECRET sets token.secret.
const EnvPrefix = "ACCOUNTD_"

// MinSecretLength is the shortest accepted token signing secret, in bytes.
const MinSecretLength = 16

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config is the complete service configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Token    TokenConfig    `koanf:"token"`
	Account  AccountConfig  `koanf:"account"`
	Mail     MailConfig     `koanf:"mail"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// LogConfig selects the log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ExposeResetToken  bool          `koanf:"expose_reset_token"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig selects the user store.
type DatabaseConfig struct {
	Driver         string `koanf:"driver"`
	URL            string `koanf:"url"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	// AutoMigrate applies pending migrations before serving.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// TokenConfig configures token signing and lifetimes.
type TokenConfig struct {
	Secret        string        `koanf:"secret"`
	Issuer        string        `koanf:"issuer"`
	ValidationTTL time.Duration `koanf:"validation_ttl"`
	ResetTTL      time.Duration `koanf:"reset_ttl"`
	SessionTTL    time.Duration `koanf:"session_ttl"`
}

// AccountConfig configures the account service.
type AccountConfig struct {
	BaseURL    string `koanf:"base_url"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	Driver   string        `koanf:"driver"`
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	SSL      bool          `koanf:"ssl"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	FromName string        `koanf:"from_name"`
	Timeout  time.Duration `koanf:"timeout"`
}

// NotifyConfig sizes the notification dispatcher.
type NotifyConfig struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"log.format":               logging.FormatJSON,
		"log.level":                "info",
		"http.addr":                ":3000",
		"http.read_header_timeout": 10 * time.Second,
		"http.expose_reset_token":  true,
		"metrics.addr":             "127.0.0.1:9100",
		"database.driver":          DriverPostgres,
		"database.url":             "",
		"database.connect_retries": 5,
		"database.auto_migrate":    true,
		"token.secret":             "",
		"token.issuer":             "accountd",
		"token.validation_ttl":     time.Hour,
		"token.reset_ttl":          time.Hour,
		"token.session_ttl":        7 * 24 * time.Hour,
		"account.base_url":         "http://localhost:3000",
		"account.bcrypt_cost":      bcrypt.DefaultCost,
		"mail.driver":              MailLog,
		"mail.host":                "smtp.gmail.com",
		"mail.port":                465,
		"mail.ssl":                 true,
		"mail.username":            "",
		"mail.password":            "",
		"mail.from":                "",
		"mail.from_name":           "accountd",
		"mail.timeout":             10 * time.Second,
		"notify.workers":           2,
		"notify.queue_size":        128,
	}
}

// legacyEnv maps the variables of earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"DATABASE_URL":   "database.url",
	"SECRET":         "token.secret",
	"URL":            "account.base_url",
	"EMAIL_ADDRESS":  "mail.username",
	"EMAIL_PASSWORD": "mail.password",
}

// flagKeys maps command flags onto config keys. Other flags are ignored.
var flagKeys = map[string]string{
	"log-format":      "log.format",
	"log-level":       "log.level",
	"http-addr":       "http.addr",
	"metrics-addr":    "metrics.addr",
	"database-driver": "database.driver",
	"database-url":    "database.url",
	"mail-driver":     "mail.driver",
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, the YAML file at path (or the XDG config file when path is
// empty and that file exists), legacy environment variables,
// ACCOUNTD_ variables, then flags that were set on the command line.
// flags may be nil. The result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k, err := load(path, flags)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabase reads only the database section from the same sources as
// Load. It requires a database url and ignores every other setting.
func LoadDatabase(path string, flags *pflag.FlagSet) (*DatabaseConfig, error) {
	k, err := load(path, flags)
	if err != nil {
		return nil, err
	}

	var cfg DatabaseConfig
	if err := k.UnmarshalWithConf("database", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	if cfg.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database url is required")
	}
	return &cfg, nil
}

func load(path string, flags *pflag.FlagSet) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if legacy := legacyValues(); len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy_env").Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	return k, nil
}

// envKey turns ACCOUNTD_TOKEN__SECRET into token.secret.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

func legacyValues() map[string]any {
	out := map[string]any{}
	for name, key := range legacyEnv {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			out[key] = value
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return invalid("log.format", "log format must be %q or %q, got %q", logging.FormatJSON, logging.FormatText, c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database url is required for the %s driver", DriverPostgres)
		}
	case DriverMemory:
	default:
		return invalid("database.driver", "database driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}

	if c.Token.Secret == "" {
		return invalid("token.secret", "token secret is required")
	}
	if len(c.Token.Secret) < MinSecretLength {
		return invalid("token.secret", "token secret must be at least %d bytes", MinSecretLength)
	}
	if c.Token.SessionTTL < 0 {
		return invalid("token.session_ttl", "session ttl must not be negative")
	}

	if c.Account.BcryptCost < bcrypt.MinCost || c.Account.BcryptCost > bcrypt.MaxCost {
		return invalid("account.bcrypt_cost", "bcrypt cost must be within [%d, %d], got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Account.BcryptCost)
	}

	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.Host == "" {
			return invalid("mail.host", "mail host is required for the %s driver", MailSMTP)
		}
	default:
		return invalid("mail.driver", "mail driver must be %q or %q, got %q", MailSMTP, MailLog, c.Mail.Driver)
	}

	if c.Notify.Workers < 1 {
		return invalid("notify.workers", "at least one notification worker is required")
	}
	if c.Notify.QueueSize < 1 {
		return invalid("notify.queue_size", "notification queue size must be positive")
	}
	return nil
}
