// Package config loads studentauth configuration. Sources are layered,
// later ones winning: built-in defaults, a YAML file, environment
// variables (after loading .env), and explicitly set command-line flags.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Mail drivers.
const (
	MailSMTP   = "smtp"
	MailResend = "resend"
	MailLog    = "log"
)

// Queue drivers.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	Store string      `koanf:"store"`
	HTTP  HTTPConfig  `koanf:"http"`
	Mongo MongoConfig `koanf:"mongo"`
	Auth  AuthConfig  `koanf:"auth"`
	Mail  MailConfig  `koanf:"mail"`
	Queue QueueConfig `koanf:"queue"`
	Log   LogConfig   `koanf:"log"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MongoConfig configures the MongoDB account store.
type MongoConfig struct {
	URI      string        `koanf:"uri"`
	Database string        `koanf:"database"`
	Timeout  time.Duration `koanf:"timeout"`
}

// AuthConfig configures credentials and secrets.
type AuthConfig struct {
	TokenSecret     string        `koanf:"token_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	OTPTTL          time.Duration `koanf:"otp_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
	HashWorkers     int           `koanf:"hash_workers"`
	// BaseURL is the public URL of the students API, used in verification links.
	BaseURL string `koanf:"base_url"`
}

// MailConfig configures outgoing email.
type MailConfig struct {
	// Driver is smtp, resend or log. Empty picks resend if an API key is
	// set, smtp if a server is set, otherwise log.
	Driver       string `koanf:"driver"`
	From         string `koanf:"from"`
	SMTPServer   string `koanf:"smtp_server"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	ResendAPIKey string `koanf:"resend_api_key"`
	ResendURL    string `koanf:"resend_url"`
}

// QueueConfig configures notification delivery.
type QueueConfig struct {
	Driver     string        `koanf:"driver"`
	RedisURL   string        `koanf:"redis_url"`
	Key        string        `koanf:"key"`
	Size       int           `koanf:"size"`
	Workers    int           `koanf:"workers"`
	MaxRetries uint64        `koanf:"max_retries"`
	RetryBase  time.Duration `koanf:"retry_base"`
	Poll       time.Duration `koanf:"poll"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Store: StoreMongo,
		HTTP: HTTPConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "studentauth",
			Timeout:  5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:        time.Hour,
			VerificationTTL: 24 * time.Hour,
			OTPTTL:          5 * time.Minute,
			BcryptCost:      10,
			BaseURL:         "http://localhost:8080/api/students",
		},
		Queue: QueueConfig{
			Driver:     QueueMemory,
			Key:        "studentauth:notifications",
			Size:       1024,
			Workers:    2,
			MaxRetries: 3,
			RetryBase:  500 * time.Millisecond,
			Poll:       time.Second,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"STORE_DRIVER":        "store",
	"PORT":                "http.port",
	"MONGO_URI":           "mongo.uri",
	"MONGO_DB":            "mongo.database",
	"ACCESS_TOKEN_SECRET": "auth.token_secret",
	"TOKEN_TTL":           "auth.token_ttl",
	"VERIFICATION_TTL":    "auth.verification_ttl",
	"OTP_TTL":             "auth.otp_ttl",
	"BCRYPT_COST":         "auth.bcrypt_cost",
	"HASH_WORKERS":        "auth.hash_workers",
	"BASE_URL":            "auth.base_url",
	"MAIL_DRIVER":         "mail.driver",
	"MAIL_FROM":           "mail.from",
	"SMTP_SERVER":         "mail.smtp_server",
	"SMTP_USER":           "mail.smtp_user",
	"SMTP_PASSWORD":       "mail.smtp_password",
	"RESEND_API_KEY":      "mail.resend_api_key",
	"QUEUE_DRIVER":        "queue.driver",
	"REDIS_URL":           "queue.redis_url",
	"NOTIFY_WORKERS":      "queue.workers",
	"LOG_FORMAT":          "log.format",
	"LOG_LEVEL":           "log.level",
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"store":      "store",
	"port":       "http.port",
	"mongo-uri":  "mongo.uri",
	"mongo-db":   "mongo.database",
	"base-url":   "auth.base_url",
	"mail":       "mail.driver",
	"queue":      "queue.driver",
	"redis-url":  "queue.redis_url",
	"log-format": "log.format",
	"log-level":  "log.level",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("store", "", "account store: mongo or memory")
	fs.String("port", "", "HTTP listen port")
	fs.String("mongo-uri", "", "MongoDB connection URI")
	fs.String("mongo-db", "", "MongoDB database name")
	fs.String("base-url", "", "public base URL of the students API")
	fs.String("mail", "", "mail driver: smtp, resend or log")
	fs.String("queue", "", "notification queue: memory or redis")
	fs.String("redis-url", "", "Redis URL for the notification queue")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.With("path", path).Wrapf(err, "load config file")
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		mapped, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return nil, oops.Wrapf(err, "load environment")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			mapped, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return mapped, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, oops.Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Wrapf(err, "decode config")
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.With("path", f).Wrapf(err, "load env file")
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Auth.BaseURL = strings.TrimRight(c.Auth.BaseURL, "/")

	c.Mail.Driver = strings.ToLower(strings.TrimSpace(c.Mail.Driver))
	if c.Mail.Driver == "" {
		switch {
		case c.Mail.ResendAPIKey != "":
			c.Mail.Driver = MailResend
		case c.Mail.SMTPServer != "":
			c.Mail.Driver = MailSMTP
		default:
			c.Mail.Driver = MailLog
		}
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.SMTPUser
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http.port is required"))
	}
	if len(c.Auth.TokenSecret) < 16 {
		errs = append(errs, errors.New("auth.token_secret (ACCESS_TOKEN_SECRET) must be at least 16 bytes"))
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.VerificationTTL <= 0 || c.Auth.OTPTTL <= 0 {
		errs = append(errs, errors.New("auth TTLs must be positive"))
	}

	switch c.Store {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo store"))
		}
	default:
		errs = append(errs, oops.Errorf("store must be %q or %q, got %q", StoreMongo, StoreMemory, c.Store))
	}

	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTPServer == "" || c.Mail.SMTPUser == "" || c.Mail.SMTPPassword == "" {
			errs = append(errs, errors.New("SMTP_SERVER, SMTP_USER and SMTP_PASSWORD are required for smtp mail"))
		}
	case MailResend:
		if c.Mail.ResendAPIKey == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("RESEND_API_KEY and MAIL_FROM are required for resend mail"))
		}
	default:
		errs = append(errs, oops.Errorf("mail.driver must be smtp, resend or log, got %q", c.Mail.Driver))
	}

	switch c.Queue.Driver {
	case QueueMemory:
	case QueueRedis:
		if c.Queue.RedisURL == "" {
			errs = append(errs, errors.New("queue.redis_url (REDIS_URL) is required for the redis queue"))
		}
	default:
		errs = append(errs, oops.Errorf("queue.driver must be memory or redis, got %q", c.Queue.Driver))
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, oops.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}
