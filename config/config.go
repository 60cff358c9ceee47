package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/appenv"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env     string  `yaml:"env" env:"APP_ENV" env-default:"local" env-description:"Environment: local, dev, production, test"`
	HTTP    HTTP    `yaml:"http"`
	Auth    Auth    `yaml:"auth"`
	Storage Storage `yaml:"storage"`
	Minio   Minio   `yaml:"minio"`
	Redis   Redis   `yaml:"redis"`
	Mail    Mail    `yaml:"mail"`
	CORS    CORS    `yaml:"cors"`
	Seed    Seed    `yaml:"seed"`
}

type HTTP struct {
	Host           string        `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port           int           `yaml:"port" env:"PORT" env-default:"5000"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	TLSCertFile    string        `yaml:"tls_cert_file" env:"SSL_CERT_PATH"`
	TLSKeyFile     string        `yaml:"tls_key_file" env:"SSL_KEY_PATH"`
	TrustedProxies []string      `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`
}

func (h HTTP) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

func (h HTTP) TLSEnabled() bool { return h.TLSCertFile != "" && h.TLSKeyFile != "" }

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"24h"`
	ResetTTL   time.Duration `yaml:"reset_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverMinio    = "minio"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Reset token backends.
const (
	ResetTokensStore = "store"
	ResetTokensRedis = "redis"
)

type Storage struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
	DataDir     string `yaml:"data_dir" env:"DATA_DIR" env-default:"data"`
	DSN         string `yaml:"dsn" env:"DATABASE_URL"`
	ResetTokens string `yaml:"reset_tokens" env:"RESET_TOKEN_STORE" env-default:"store"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET" env-default:"ledger"`
	Prefix    string `yaml:"prefix" env:"MINIO_PREFIX" env-default:"data"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
}

type Redis struct {
	URL       string `yaml:"url" env:"REDIS_URL"`
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"reset:"`
}

// Mail providers.
const (
	MailLog      = "log"
	MailSendgrid = "sendgrid"
	MailResend   = "resend"
)

type Mail struct {
	Provider    string `yaml:"provider" env:"MAIL_PROVIDER" env-default:"log"`
	APIKey      string `yaml:"api_key" env:"EMAIL_API_KEY"`
	FromName    string `yaml:"from_name" env:"EMAIL_FROM_NAME" env-default:"Expense Tracker"`
	FromAddress string `yaml:"from_address" env:"EMAIL_SENDER" env-default:"no-reply@localhost"`
	SiteURL     string `yaml:"site_url" env:"SITE_DOMAIN" env-default:"http://localhost:5000"`
	ResetPath   string `yaml:"reset_path" env:"RESET_PASSWORD_PATH" env-default:"/reset-password.html"`
}

type CORS struct {
	AllowedOrigins   []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:","`
	AllowCredentials bool     `yaml:"allow_credentials" env:"ALLOW_CREDENTIALS" env-default:"false"`
}

type Seed struct {
	Demo bool   `yaml:"demo" env:"SEED_DEMO" env-default:"false"`
	File string `yaml:"file" env:"SEED_FILE"`
}

func (c *Config) AppEnv() appenv.Env { return appenv.Parse(c.Env) }

// Load reads path when given, otherwise the environment. A .env file in the
// working directory is applied first without overriding real variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads and validates the server configuration or panics.
func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be set and at least 32 characters"))
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("session and reset token TTLs must be positive"))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverFile:
	case DriverMinio:
		if c.Minio.Endpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required for the minio storage driver"))
		}
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the %s storage driver", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Storage.ResetTokens {
	case ResetTokensStore, ResetTokensRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown reset token store %q", c.Storage.ResetTokens))
	}

	switch c.Mail.Provider {
	case MailLog:
		if c.AppEnv().IsProduction() {
			errs = append(errs, errors.New("MAIL_PROVIDER=log is not allowed in production"))
		}
	case MailSendgrid, MailResend:
		if c.Mail.APIKey == "" {
			errs = append(errs, fmt.Errorf("EMAIL_API_KEY is required for the %s mail provider", c.Mail.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail provider %q", c.Mail.Provider))
	}

	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("SSL_CERT_PATH and SSL_KEY_PATH must be set together"))
	}
	if strings.TrimSpace(c.Mail.SiteURL) == "" {
		errs = append(errs, errors.New("SITE_DOMAIN must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
