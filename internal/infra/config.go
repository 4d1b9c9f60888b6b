package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration of the console and the retention job.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig is optional: with an empty URL grants live in memory and audit
// records are not mirrored.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig is optional: with an empty Addr grant changes are not broadcast.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds RSA keys for session tokens.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	Issuer         string        `mapstructure:"issuer"`

	// Users maps username to bcrypt hash. Seeds the user table, or replaces it without a database.
	Users map[string]string `mapstructure:"users"`

	PublicKey  []byte
	PrivateKey []byte
}

type AuditConfig struct {
	LogPath             string        `mapstructure:"log_path"`
	RetentionDays       int           `mapstructure:"retention_days"`
	SummaryWindowDays   int           `mapstructure:"summary_window_days"`
	MirrorBufferSize    int           `mapstructure:"mirror_buffer_size"`
	MirrorFlushInterval time.Duration `mapstructure:"mirror_flush_interval"`
}

// CatalogConfig tunes the guard around the workflow collaborator.
type CatalogConfig struct {
	RateLimit     float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst     int           `mapstructure:"rate_burst"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the health server
}

// LoadConfig merges config.yaml (if any), environment variables and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// SERVER_PORT=9000 overrides server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("audit.log_path", "AUDIT_LOG_PATH"); err != nil {
		return nil, fmt.Errorf("bind audit log path: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// A PEM key passed directly through the environment wins over the file path.
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "workflow-acl")

	v.SetDefault("audit.log_path", filepath.Join(os.TempDir(), "n8n_audit_logs.jsonl"))
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.summary_window_days", 7)
	v.SetDefault("audit.mirror_buffer_size", 10000)
	v.SetDefault("audit.mirror_flush_interval", 500*time.Millisecond)

	v.SetDefault("catalog.rate_limit", 50.0)
	v.SetDefault("catalog.rate_burst", 10)
	v.SetDefault("catalog.cb_max_requests", 3)
	v.SetDefault("catalog.cb_interval", 60*time.Second)
	v.SetDefault("catalog.cb_timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
