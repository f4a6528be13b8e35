package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	HTTPPort       string        `env:"HTTP_PORT" envDefault:"8080"`
	Env            string        `env:"APP_ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"DEBUG"`
	DatabaseDSN    string        `env:"DATABASE_DSN"`
	DBDriver       string        `env:"DB_DRIVER"`
	SwaggerEnable  bool          `env:"SWAGGER_ENABLE" envDefault:"true"`
	MasterToken    string        `env:"API_MASTER_TOKEN"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	EventLogDir    string        `env:"EVENT_LOG_DIR"`
	DeployHooksRaw string        `env:"DEPLOY_HOOKS"`
	DeployToken    string        `env:"DEPLOY_HOOK_TOKEN"`
	Postgres       PostgresConfig
	Storage        StorageConfig
	Realtime       RealtimeConfig
	Auth           AuthConfig
	AI             AIConfig
}

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST"`
	Port     string `env:"POSTGRES_PORT"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	DBName   string `env:"POSTGRES_DB"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Bucket    string `env:"STORAGE_BUCKET"`
	Region    string `env:"STORAGE_REGION"`
	UseSSL    bool   `env:"STORAGE_USE_SSL"`
	PublicURL string `env:"STORAGE_PUBLIC_URL"`
	KeyPrefix string `env:"STORAGE_KEY_PREFIX"`
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

// legacyStorage holds the MINIO_* names still accepted when STORAGE_* is unset.
type legacyStorage struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	Region    string `env:"MINIO_REGION"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	PublicURL string `env:"MINIO_PUBLIC_URL"`
}

type RealtimeConfig struct {
	Broker             string        `env:"REALTIME_BROKER" envDefault:"memory"`
	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	NATSServers        []string      `env:"NATS_SERVERS" envSeparator:"," envDefault:"nats://localhost:4222"`
	NATSName           string        `env:"NATS_NAME" envDefault:"mockup-api"`
	PresenceTTL        time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`
	OutboundQueue      int           `env:"COLLAB_OUTBOUND_QUEUE" envDefault:"256"`
	DedupeUsers        bool          `env:"COLLAB_DEDUPE_USERS"`
	NotifyUsersOnLeave bool          `env:"COLLAB_NOTIFY_USERS_ON_LEAVE"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"2h"`
}

type AIConfig struct {
	Endpoint string        `env:"AI_ENDPOINT"`
	APIKey   string        `env:"AI_API_KEY"`
	Model    string        `env:"AI_MODEL" envDefault:"default"`
	Provider string        `env:"AI_PROVIDER" envDefault:"http"`
	Timeout  time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`
}

func (a AIConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

// DeployHooks parses DEPLOY_HOOKS ("name=url,name2=url2") into a target map.
func (c *AppConfig) DeployHooks() map[string]string {
	hooks := make(map[string]string)
	for _, pair := range strings.Split(c.DeployHooksRaw, ",") {
		name, target, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		target = strings.TrimSpace(target)
		if name == "" || target == "" {
			continue
		}
		hooks[name] = target
	}
	return hooks
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	var legacy legacyStorage
	if err := env.Parse(&legacy); err != nil {
		return nil, fmt.Errorf("parse legacy storage environment: %w", err)
	}
	applyLegacyStorage(&cfg.Storage, legacy)

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDriver == "" {
		lower := strings.ToLower(cfg.DatabaseDSN)
		switch {
		case strings.HasPrefix(lower, "postgres"):
			cfg.DBDriver = "postgres"
		case cfg.Postgres.Host != "":
			cfg.DBDriver = "postgres"
		default:
			cfg.DBDriver = "sqlite"
		}
	}

	if cfg.DBDriver == "postgres" {
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = buildPostgresDSN(cfg.Postgres)
		}
	} else if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "file:mockups.db?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	}

	cfg.Realtime.Broker = strings.ToLower(strings.TrimSpace(cfg.Realtime.Broker))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return cfg, nil
}

func applyLegacyStorage(storage *StorageConfig, legacy legacyStorage) {
	if storage.Endpoint == "" {
		storage.Endpoint = legacy.Endpoint
	}
	if storage.AccessKey == "" {
		storage.AccessKey = legacy.AccessKey
	}
	if storage.SecretKey == "" {
		storage.SecretKey = legacy.SecretKey
	}
	if storage.Bucket == "" {
		storage.Bucket = legacy.Bucket
	}
	if storage.Region == "" {
		storage.Region = legacy.Region
	}
	if !storage.UseSSL {
		storage.UseSSL = legacy.UseSSL
	}
	if storage.PublicURL == "" {
		storage.PublicURL = legacy.PublicURL
	}
}

func buildPostgresDSN(pg PostgresConfig) string {
	host := pg.Host
	if host == "" {
		host = "localhost"
	}
	port := pg.Port
	if port == "" {
		port = "5432"
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}

	u := &url.URL{Scheme: "postgres"}
	if pg.User != "" {
		if pg.Password != "" {
			u.User = url.UserPassword(pg.User, pg.Password)
		} else {
			u.User = url.User(pg.User)
		}
	}
	u.Host = fmt.Sprintf("%s:%s", host, port)
	if pg.DBName != "" {
		u.Path = pg.DBName
	}
	q := u.Query()
	q.Set("sslmode", ssl)
	u.RawQuery = q.Encode()
	return u.String()
}

func MustLoad() *AppConfig {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.HTTPPort == "" {
		log.Fatal("HTTP_PORT required")
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseDSN == "" {
		log.Fatal("DATABASE_DSN required for postgres driver")
	}
	switch cfg.Realtime.Broker {
	case "memory", "redis", "nats":
	default:
		log.Fatalf("unsupported REALTIME_BROKER %q (use memory, redis or nats)", cfg.Realtime.Broker)
	}
	if cfg.Auth.JWTSecret == "" && cfg.Env == "production" {
		log.Fatal("JWT_SECRET required in production")
	}
	return cfg
}
