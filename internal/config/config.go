package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the store. Driver is one of postgres, sqlite or memory.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host              string
	Port              string
	Password          string
	DB                int
	NotificationQueue string
}

type LedgerConfig struct {
	IDMaxAttempts        int
	LockTimeout          time.Duration
	AllowNegativeBalance bool
	NotifyTimeout        time.Duration
	// SeedUsers lists "id" or "id:email" entries provisioned at startup on SQL drivers.
	SeedUsers []string
}

type JWTConfig struct {
	SecretKey string
}

var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",

	"database.driver":            "DATABASE_DRIVER",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.path":              "DATABASE_PATH",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",

	"redis.host":               "REDIS_HOST",
	"redis.port":               "REDIS_PORT",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"redis.notification_queue": "REDIS_NOTIFICATION_QUEUE",

	"ledger.id_max_attempts":        "LEDGER_ID_MAX_ATTEMPTS",
	"ledger.lock_timeout":           "LEDGER_LOCK_TIMEOUT",
	"ledger.allow_negative_balance": "LEDGER_ALLOW_NEGATIVE_BALANCE",
	"ledger.notify_timeout":         "LEDGER_NOTIFY_TIMEOUT",
	"ledger.seed_users":             "LEDGER_SEED_USERS",

	"jwt.secret_key": "JWT_SECRET_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "ledger.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.notification_queue", "ledger:notifications")

	v.SetDefault("ledger.id_max_attempts", 10)
	v.SetDefault("ledger.lock_timeout", 5*time.Second)
	v.SetDefault("ledger.allow_negative_balance", true)
	v.SetDefault("ledger.notify_timeout", 3*time.Second)
	v.SetDefault("ledger.seed_users", "")

	v.SetDefault("jwt.secret_key", "")
}

// Load reads configuration from the given env file, then the environment.
// A missing file is not an error; defaults and environment variables apply.
func Load(path string) *Config {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
		} else {
			promoteFileValues(v)
		}
	}

	return fromViper(v)
}

// promoteFileValues maps .env entries (REDIS_DB=3 is read as "redis_db") onto
// their dotted keys. Process environment variables still take precedence.
func promoteFileValues(v *viper.Viper) {
	for key, env := range envBindings {
		fileKey := strings.ToLower(env)
		if v.InConfig(fileKey) {
			v.SetDefault(key, v.Get(fileKey))
		}
	}
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:              v.GetString("redis.host"),
			Port:              v.GetString("redis.port"),
			Password:          v.GetString("redis.password"),
			DB:                v.GetInt("redis.db"),
			NotificationQueue: v.GetString("redis.notification_queue"),
		},
		Ledger: LedgerConfig{
			IDMaxAttempts:        v.GetInt("ledger.id_max_attempts"),
			LockTimeout:          v.GetDuration("ledger.lock_timeout"),
			AllowNegativeBalance: v.GetBool("ledger.allow_negative_balance"),
			NotifyTimeout:        v.GetDuration("ledger.notify_timeout"),
			SeedUsers:            splitList(v.GetString("ledger.seed_users")),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
