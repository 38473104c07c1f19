package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Login     LoginConfig
	WrongPass WrongPassConfig
	Async     AsyncConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port              string
	Env               string
	LogLevel          string
	LogRequestContent bool
	TrustedProxies    []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	LoginRateLimit    int // requests per minute per address on POST /login, 0 disables
}

// LoginConfig holds the login REST service settings
type LoginConfig struct {
	ExternalAddress string
	LocalAddress    string
	TicketDuration  time.Duration
	PortalPort      int
	BanExpiryCheck  time.Duration
	FailureDelay    time.Duration // minimum time to answer a failed login, 0 disables
	FailureJitter   time.Duration
}

// WrongPassConfig controls the bruteforce guard
type WrongPassConfig struct {
	MaxCount uint32 // 0 disables the guard
	Logging  bool
	BanMode  models.BanMode
	BanTime  time.Duration
}

type AsyncConfig struct {
	MaxChains int64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	banMode, err := models.ParseBanMode(getEnv("WRONG_PASS_BAN_TYPE", "ip"))
	if err != nil {
		return nil, fmt.Errorf("WRONG_PASS_BAN_TYPE: %w", err)
	}

	maxWrongPass := getEnvAsInt("WRONG_PASS_MAX_COUNT", 0)
	if maxWrongPass < 0 {
		return nil, fmt.Errorf("WRONG_PASS_MAX_COUNT must not be negative")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "auth"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:              getEnv("PORT", "8081"),
			Env:               env,
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogRequestContent: getEnvAsBool("LOG_REQUEST_CONTENT", false),
			TrustedProxies:    getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRateLimit:    getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 0),
		},
		Login: LoginConfig{
			ExternalAddress: getEnv("LOGIN_REST_EXTERNAL_ADDRESS", "127.0.0.1"),
			LocalAddress:    getEnv("LOGIN_REST_LOCAL_ADDRESS", "127.0.0.1"),
			TicketDuration:  getEnvAsSeconds("LOGIN_REST_TICKET_DURATION", 3600),
			PortalPort:      getEnvAsInt("BATTLENET_PORT", 1119),
			BanExpiryCheck:  getEnvAsDuration("BAN_EXPIRY_CHECK_INTERVAL", 60*time.Second),
			FailureDelay:    getEnvAsDuration("LOGIN_FAILURE_DELAY", 0),
			FailureJitter:   getEnvAsDuration("LOGIN_FAILURE_JITTER", 0),
		},
		WrongPass: WrongPassConfig{
			MaxCount: uint32(maxWrongPass),
			Logging:  getEnvAsBool("WRONG_PASS_LOGGING", false),
			BanMode:  banMode,
			BanTime:  getEnvAsSeconds("WRONG_PASS_BAN_TIME", 600),
		},
		Async: AsyncConfig{
			MaxChains: int64(getEnvAsInt("ASYNC_MAX_CHAINS", 64)),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Login.TicketDuration <= 0 {
		return nil, fmt.Errorf("LOGIN_REST_TICKET_DURATION must be positive")
	}

	if cfg.Login.FailureDelay < 0 || cfg.Login.FailureJitter < 0 {
		return nil, fmt.Errorf("LOGIN_FAILURE_DELAY and LOGIN_FAILURE_JITTER must not be negative")
	}

	if cfg.Async.MaxChains <= 0 {
		return nil, fmt.Errorf("ASYNC_MAX_CHAINS must be positive")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsSeconds reads a plain integer number of seconds, the unit the game server config uses
func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsList(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return []string{}
	}
	items := strings.Split(value, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}
