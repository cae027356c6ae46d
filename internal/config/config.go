package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-me-in-production"

type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Redis         RedisConfig         `json:"redis"`
	Worker        WorkerConfig        `json:"worker"`
	Auth          AuthConfig          `json:"auth"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	LoginThrottle LoginThrottleConfig `json:"login_throttle"`
}

type ServerConfig struct {
	Host         string        `json:"host" validate:"required"`
	Port         string        `json:"port" validate:"required,numeric"`
	ReadTimeout  time.Duration `json:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `json:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `json:"idle_timeout" validate:"gt=0"`
	Environment  string        `json:"environment" validate:"oneof=development test staging production"`
	LogLevel     string        `json:"log_level" validate:"oneof=debug info warn error"`
	CORSOrigins  []string      `json:"cors_origins"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name" validate:"required"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `json:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host         string        `json:"host" validate:"required"`
	Port         string        `json:"port" validate:"required"`
	Password     string        `json:"password"`
	DB           int           `json:"db" validate:"gte=0"`
	PoolSize     int           `json:"pool_size" validate:"gte=1"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WorkerConfig struct {
	Enabled      bool          `json:"enabled"`
	Concurrency  int           `json:"concurrency" validate:"gte=1"`
	PollInterval time.Duration `json:"poll_interval" validate:"gt=0"`
	MaxAttempts  int           `json:"max_attempts" validate:"gte=1"`
}

// AuthConfig is read once at startup and handed to the token codec and the
// credential hasher; nothing reads these values from the environment later.
type AuthConfig struct {
	JWTSecret  string        `json:"-" validate:"required,min=16"`
	TokenTTL   time.Duration `json:"token_ttl" validate:"gt=0"`
	BCryptCost int           `json:"bcrypt_cost" validate:"gte=4,lte=31"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute" validate:"gte=1"`
	BurstSize       int           `json:"burst_size" validate:"gte=1"`
	CleanupInterval time.Duration `json:"cleanup_interval" validate:"gt=0"`
}

type LoginThrottleConfig struct {
	Enabled     bool          `json:"enabled"`
	MaxAttempts int           `json:"max_attempts" validate:"gte=1"`
	Window      time.Duration `json:"window" validate:"gt=0"`
}

var validate = validator.New()

func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("HOST", "localhost"),
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
			CORSOrigins:  getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "task_manager"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			Enabled:      getEnvAsBool("WORKER_ENABLED", true),
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 4),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:  getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", defaultJWTSecret),
			TokenTTL:   getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
			BCryptCost: getEnvAsInt("BCRYPT_COST", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  getEnvAsInt("RATE_LIMIT_RPM", 100),
			BurstSize:       getEnvAsInt("RATE_LIMIT_BURST", 10),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		LoginThrottle: LoginThrottleConfig{
			Enabled:     getEnvAsBool("LOGIN_THROTTLE_ENABLED", true),
			MaxAttempts: getEnvAsInt("LOGIN_THROTTLE_MAX_ATTEMPTS", 5),
			Window:      getEnvAsDuration("LOGIN_THROTTLE_WINDOW", 15*time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid configuration: %s failed on %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.IsProduction() {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Auth.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT secret must be set in production")
		}
	}

	return nil
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Name
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
