// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WhatsAppConfig describes the messaging provider endpoint and the
// credential handed to the secret store.
type WhatsAppConfig struct {
	BaseURL            string               `mapstructure:"base_url"`
	APIVersion         string               `mapstructure:"api_version"`
	Timeout            int                  `mapstructure:"timeout"`
	DefaultCountryCode string               `mapstructure:"default_country_code"`
	AccountID          string               `mapstructure:"account_id"`
	PhoneNumberID      string               `mapstructure:"phone_number_id"`
	AccessToken        string               `mapstructure:"access_token"`
	CircuitBreaker     CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	FailureRatio     float64 `mapstructure:"failure_ratio"`
	ConsecutiveFails uint32  `mapstructure:"consecutive_fails"`
}

// DispatchConfig bounds one campaign's send pipeline: at most Concurrency
// calls in flight and at most RatePerSecond call starts within any trailing
// one-second window.
type DispatchConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	RatePerSecond int `mapstructure:"rate_per_second"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	RetryDelayMs  int `mapstructure:"retry_delay_ms"`
	ProgressStep  int `mapstructure:"progress_step"`
}

// RecoveryConfig controls the loop that resumes campaigns left in the
// sending state by a crash.
type RecoveryConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// ReconcileConfig controls the loop that flags messages stuck in the sent
// state with no delivery callback.
type ReconcileConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	IntervalMinutes      int  `mapstructure:"interval_minutes"`
	DeliveryTimeoutHours int  `mapstructure:"delivery_timeout_hours"`
}

type MiddlewareConfig struct {
	RateLimit      int      `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 10)
	viper.SetDefault("server.write_timeout", 10)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("whatsapp.base_url", "https://graph.facebook.com")
	viper.SetDefault("whatsapp.api_version", "v19.0")
	viper.SetDefault("whatsapp.timeout", 30)
	viper.SetDefault("whatsapp.default_country_code", "1")
	viper.SetDefault("whatsapp.circuit_breaker.max_requests", 3)
	viper.SetDefault("whatsapp.circuit_breaker.interval", 60)
	viper.SetDefault("whatsapp.circuit_breaker.timeout", 60)
	viper.SetDefault("whatsapp.circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("whatsapp.circuit_breaker.consecutive_fails", 5)
	viper.SetDefault("dispatch.concurrency", 4)
	viper.SetDefault("dispatch.rate_per_second", 20)
	viper.SetDefault("dispatch.max_attempts", 3)
	viper.SetDefault("dispatch.retry_delay_ms", 500)
	viper.SetDefault("dispatch.progress_step", 25)
	viper.SetDefault("recovery.enabled", true)
	viper.SetDefault("recovery.interval_minutes", 5)
	viper.SetDefault("reconcile.enabled", true)
	viper.SetDefault("reconcile.interval_minutes", 15)
	viper.SetDefault("reconcile.delivery_timeout_hours", 24)
	viper.SetDefault("middleware.rate_limit", 100)
	viper.SetDefault("middleware.rate_limit_burst", 1000)
	viper.SetDefault("middleware.enable_cors", true)
	viper.SetDefault("middleware.allowed_origins", []string{"*"})

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// GetDSN returns PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RetryDelay returns the base backoff between send attempts.
func (d *DispatchConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelayMs) * time.Millisecond
}
