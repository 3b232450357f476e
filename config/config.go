// Package config loads engine settings from config.yaml, TUITION_*
// environment variables and command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Intent    IntentConfig
	Gemini    GeminiConfig
	Admission AdmissionConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Path string // SQLite file, ":memory:" for a throwaway store
	Seed bool   // load demo subjects into an empty store
}

// RedisConfig enables shared admission history when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type IntentConfig struct {
	TTL            time.Duration
	SweepThreshold int
	Timeout        time.Duration
}

// GeminiConfig configures the classification collaborator. An empty APIKey
// disables it.
type GeminiConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	RatePerSecond float64
	Burst         int
}

type AdmissionConfig struct {
	DailyQuota int
	Timezone   string // IANA name, empty for the host zone
}

// SetDefaults registers every key with its default so env variables and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.path", "tuition.db")
	v.SetDefault("database.seed", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("intent.ttl", time.Hour)
	v.SetDefault("intent.sweep_threshold", 100)
	v.SetDefault("intent.timeout", 10*time.Second)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash-001")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.rate_per_second", 5.0)
	v.SetDefault("gemini.burst", 5)

	v.SetDefault("admission.daily_quota", 3)
	v.SetDefault("admission.timezone", "")
}

// New returns a viper instance with defaults, env binding and config file
// search paths set up. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tuition-engine")

	v.SetEnvPrefix("TUITION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and builds a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
			Seed: v.GetBool("database.seed"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Intent: IntentConfig{
			TTL:            v.GetDuration("intent.ttl"),
			SweepThreshold: v.GetInt("intent.sweep_threshold"),
			Timeout:        v.GetDuration("intent.timeout"),
		},
		Gemini: GeminiConfig{
			APIKey:        v.GetString("gemini.api_key"),
			Model:         v.GetString("gemini.model"),
			BaseURL:       v.GetString("gemini.base_url"),
			RatePerSecond: v.GetFloat64("gemini.rate_per_second"),
			Burst:         v.GetInt("gemini.burst"),
		},
		Admission: AdmissionConfig{
			DailyQuota: v.GetInt("admission.daily_quota"),
			Timezone:   v.GetString("admission.timezone"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Intent.TTL <= 0 {
		errs = append(errs, errors.New("intent.ttl must be positive"))
	}
	if c.Intent.Timeout <= 0 {
		errs = append(errs, errors.New("intent.timeout must be positive"))
	}
	if c.Admission.DailyQuota <= 0 {
		errs = append(errs, errors.New("admission.daily_quota must be positive"))
	}
	if _, err := c.Admission.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the admission time zone.
func (a AdmissionConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("admission.timezone: %w", err)
	}
	return loc, nil
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
