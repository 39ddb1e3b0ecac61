package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Performance PerformanceConfig
	Swot        SwotConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PerformanceConfig governs the performance dashboard endpoints and the
// aggregation options handed to the analytics pipeline.
type PerformanceConfig struct {
	Enabled          bool
	SnapshotCacheTTL time.Duration
	FetchTimeout     time.Duration
	MaxScore         float64
	SubjectMaxScore  float64
	ZeroAsAbsent     bool
	WarmWorkers      int
}

// SwotConfig lists the (Category:Title) pairs hidden from each audience.
type SwotConfig struct {
	DenyInstitution []string
	DenyEducator    []string
	DenyStudent     []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Performance = PerformanceConfig{
		Enabled:          v.GetBool("ENABLE_PERFORMANCE"),
		SnapshotCacheTTL: parseDuration(v.GetString("PERFORMANCE_SNAPSHOT_CACHE_TTL"), 2*time.Minute),
		FetchTimeout:     parseDuration(v.GetString("PERFORMANCE_FETCH_TIMEOUT"), 10*time.Second),
		MaxScore:         v.GetFloat64("PERFORMANCE_MAX_SCORE"),
		SubjectMaxScore:  v.GetFloat64("PERFORMANCE_SUBJECT_MAX_SCORE"),
		ZeroAsAbsent:     v.GetBool("PERFORMANCE_ZERO_AS_ABSENT"),
		WarmWorkers:      v.GetInt("PERFORMANCE_WARM_WORKERS"),
	}

	cfg.Swot = SwotConfig{
		DenyInstitution: splitAndTrim(v.GetString("SWOT_DENY_INSTITUTION")),
		DenyEducator:    splitAndTrim(v.GetString("SWOT_DENY_EDUCATOR")),
		DenyStudent:     splitAndTrim(v.GetString("SWOT_DENY_STUDENT")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "scorecard")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_PERFORMANCE", true)
	v.SetDefault("PERFORMANCE_SNAPSHOT_CACHE_TTL", "2m")
	v.SetDefault("PERFORMANCE_FETCH_TIMEOUT", "10s")
	v.SetDefault("PERFORMANCE_MAX_SCORE", 300)
	v.SetDefault("PERFORMANCE_SUBJECT_MAX_SCORE", 100)
	v.SetDefault("PERFORMANCE_ZERO_AS_ABSENT", true)
	v.SetDefault("PERFORMANCE_WARM_WORKERS", 2)

	// Educators see every quadrant by default; students do not see the pressure-related threats.
	v.SetDefault("SWOT_DENY_INSTITUTION", "")
	v.SetDefault("SWOT_DENY_EDUCATOR", "")
	v.SetDefault("SWOT_DENY_STUDENT", "Threats:Weakness on High-Impact Topics,Threats:Time Pressure Topics")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
