// Package config loads process configuration from the environment (with
// an optional .env file) the way the teacher's cmd/main.go does via its
// getEnvOrDefault/GetDefaultConfig pattern, generalized here with
// spf13/viper for the larger settings surface this service needs, and
// builds the zap logger every other package takes as a dependency.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DatabaseConfig configures the Postgres connection backing the lineage
// tracker (internal/tracker).
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// StorageConfig configures the MinIO/S3 blob store (internal/storage).
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ConsulConfig configures service discovery (internal/registry).
type ConsulConfig struct {
	Addr string
}

// QdrantConfig configures the vector index (internal/vectorindex).
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
}

// NATSConfig configures the progress event bus (internal/flow).
type NATSConfig struct {
	URL string
}

// PipelineConfig tunes DAG execution (internal/flow.Deps).
type PipelineConfig struct {
	Concurrency        int
	ImagesPerSegment   int
	EmbeddingBatchSize int
}

// ServerConfig configures the HTTP layer (internal/httpapi).
type ServerConfig struct {
	Port string
}

// Config is every external dependency's configuration, loaded once at
// process start.
type Config struct {
	Env       string
	LogLevel  string
	Database  DatabaseConfig
	Redis     string
	Storage   StorageConfig
	Consul    ConsulConfig
	Qdrant    QdrantConfig
	NATS      NATSConfig
	Pipeline  PipelineConfig
	Server    ServerConfig
	// ServiceTimeout bounds each HTTP attempt a registry.ServiceClient makes;
	// every retry inside one Invoke call gets its own timeout.
	ServiceTimeout time.Duration
}

// Load reads .env (if present, silently ignored otherwise, matching the
// teacher's godotenv.Load() handling) then binds every setting to its
// environment variable via viper, applying the same defaults
// GetDefaultConfig hardcoded.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "goodclips")
	v.SetDefault("db_password", "goodclips_dev_password")
	v.SetDefault("db_name", "goodclips")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_timezone", "UTC")

	v.SetDefault("redis_url", "localhost:6379")

	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "minioadmin")
	v.SetDefault("minio_secret_key", "minioadmin")
	v.SetDefault("minio_use_ssl", false)

	v.SetDefault("consul_addr", "localhost:8500")

	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_api_key", "")

	v.SetDefault("nats_url", "nats://localhost:4222")

	v.SetDefault("pipeline_concurrency", 4)
	v.SetDefault("images_per_segment", 3)
	v.SetDefault("embedding_batch_size", 16)

	v.SetDefault("port", "8080")
	v.SetDefault("service_timeout_seconds", 30)

	redisURL := v.GetString("redis_url")
	redisURL = strings.TrimPrefix(redisURL, "redis://")

	cfg := &Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log_level"),
		Database: DatabaseConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			DBName:   v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
			TimeZone: v.GetString("db_timezone"),
		},
		Redis: redisURL,
		Storage: StorageConfig{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			UseSSL:    v.GetBool("minio_use_ssl"),
		},
		Consul: ConsulConfig{Addr: v.GetString("consul_addr")},
		Qdrant: QdrantConfig{
			Host:   v.GetString("qdrant_host"),
			Port:   v.GetInt("qdrant_port"),
			APIKey: v.GetString("qdrant_api_key"),
		},
		NATS: NATSConfig{URL: v.GetString("nats_url")},
		Pipeline: PipelineConfig{
			Concurrency:        v.GetInt("pipeline_concurrency"),
			ImagesPerSegment:   v.GetInt("images_per_segment"),
			EmbeddingBatchSize: v.GetInt("embedding_batch_size"),
		},
		Server:         ServerConfig{Port: v.GetString("port")},
		ServiceTimeout: time.Duration(v.GetInt("service_timeout_seconds")) * time.Second,
	}

	return cfg, nil
}

// DSN builds the Postgres connection string gorm.io/driver/postgres
// expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode, d.TimeZone,
	)
}

// BuildLogger constructs the process zap.Logger, production config in
// prod/production environments and development config (console-friendly,
// colorized level names) everywhere else, mirroring
// yungbote-neurobridge-backend's logger.New mode switch.
func BuildLogger(env string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch strings.ToLower(env) {
	case "prod", "production":
		zcfg = zap.NewProductionConfig()
	default:
		zcfg = zap.NewDevelopmentConfig()
	}
	return zcfg.Build()
}
