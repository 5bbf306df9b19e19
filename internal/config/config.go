package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

type StorageConfig struct {
	// Driver is "local" or "s3".
	Driver       string
	ExportDir    string
	PublicPrefix string
	ExternalURL  string
	MaxAge       time.Duration
	CleanupCron  string
}

type KafkaConfig struct {
	Brokers  string
	Topic    string
	DLQTopic string
	GroupID  string
	Username string
	Password string
	CACert   string
}

type ContractorConfig struct {
	URL          string
	Timeout      time.Duration
	ServiceToken string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type AppConfig struct {
	Port           string
	AllowedOrigins []string
	Postgres       PostgresConfig
	Redis          RedisConfig
	S3             S3Config
	Storage        StorageConfig
	Kafka          KafkaConfig
	Contractor     ContractorConfig
	Auth           AuthConfig
	Log            LogConfig

	ResendCron     string
	ResendLeaseTTL time.Duration
	ExportTTL      time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration value %q: %v", s, err)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Load() AppConfig {
	return AppConfig{
		Port:           getenv("APP_PORT", "8080"),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "")),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "postgres"),
			Password: getenv("PG_PASSWORD", "postgres"),
			DBName:   getenv("PG_DB", "deal"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "deal_service_"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "exports"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", "deals/"),
		},
		Storage: StorageConfig{
			Driver:       getenv("EXPORT_STORAGE", "local"),
			ExportDir:    getenv("EXPORT_DIR", "./storage/exports"),
			PublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
			ExternalURL:  getenv("EXTERNAL_URL", ""),
			MaxAge:       mustDuration(getenv("EXPORT_FILE_MAX_AGE", "30m")),
			CleanupCron:  getenv("EXPORT_CLEANUP_CRON", "0 */5 * * * *"),
		},
		Kafka: KafkaConfig{
			Brokers:  getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:    getenv("KAFKA_CONTRACTOR_TOPIC", "contractor.updated"),
			DLQTopic: getenv("KAFKA_CONTRACTOR_DLQ_TOPIC", "contractor.updated.dlq"),
			GroupID:  getenv("KAFKA_GROUP_ID", "deal-service"),
			Username: getenv("KAFKA_USERNAME", ""),
			Password: getenv("KAFKA_PASSWORD", ""),
			CACert:   getenv("KAFKA_CA_CERT", ""),
		},
		Contractor: ContractorConfig{
			URL:          getenv("CONTRACTOR_SERVICE_URL", "http://localhost:8081"),
			Timeout:      mustDuration(getenv("CONTRACTOR_SERVICE_TIMEOUT", "5s")),
			ServiceToken: getenv("CONTRACTOR_SERVICE_TOKEN", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			Issuer:    getenv("JWT_ISSUER", ""),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
			Output: getenv("LOG_OUTPUT", "stdout"),
		},
		ResendCron:     getenv("OUTBOX_RESEND_CRON", "0 */1 * * * *"),
		ResendLeaseTTL: mustDuration(getenv("OUTBOX_RESEND_LEASE", "55s")),
		ExportTTL:      mustDuration(getenv("EXPORT_STATUS_TTL", "24h")),
	}
}
