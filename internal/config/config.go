package config

import (
	"log"
	"os"
	"strconv"
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

type AppConfig struct {
	Addr    string
	BaseURL string

	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config

	// Local storage for generated receipt PDFs.
	FilesDir          string
	FilesPublicPrefix string
	FileTTLHours      int

	TokenName string

	// Destructive admin operation: compacts debt IDs. Off unless explicitly
	// enabled; the endpoint refuses and writes an audit row when off.
	DebtRenumberingEnabled bool
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

func Load() AppConfig {
	return AppConfig{
		Addr:    getenv("APP_ADDR", ":8080"),
		BaseURL: getenv("APP_BASE_URL", ""),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASS", "hello-world"),
			DBName:   getenv("PG_NAME", "debtster"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_HOST", "127.0.0.1") + ":" + getenv("REDIS_PORT", "6379"),
			Password:    getenv("REDIS_PASS", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "debtster_database_"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "debtster"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
		},
		FilesDir:               getenv("FILES_DIR", "./files"),
		FilesPublicPrefix:      getenv("FILES_PUBLIC_PREFIX", "/files"),
		FileTTLHours:           mustAtoi(getenv("FILE_TTL", "48")),
		TokenName:              getenv("TOKEN_NAME", "api"),
		DebtRenumberingEnabled: mustBool(getenv("DEBT_RENUMBERING_ENABLED", "false")),
	}
}
