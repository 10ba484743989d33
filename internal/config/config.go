package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string
	Port          string
	GinMode       string
	LogLevel      string
	LogPretty     bool
	SiteBaseURL   string
	SessionSecret string
	JWTSecret     string

	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string

	BlobDriver    string
	BlobBucket    string
	UploadDir     string
	UploadURLPath string

	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string

	AzureConnectionString string
	AzurePublicBaseURL    string
}

// Load 从 .env 与环境变量读取应用配置，并为缺失项提供安全的默认值。
// A missing .env file is not an error; variables already present in the
// environment win over the file.
func Load() AppConfig {
	_ = godotenv.Load()

	port := env("PORT", "8080")

	return AppConfig{
		ListenAddr:    env("LISTEN_ADDR", fmt.Sprintf(":%s", port)),
		Port:          port,
		GinMode:       env("GIN_MODE", "release"),
		LogLevel:      env("LOG_LEVEL", "info"),
		LogPretty:     envBool("LOG_PRETTY", false),
		SiteBaseURL:   env("SITE_BASE_URL", "http://localhost:"+port),
		SessionSecret: env("SESSION_SECRET", "folio-dev-secret"),
		JWTSecret:     env("AUTH_JWT_SECRET", ""),

		DatabaseDriver: strings.ToLower(env("DATABASE_DRIVER", "sqlite")),
		DatabasePath:   env("DATABASE_PATH", "folio.db"),
		DatabaseURL:    env("DATABASE_URL", ""),

		BlobDriver:    strings.ToLower(env("BLOB_DRIVER", "local")),
		BlobBucket:    env("BLOB_BUCKET", "blog-images"),
		UploadDir:     env("UPLOAD_DIR", "web/static/uploads"),
		UploadURLPath: env("UPLOAD_URL_PATH", "/static/uploads"),

		S3Region:        env("S3_REGION", "us-east-1"),
		S3Endpoint:      env("S3_ENDPOINT", ""),
		S3PublicBaseURL: env("S3_PUBLIC_BASE_URL", ""),

		AzureConnectionString: env("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzurePublicBaseURL:    env("AZURE_PUBLIC_BASE_URL", ""),
	}
}

// Validate reports configuration combinations that cannot start a server.
func (c AppConfig) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.BlobDriver {
	case "local", "memory":
	case "s3":
		if c.S3PublicBaseURL == "" {
			return fmt.Errorf("S3_PUBLIC_BASE_URL is required when BLOB_DRIVER=s3")
		}
	case "azure":
		if c.AzureConnectionString == "" {
			return fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required when BLOB_DRIVER=azure")
		}
	default:
		return fmt.Errorf("unsupported BLOB_DRIVER %q", c.BlobDriver)
	}
	return nil
}

func env(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
