package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	HTTPHost           string
	HTTPPort           string
	MySQLDSN           string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
	TempDir            string
	LogLevel           string
	LogFormat          string
	S3                 S3Config
}

// S3Config configures the MinIO-compatible blob store that hosts avatar
// and cover-image files.
type S3Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	PublicBaseURL  string
	UploadMaxBytes int64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	accessSecret := os.Getenv("ACCESS_TOKEN_SECRET")
	if accessSecret == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET environment variable is required")
	}

	refreshSecret := os.Getenv("REFRESH_TOKEN_SECRET")
	if refreshSecret == "" {
		return nil, errors.New("REFRESH_TOKEN_SECRET environment variable is required")
	}
	if refreshSecret == accessSecret {
		return nil, errors.New("REFRESH_TOKEN_SECRET must differ from ACCESS_TOKEN_SECRET")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		HTTPHost:           getEnv("HTTP_HOST", ""),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MySQLDSN:           mysqlDSN,
		AccessTokenSecret:  accessSecret,
		RefreshTokenSecret: refreshSecret,
		AccessTokenTTL:     getDurationEnv("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDurationEnv("REFRESH_TOKEN_TTL", 10*24*time.Hour),
		BcryptCost:         getIntEnv("BCRYPT_COST", bcrypt.DefaultCost),
		TempDir:            getEnv("TEMP_DIR", os.TempDir()),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		S3: S3Config{
			Endpoint:       getEnv("S3_ENDPOINT", "http://localhost:9000"),
			AccessKey:      getEnv("S3_ACCESS_KEY", ""),
			SecretKey:      getEnv("S3_SECRET_KEY", ""),
			Bucket:         getEnv("S3_BUCKET", "media"),
			PublicBaseURL:  getEnv("S3_PUBLIC_BASE_URL", ""),
			UploadMaxBytes: int64(getIntEnv("UPLOAD_MAX_BYTES", 32<<20)),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("15m", "240h") and, for
// compatibility with older deployments, bare integers meaning minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
