package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/bracket-picks/storage"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL        string
	JWTSecretKey       string
	JWTTTL             time.Duration
	ServerPort         int
	LogLevel           slog.Level
	CORSAllowedOrigins []string
	LoginRatePerMinute int
	R2                 storage.R2Config
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	LoadDotEnv()
	return FromLookup(os.LookupEnv)
}

// LoadDotEnv подгружает .env, если он есть. Ошибку не считаем фатальной: .env нужен только локально.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// FromLookup builds the configuration from any key lookup, os.LookupEnv in production.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	dbURL := get("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := get("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := get("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	level := slog.LevelInfo
	if raw := get("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
		}
	}

	ttl := 24 * time.Hour
	if raw := get("JWT_TTL"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL environment variable: %w", err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("JWT_TTL must be positive, got %s", ttl)
		}
	}

	rate := 10
	if raw := get("LOGIN_RATE_PER_MINUTE"); raw != "" {
		rate, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE environment variable: %w", err)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive, got %d", rate)
		}
	}

	var origins []string
	for _, o := range strings.Split(get("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	r2 := storage.R2Config{
		AccountID:       get("R2_ACCOUNT_ID"),
		AccessKeyID:     get("R2_ACCESS_KEY_ID"),
		SecretAccessKey: get("R2_SECRET_ACCESS_KEY"),
		BucketName:      get("R2_BUCKET_NAME"),
		PublicBaseURL:   get("R2_PUBLIC_BASE_URL"),
	}
	if r2.Enabled() {
		if err := r2.Validate(); err != nil {
			return nil, fmt.Errorf("R2_* settings: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:        dbURL,
		JWTSecretKey:       jwtKey,
		JWTTTL:             ttl,
		ServerPort:         port,
		LogLevel:           level,
		CORSAllowedOrigins: origins,
		LoginRatePerMinute: rate,
		R2:                 r2,
	}

	return cfg, nil
}
