package app

import (
	"os"
	"strconv"
	"strings"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string
	DBDriver string
	DBDSN    string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	JWTSecret      string
	AdminKeyBcrypt string

	CORSAllowedOrigins  []string
	AuthRateLimitPerMin int
}

func LoadConfig() Config {
	origins := []string{"http://localhost:3000"}
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		origins = origins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return Config{
		AppEnv:              envOrDefault("APP_ENV", "development"),
		HTTPAddr:            envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:            envOrDefault("DB_DRIVER", "postgres"),
		DBDSN:               os.Getenv("DB_DSN"),
		DBMaxOpenConns:      intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:      intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:   intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		JWTSecret:           os.Getenv("AUTH_JWT_SECRET"),
		AdminKeyBcrypt:      os.Getenv("ADMIN_KEY_BCRYPT"),
		CORSAllowedOrigins:  origins,
		AuthRateLimitPerMin: intOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 60),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(key string, fallback int) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	if n <= 0 {
		return fallback
	}
	return n
}
