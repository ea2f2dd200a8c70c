package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Nicky             NickyConfig
}

type AppConfig struct {
	ServiceName    string
	PublicBaseURL  string
	GatewayBaseURL string
	Debug          bool
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type NickyConfig struct {
	AuthToken     string
	NotifyURL     string
	APIBaseURL    string
	PayBaseURL    string
	CreateTimeout time.Duration
	StatusTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	authToken := strings.TrimSpace(os.Getenv("NICKY_AUTH_TOKEN"))
	if authToken == "" {
		return nil, errors.New("NICKY_AUTH_TOKEN environment variable is required")
	}
	notifyURL := strings.TrimSpace(os.Getenv("NICKY_NOTIFY_URL"))
	if notifyURL == "" {
		return nil, errors.New("NICKY_NOTIFY_URL environment variable is required")
	}
	publicBaseURL := strings.TrimSpace(os.Getenv("APP_PUBLIC_BASE_URL"))
	if publicBaseURL == "" {
		return nil, errors.New("APP_PUBLIC_BASE_URL environment variable is required")
	}
	gatewayBaseURL := strings.TrimSpace(os.Getenv("APP_GATEWAY_BASE_URL"))
	if gatewayBaseURL == "" {
		return nil, errors.New("APP_GATEWAY_BASE_URL environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName:    getEnv("APP_SERVICE_NAME", "payments-nicky-service"),
			PublicBaseURL:  publicBaseURL,
			GatewayBaseURL: gatewayBaseURL,
			Debug:          getBoolEnv("APP_DEBUG", false),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Nicky: NickyConfig{
			AuthToken:     authToken,
			NotifyURL:     notifyURL,
			APIBaseURL:    getEnv("NICKY_API_BASE_URL", "https://api-public.pay.nicky.me/"),
			PayBaseURL:    getEnv("NICKY_PAY_BASE_URL", "https://pay.nicky.me/home"),
			CreateTimeout: getSecondsEnv("NICKY_CREATE_TIMEOUT_SECONDS", 10*time.Second),
			StatusTimeout: getSecondsEnv("NICKY_STATUS_TIMEOUT_SECONDS", 5*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
