package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
	NATS      NATSConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	Env            string
	MetricsEnabled bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
	DeviceTokenExpiration  time.Duration
}

// GatewayConfig configures the work-phone channel.
type GatewayConfig struct {
	Path             string
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	UnbindGrace      time.Duration
	AuthTimeout      time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	SendBufferSize   int
}

// WebSocketConfig configures the browser push service.
type WebSocketConfig struct {
	Path            string
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", "15m")
	if err != nil {
		return nil, err
	}
	refreshExp, err := getEnvAsDuration("REFRESH_TOKEN_EXPIRATION", "168h")
	if err != nil {
		return nil, err
	}
	deviceExp, err := getEnvAsDuration("DEVICE_TOKEN_EXPIRATION", "720h")
	if err != nil {
		return nil, err
	}

	heartbeatTimeout, err := getEnvAsDuration("GATEWAY_HEARTBEAT_TIMEOUT", "90s")
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getEnvAsDuration("GATEWAY_SWEEP_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	unbindGrace, err := getEnvAsDuration("GATEWAY_UNBIND_GRACE", "2s")
	if err != nil {
		return nil, err
	}
	authTimeout, err := getEnvAsDuration("GATEWAY_AUTH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	presenceTTL, err := getEnvAsDuration("REDIS_PRESENCE_TTL", "120s")
	if err != nil {
		return nil, err
	}

	if sweepInterval >= heartbeatTimeout {
		return nil, fmt.Errorf("GATEWAY_SWEEP_INTERVAL (%s) must be shorter than GATEWAY_HEARTBEAT_TIMEOUT (%s)", sweepInterval, heartbeatTimeout)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "0.0.0.0"),
			Env:            getEnv("ENV", "development"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "workphone"),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
			DeviceTokenExpiration:  deviceExp,
		},
		Gateway: GatewayConfig{
			Path:             getEnv("GATEWAY_PATH", "/ws/device"),
			HeartbeatTimeout: heartbeatTimeout,
			SweepInterval:    sweepInterval,
			UnbindGrace:      unbindGrace,
			AuthTimeout:      authTimeout,
			WriteWait:        10 * time.Second,
			MaxMessageSize:   int64(getEnvAsInt("GATEWAY_MAX_MESSAGE_SIZE", 65536)),
			SendBufferSize:   getEnvAsInt("GATEWAY_SEND_BUFFER_SIZE", 64),
		},
		WebSocket: WebSocketConfig{
			Path:            getEnv("WS_PATH", "/ws"),
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 65536)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			PresenceTTL: presenceTTL,
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "crm.calls"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Gateway.Path == cfg.WebSocket.Path {
		return nil, fmt.Errorf("GATEWAY_PATH and WS_PATH must differ, both are %q", cfg.Gateway.Path)
	}
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		return nil, fmt.Errorf("GATEWAY_PATH must start with '/': %q", cfg.Gateway.Path)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
