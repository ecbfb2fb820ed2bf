package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config carries every setting read from the environment.
type Config struct {
	Port         string
	GRPCPort     string
	Room         string
	UserName     string
	Connection   string
	RelayToken   string
	APIBaseURL   string
	AIBaseURL    string
	AIAPIKey     string
	AIModel      string
	DBDSN        string
	AMQPURL      string
	AMQPExchange string
	OTLPEndpoint string
	ServiceName  string
	Environment  string
	DebugRoutes  bool
	LogLevel     string
}

const (
	DefaultAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultAIModel   = "gemini-2.0-flash-exp"
)

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env")
	}

	return Config{
		Port:         getEnv("PORT", "8083"),
		GRPCPort:     getEnv("GRPC_PORT", ""),
		Room:         getEnv("ROOM", "main"),
		UserName:     getEnv("CHAT_USER_NAME", ""),
		Connection:   getEnv("CONNECTION_STRING", "ws://@localhost:8083"),
		RelayToken:   getEnv("RELAY_TOKEN", ""),
		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:8083"),
		AIBaseURL:    getEnv("AI_BASE_URL", DefaultAIBaseURL),
		AIAPIKey:     getEnv("AI_API_KEY", ""),
		AIModel:      getEnv("AI_MODEL", DefaultAIModel),
		DBDSN:        getEnv("DB_DSN", ""),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat.events"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("SERVICE_NAME", "collab-chat"),
		Environment:  getEnv("ENVIRONMENT", "local"),
		DebugRoutes:  getBool("DEBUG_ROUTES", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Relay holds the endpoint and token derived from a connection string.
type Relay struct {
	Endpoint string
	Token    string
}

// ParseConnection splits "scheme://TOKEN@host" into a websocket endpoint and
// an authorization token. yss and ys are aliases for wss and ws.
func ParseConnection(conn string) (Relay, error) {
	scheme, rest, ok := strings.Cut(conn, "://")
	if !ok || rest == "" {
		return Relay{}, errors.Errorf("invalid connection string %q", conn)
	}
	switch scheme {
	case "yss", "wss":
		scheme = "wss"
	case "ys", "ws":
		scheme = "ws"
	default:
		return Relay{}, errors.Errorf("unsupported connection scheme %q", scheme)
	}

	token, host, found := strings.Cut(rest, "@")
	if !found {
		host, token = token, ""
	}
	host = strings.TrimRight(host, "/")
	if host == "" {
		return Relay{}, errors.Errorf("connection string %q has no host", conn)
	}
	return Relay{Endpoint: scheme + "://" + host, Token: token}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		log.Warnf("ignoring invalid %s=%q", key, val)
		return fallback
	}
	return parsed
}
