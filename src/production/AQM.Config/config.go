package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMock     = "mock"
)

// Aggregation modes selectable through AGGREGATION_MODE
const (
	AggregationHourOfDay    = "hour-of-day"
	AggregationAbsoluteHour = "absolute-hour"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Reading store configuration
	Store StoreConfig `json:"store"`

	// Ingestion configuration
	Ingest IngestConfig `json:"ingest"`

	// Liveness configuration
	Liveness LivenessConfig `json:"liveness"`

	// Aggregation configuration
	Aggregation AggregationConfig `json:"aggregation"`

	// Query defaults
	Query QueryConfig `json:"query"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// StoreConfig selects and configures the reading store
type StoreConfig struct {
	Backend        string         `json:"backend"` // mongo, postgres or mock
	MongoURI       string         `json:"-"`
	MongoDB        string         `json:"mongo_db"`
	Collection     string         `json:"collection"` // mongo collection or postgres table
	ConnectTimeout time.Duration  `json:"connect_timeout"`
	Postgres       PostgresConfig `json:"postgres"`
	MockSeed       int            `json:"mock_seed"` // synthetic readings preloaded by the mock store
}

// PostgresConfig holds database-related configuration for the postgres backend
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// IngestConfig holds device ingestion configuration
type IngestConfig struct {
	APIKey          string `json:"-"`
	DefaultDeviceID string `json:"default_device_id"`
}

// LivenessConfig holds fleet staleness configuration
type LivenessConfig struct {
	StaleAfter    time.Duration `json:"stale_after"`
	CheckInterval time.Duration `json:"check_interval"`
}

// AggregationConfig holds hourly rollup configuration
type AggregationConfig struct {
	Mode     string `json:"mode"`
	TimeZone string `json:"time_zone"`
}

// QueryConfig holds the defaults applied to historical queries
type QueryConfig struct {
	DefaultHours int `json:"default_hours"`
	DefaultLimit int `json:"default_limit"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"-"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ErrorTopic  string        `json:"error_topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// ClientConfig holds configuration for talking to the dashboard API
type ClientConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"-"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// BridgeConfig holds configuration for the MQTT bridge service
type BridgeConfig struct {
	Server    ServerConfig  `json:"server"`
	MQTT      MQTTConfig    `json:"mqtt"`
	Logging   LoggingConfig `json:"logging"`
	Client    ClientConfig  `json:"client"`
	QueueSize int           `json:"queue_size"`
}

// LoadBridgeConfig loads configuration for the MQTT bridge service
func LoadBridgeConfig() (*BridgeConfig, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	config := &BridgeConfig{
		Server: ServerConfig{
			Port:         getEnv("BRIDGE_PORT", "9003"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		MQTT:    loadMQTT("aqm-bridge"),
		Logging: loadLogging(),
		Client: ClientConfig{
			BaseURL:    getEnv("API_SERVICE_URL", "http://localhost:9002"),
			APIKey:     getEnv("ESP32_API_KEY", ""),
			Timeout:    getDuration("API_CLIENT_TIMEOUT", 30*time.Second),
			MaxRetries: getInt("API_CLIENT_MAX_RETRIES", 3),
			RetryDelay: getDuration("API_CLIENT_RETRY_DELAY", time.Second),
		},
		QueueSize: getInt("BRIDGE_QUEUE_SIZE", 4096),
	}

	if config.Client.BaseURL == "" {
		return nil, fmt.Errorf("API_SERVICE_URL is required")
	}
	if config.MQTT.BrokerHost == "" {
		return nil, fmt.Errorf("BROKER_HOST is required")
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("BRIDGE_QUEUE_SIZE must be positive")
	}

	return config, nil
}

// LoadClientConfig loads configuration for command line API consumers
func LoadClientConfig() ClientConfig {
	_ = godotenv.Load()

	return ClientConfig{
		BaseURL:    getEnv("API_SERVICE_URL", "http://localhost:9002"),
		APIKey:     getEnv("ESP32_API_KEY", ""),
		Timeout:    getDuration("API_CLIENT_TIMEOUT", 30*time.Second),
		MaxRetries: getInt("API_CLIENT_MAX_RETRIES", 3),
		RetryDelay: getDuration("API_CLIENT_RETRY_DELAY", time.Second),
	}
}

// Load loads configuration for the API service from environment variables with fallback defaults
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist.
	// This allows the application to work with environment variables set directly
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "9002"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(getEnv("STORE_BACKEND", BackendMongo)),
			MongoURI:       getEnv("MONGODB_URI", ""),
			MongoDB:        getEnv("DB_NAME", "aqi_monitoring"),
			Collection:     getEnv("COLL_NAME", "sensor_readings"),
			ConnectTimeout: getDuration("STORE_CONNECT_TIMEOUT", 20*time.Second),
			Postgres: PostgresConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getInt("POSTGRES_PORT", 5432),
				User:     getEnv("POSTGRES_USER", ""),
				Password: getEnv("POSTGRES_PASSWORD", ""),
				DBName:   getEnv("POSTGRES_DB", "aqi_monitoring"),
				SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConns: getInt("POSTGRES_MAX_CONNS", 25),
				MinConns: getInt("POSTGRES_MIN_CONNS", 5),
			},
			MockSeed: getInt("MOCK_SEED_READINGS", 0),
		},
		Ingest: IngestConfig{
			APIKey:          getEnv("ESP32_API_KEY", ""),
			DefaultDeviceID: getEnv("DEFAULT_DEVICE_ID", "ESP32_001"),
		},
		Liveness: LivenessConfig{
			StaleAfter:    getDuration("LIVENESS_STALE_AFTER", 2*time.Minute),
			CheckInterval: getDuration("LIVENESS_CHECK_INTERVAL", 5*time.Second),
		},
		Aggregation: AggregationConfig{
			Mode:     strings.ToLower(getEnv("AGGREGATION_MODE", AggregationHourOfDay)),
			TimeZone: getEnv("AGGREGATION_TIMEZONE", "Local"),
		},
		Query: QueryConfig{
			DefaultHours: getInt("QUERY_DEFAULT_HOURS", 24),
			DefaultLimit: getInt("QUERY_DEFAULT_LIMIT", 1000),
		},
		Logging: loadLogging(),
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "x-api-key"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the %s backend", BackendMongo)
		}
	case BackendPostgres:
		if c.Store.Postgres.User == "" {
			return fmt.Errorf("POSTGRES_USER is required for the %s backend", BackendPostgres)
		}
		if c.Store.Postgres.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required for the %s backend", BackendPostgres)
		}
	case BackendMock:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (expected %s, %s or %s)", c.Store.Backend, BackendMongo, BackendPostgres, BackendMock)
	}

	if c.Ingest.APIKey == "" {
		log.Println("WARNING: ESP32_API_KEY is not set. Every ingestion request will be rejected!")
	}
	if c.Liveness.StaleAfter <= 0 {
		return fmt.Errorf("LIVENESS_STALE_AFTER must be positive")
	}
	if c.Liveness.CheckInterval <= 0 {
		return fmt.Errorf("LIVENESS_CHECK_INTERVAL must be positive")
	}
	if c.Aggregation.Mode != AggregationHourOfDay && c.Aggregation.Mode != AggregationAbsoluteHour {
		return fmt.Errorf("unknown AGGREGATION_MODE %q", c.Aggregation.Mode)
	}
	if _, err := c.Aggregation.Location(); err != nil {
		return err
	}
	if c.Query.DefaultHours <= 0 || c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query defaults must be positive")
	}
	return nil
}

// Location resolves the time zone used for hour bucketing
func (a AggregationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid AGGREGATION_TIMEZONE %q: %w", a.TimeZone, err)
	}
	return loc, nil
}

// GetDatabaseDSN returns the postgres connection string
func (c *Config) GetDatabaseDSN() string {
	p := c.Store.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (m MQTTConfig) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if m.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.BrokerHost, m.BrokerPort)
}

func loadMQTT(clientID string) MQTTConfig {
	return MQTTConfig{
		BrokerHost:  getEnv("BROKER_HOST", "localhost"),
		BrokerPort:  getInt("BROKER_PORT", 1883),
		BrokerUser:  getEnv("BROKER_USER", ""),
		BrokerPass:  getEnv("BROKER_PASS", ""),
		UseTLS:      getBool("BROKER_TLS", false),
		CACertPath:  getEnv("BROKER_CA_FILE", ""),
		Topic:       getEnv("MQTT_TOPIC", "aqm/+/readings"),
		ErrorTopic:  getEnv("MQTT_ERROR_TOPIC", "aqm/errors"),
		ClientID:    getEnv("MQTT_CLIENT_ID", clientID),
		SharedGroup: getEnv("MQTT_SHARED_GROUP", ""),
		KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
		PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
	}
}

// LoadMQTT loads broker settings for standalone tools such as the device simulator
func LoadMQTT(clientID string) MQTTConfig {
	_ = godotenv.Load()
	return loadMQTT(clientID)
}

func loadLogging() LoggingConfig {
	return LoggingConfig{
		Level:        getEnv("LOG_LEVEL", "info"),
		Format:       getEnv("LOG_FORMAT", "text"),
		Output:       getEnv("LOG_OUTPUT", "stdout"),
		EnableCaller: getBool("LOG_ENABLE_CALLER", false),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
