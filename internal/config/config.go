package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ListenAddr string
	HTTPAddr   string
	LogLevel   string
	LogFormat  string

	WeatherDataFile string
	UsersFile       string

	// NearestRadius is the search radius, in coordinate degrees, used when a
	// queried location has no exact record.
	NearestRadius float64

	ShutdownTimeout time.Duration

	// Kafka mutation-event stream configuration.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Relational warehouse mirror configuration.
	WarehouseEnabled bool
	WarehouseDSN     string
}

// Load reads configuration from environment variables, applying defaults
// where unset. An optional .env file in the working directory is honored.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	radiusStr := envOrDefault("NEAREST_RADIUS", "100")
	radius, err := strconv.ParseFloat(radiusStr, 64)
	if err != nil || radius <= 0 {
		return nil, errors.New("invalid NEAREST_RADIUS")
	}

	shutdownStr := envOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	warehouseDSN := os.Getenv("WAREHOUSE_DSN")
	warehouseEnabled := warehouseDSN != ""
	if v := os.Getenv("WAREHOUSE_ENABLED"); v != "" {
		warehouseEnabled = v == "true"
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		ListenAddr:       envOrDefault("LISTEN_ADDR", ":12345"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		WeatherDataFile:  envOrDefault("WEATHER_DATA_FILE", "data/weather_data.json"),
		UsersFile:        envOrDefault("USERS_FILE", "data/users.txt"),
		NearestRadius:    radius,
		ShutdownTimeout:  shutdownTimeout,
		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "weatherline-mutations"),
		WarehouseEnabled: warehouseEnabled,
		WarehouseDSN:     warehouseDSN,
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.WarehouseEnabled && cfg.WarehouseDSN == "" {
		return nil, errors.New("WAREHOUSE_ENABLED is true but WAREHOUSE_DSN is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// String renders the config for startup logging, omitting credentials.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s http=%s weather_file=%s users_file=%s radius=%g kafka=%t warehouse=%t",
		c.ListenAddr, c.HTTPAddr, c.WeatherDataFile, c.UsersFile, c.NearestRadius, c.KafkaEnabled, c.WarehouseEnabled)
}
