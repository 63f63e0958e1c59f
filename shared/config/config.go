package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// SimulatorConfig holds configuration for the simulator service
type SimulatorConfig struct {
	Symbol       string
	Resolution   string        // candle resolution label, e.g. "1m"
	Interval     time.Duration // candle interval
	TickInterval time.Duration // live tick cadence
	BasePrice    float64
	Volatility   float64
	VolumeBase   float64
	Seed         int64 // 0 means time-based
	Backfill     int   // historical candles generated at boot
	Port         int
}

// ClientConfig holds configuration for the subscriber client
type ClientConfig struct {
	ServerURL string
	Format    string
}

// InfraConfig holds environment-backed infrastructure settings.
type InfraConfig struct {
	PostgresEnabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"syntick"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:""`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"syntick"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	RedisEnabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisTTL      time.Duration `envconfig:"REDIS_TTL" default:"30s"`
}

// PostgresDSN builds the lib/pq connection string.
func (c InfraConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser,
		c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// ParseSimulatorFlags parses command line flags for the simulator service
func ParseSimulatorFlags() *SimulatorConfig {
	var (
		symbol     = flag.String("symbol", "SYN-USDT", "Instrument symbol")
		interval   = flag.Int("interval", 60, "Candle interval in seconds")
		tick       = flag.Int("tick", 500, "Live tick cadence in milliseconds")
		basePrice  = flag.Float64("base-price", 10.0, "Anchor price for mean reversion")
		volatility = flag.Float64("volatility", 0.02, "Baseline per-step volatility")
		volumeBase = flag.Float64("volume-base", 1000, "Baseline per-candle volume")
		seed       = flag.Int64("seed", 0, "RNG seed (0 = time-based)")
		backfill   = flag.Int("backfill", 0, "Historical candles to generate at boot")
		port       = flag.Int("port", 8080, "HTTP server port")
	)
	flag.Parse()

	return &SimulatorConfig{
		Symbol:       *symbol,
		Resolution:   resolutionLabel(time.Duration(*interval) * time.Second),
		Interval:     time.Duration(*interval) * time.Second,
		TickInterval: time.Duration(*tick) * time.Millisecond,
		BasePrice:    *basePrice,
		Volatility:   *volatility,
		VolumeBase:   *volumeBase,
		Seed:         *seed,
		Backfill:     *backfill,
		Port:         *port,
	}
}

// ParseClientFlags parses command line flags for the subscriber client
func ParseClientFlags() *ClientConfig {
	var (
		server = flag.String("server", "ws://localhost:8080/ws", "Simulator websocket URL")
		format = flag.String("format", "json", "Output format (json/table)")
	)
	flag.Parse()

	return &ClientConfig{
		ServerURL: *server,
		Format:    *format,
	}
}

// LoadInfra reads infrastructure settings from the environment, honoring a
// local .env file when present.
func LoadInfra() (*InfraConfig, error) {
	_ = godotenv.Load() // absent .env is fine

	var cfg InfraConfig
	if err := envconfig.Process("SYNTICK", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &cfg, nil
}

func resolutionLabel(interval time.Duration) string {
	switch {
	case interval >= time.Hour && interval%time.Hour == 0:
		return fmt.Sprintf("%dh", interval/time.Hour)
	case interval >= time.Minute && interval%time.Minute == 0:
		return fmt.Sprintf("%dm", interval/time.Minute)
	default:
		return fmt.Sprintf("%ds", int(interval.Seconds()))
	}
}
