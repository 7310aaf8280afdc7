package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustinrgood/CivicAide-PolicyAide/common/otel"
	"github.com/dustinrgood/CivicAide-PolicyAide/core/db"
	"github.com/joho/godotenv"
)

// Config holds all application configuration, assembled from environment
// variables with documented defaults per spec.md §6. Every tunable that
// governs the evolution loop is prefixed OPENAI_AGENTS_ for parity with the
// external agents-SDK convention named in the spec.
type Config struct {
	// Env is the environment name (development, staging, production)
	Env string

	// Port is the HTTP server port for the thin gin surface
	Port string

	// Evolution loop tunables, spec.md §6
	MaxGenerations   int // OPENAI_AGENTS_MAX_GENERATIONS, default 3
	RoundsPerGen     int // OPENAI_AGENTS_ROUNDS_PER_GEN, default 5
	PairsPerRound    int // OPENAI_AGENTS_PAIRS_PER_ROUND, 0 = auto-sized
	InitialProposals int // OPENAI_AGENTS_INITIAL_PROPOSALS, default 3
	TopMEvolve       int // OPENAI_AGENTS_TOP_M_EVOLVE, default 2
	KFactor          int // OPENAI_AGENTS_K_FACTOR, default 32
	MaxInflight      int // OPENAI_AGENTS_MAX_INFLIGHT, default 4

	WorkerEndpoint string // OPENAI_AGENTS_WORKER_ENDPOINT
	WorkerModel    string // OPENAI_AGENTS_WORKER_MODEL
	WorkerAPIKey   string // OPENAI_API_KEY

	SearchEndpoint string // OPENAI_AGENTS_SEARCH_ENDPOINT

	TraceDir       string // OPENAI_AGENTS_TRACE_DIR, default "traces"
	DisableTracing bool   // OPENAI_AGENTS_DISABLE_TRACING, default false

	// DB holds the Trace Store's relational sink configuration
	DB db.Config

	Redis     RedisConfig
	Typesense TypesenseConfig
	OTel      otel.Config
}

// RedisConfig configures the Worker Gateway's fixed-window rate limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TypesenseConfig configures the Search Gateway's primary/secondary providers.
type TypesenseConfig struct {
	Host              string
	APIKey            string
	PrimaryCollection string
	SecondaryHost     string
	SecondaryAPIKey   string
	SecondaryCollection string
}

// Load loads configuration from environment variables, attempting to load a
// .env file first (ignored if absent, exactly as godotenv.Load() behaves
// when no file is found). It provides sensible defaults for development.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("RELAY_ENV", "development"),
		Port: getEnv("PORT", "8080"),

		MaxGenerations:   getEnvInt("OPENAI_AGENTS_MAX_GENERATIONS", 3),
		RoundsPerGen:     getEnvInt("OPENAI_AGENTS_ROUNDS_PER_GEN", 5),
		PairsPerRound:    getEnvInt("OPENAI_AGENTS_PAIRS_PER_ROUND", 0),
		InitialProposals: getEnvInt("OPENAI_AGENTS_INITIAL_PROPOSALS", 3),
		TopMEvolve:       getEnvInt("OPENAI_AGENTS_TOP_M_EVOLVE", 2),
		KFactor:          getEnvInt("OPENAI_AGENTS_K_FACTOR", 32),
		MaxInflight:      getEnvInt("OPENAI_AGENTS_MAX_INFLIGHT", 4),

		WorkerEndpoint: getEnv("OPENAI_AGENTS_WORKER_ENDPOINT", "https://api.openai.com/v1"),
		WorkerModel:    getEnv("OPENAI_AGENTS_WORKER_MODEL", "gpt-4o-mini"),
		WorkerAPIKey:   getEnv("OPENAI_API_KEY", ""),

		SearchEndpoint: getEnv("OPENAI_AGENTS_SEARCH_ENDPOINT", ""),

		TraceDir:       getEnv("OPENAI_AGENTS_TRACE_DIR", "traces"),
		DisableTracing: getEnvBool("OPENAI_AGENTS_DISABLE_TRACING", false),

		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Typesense: TypesenseConfig{
			Host:                getEnv("TYPESENSE_HOST", "http://localhost:8108"),
			APIKey:              getEnv("TYPESENSE_API_KEY", ""),
			PrimaryCollection:   getEnv("TYPESENSE_COLLECTION", "policy_docs"),
			SecondaryHost:       getEnv("TYPESENSE_SECONDARY_HOST", ""),
			SecondaryAPIKey:     getEnv("TYPESENSE_SECONDARY_API_KEY", ""),
			SecondaryCollection: getEnv("TYPESENSE_SECONDARY_COLLECTION", "policy_docs_regional"),
		},

		OTel: otel.Config{
			DisableTracing: getEnvBool("OPENAI_AGENTS_DISABLE_TRACING", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "policyaide-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
	}
}

// buildDSN constructs the database connection string from individual env vars.
func buildDSN() string {
	if dsn := getEnv("OPENAI_AGENTS_DB_DSN", ""); dsn != "" {
		return dsn
	}

	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "policyaide")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
