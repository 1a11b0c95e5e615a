package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"

	// PostgresTable is the table created by the embedded migrations.
	PostgresTable = "resumes"
)

// Config holds application configuration.
type Config struct {
	Env                 string        `validate:"oneof=dev local staging production"`
	Port                string        `validate:"required"`
	OpsPort             string
	StoreBackend        string        `validate:"oneof=memory dynamodb postgres"`
	TableName           string        `validate:"required_if=StoreBackend dynamodb"`
	AWSRegion           string
	DynamoDBEndpoint    string        `validate:"omitempty,url"`
	DatabaseURL         string        `validate:"required_if=StoreBackend postgres"`
	MaxPayloadBytes     int           `validate:"gt=0"`
	StoreTimeout        time.Duration `validate:"gt=0"`
	StoreMaxRetries     int           `validate:"gte=0,lte=2"`
	StoreRetryBaseDelay time.Duration `validate:"gte=0"`
	CORSAllowOrigin     []string
	LogLevel            string `validate:"oneof=debug info warn error"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("OPS_PORT", "9090")
	v.SetDefault("MAX_PAYLOAD_BYTES", 400*1024)
	v.SetDefault("STORE_TIMEOUT", 10*time.Second)
	v.SetDefault("STORE_MAX_RETRIES", 2)
	v.SetDefault("STORE_RETRY_BASE_DELAY", 50*time.Millisecond)
	v.SetDefault("LOG_LEVEL", "info")

	env := normalizeEnv(v.GetString("ENV"))
	cfg := Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		OpsPort:             v.GetString("OPS_PORT"),
		StoreBackend:        normalizeStoreBackend(v.GetString("STORE_BACKEND"), env),
		TableName:           strings.TrimSpace(v.GetString("TABLE_NAME")),
		AWSRegion:           strings.TrimSpace(v.GetString("AWS_REGION")),
		DynamoDBEndpoint:    strings.TrimSpace(v.GetString("DYNAMODB_ENDPOINT")),
		DatabaseURL:         strings.TrimSpace(v.GetString("DATABASE_URL")),
		MaxPayloadBytes:     v.GetInt("MAX_PAYLOAD_BYTES"),
		StoreTimeout:        v.GetDuration("STORE_TIMEOUT"),
		StoreMaxRetries:     v.GetInt("STORE_MAX_RETRIES"),
		StoreRetryBaseDelay: v.GetDuration("STORE_RETRY_BASE_DELAY"),
		CORSAllowOrigin:     splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}
	if cfg.StoreBackend == StorePostgres && cfg.TableName == "" {
		cfg.TableName = PostgresTable
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable for the selected store backend.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StoreBackend == StorePostgres && c.TableName != "" && c.TableName != PostgresTable {
		return fmt.Errorf("invalid config: postgres backend uses the migrated table %q, TABLE_NAME=%q is not supported", PostgresTable, c.TableName)
	}
	return nil
}

// IsDevLike reports whether the environment allows dev conveniences.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

// normalizeStoreBackend picks the record store. Outside dev the default is
// DynamoDB, which is what TABLE_NAME points at in a deployed stack.
func normalizeStoreBackend(raw, env string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dynamodb", "dynamo", "ddb":
		return StoreDynamoDB
	case "postgres", "pg":
		return StorePostgres
	case "memory", "mem":
		return StoreMemory
	}
	if env == "dev" || env == "local" {
		return StoreMemory
	}
	return StoreDynamoDB
}
