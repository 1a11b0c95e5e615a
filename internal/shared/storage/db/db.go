package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/spf13/viper"

	"resumes-api/internal/shared/telemetry"
)

// ErrUnavailable marks a database that could not be opened or reached. It is
// worth retrying; every other Connect error is a configuration problem.
var ErrUnavailable = errors.New("database unavailable")

// Profile selects pool defaults for the kind of process holding the pool.
type Profile string

const (
	ProfileServer  Profile = "server"
	ProfileLambda  Profile = "lambda"
	ProfileMigrate Profile = "migrate"
)

// PoolConfig sizes the connection pool of the record store.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

var defaults = map[Profile]PoolConfig{
	// A Lambda instance serves one request at a time.
	ProfileLambda:  {MaxOpen: 2, MaxIdle: 1, MaxLifetime: 15 * time.Minute, MaxIdleTime: 30 * time.Second, PingTimeout: 3 * time.Second},
	ProfileServer:  {MaxOpen: 10, MaxIdle: 5, MaxLifetime: time.Hour, MaxIdleTime: 2 * time.Minute, PingTimeout: 5 * time.Second},
	ProfileMigrate: {MaxOpen: 1, MaxIdle: 1, MaxLifetime: time.Hour, MaxIdleTime: 2 * time.Minute, PingTimeout: 5 * time.Second},
}

var openDB = sql.Open

// IsLambdaRuntime reports whether the current process is running in AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// PoolConfigFor returns the defaults of profile overridden by any DB_* env
// vars. Unparsable or non-positive overrides are ignored.
func PoolConfigFor(profile Profile) PoolConfig {
	cfg, ok := defaults[profile]
	if !ok {
		cfg = defaults[ProfileServer]
	}

	v := viper.New()
	v.AutomaticEnv()
	overrideInt(v, "DB_MAX_OPEN_CONNS", &cfg.MaxOpen)
	overrideInt(v, "DB_MAX_IDLE_CONNS", &cfg.MaxIdle)
	overrideDuration(v, "DB_CONN_MAX_LIFETIME", &cfg.MaxLifetime)
	overrideDuration(v, "DB_CONN_MAX_IDLE_TIME", &cfg.MaxIdleTime)
	overrideDuration(v, "DB_PING_TIMEOUT", &cfg.PingTimeout)
	return cfg
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if !v.IsSet(key) {
		return
	}
	if n := v.GetInt(key); n > 0 {
		*dst = n
		return
	}
	telemetry.Warn("db.env_invalid", map[string]any{"key": key, "value": v.GetString(key)})
}

func overrideDuration(v *viper.Viper, key string, dst *time.Duration) {
	if !v.IsSet(key) {
		return
	}
	if d := v.GetDuration(key); d > 0 {
		*dst = d
		return
	}
	telemetry.Warn("db.env_invalid", map[string]any{"key": key, "value": v.GetString(key)})
}

// Connect opens the record store database and pings it. Open and ping
// failures wrap ErrUnavailable.
func Connect(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	timeout := pool.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	telemetry.Info("db.connected", map[string]any{"max_open": pool.MaxOpen, "max_idle": pool.MaxIdle})
	return db, nil
}

var shared struct {
	mu sync.Mutex
	db *sql.DB
}

// Shared returns one pool per process so warm Lambda invocations reuse it.
// Nothing is cached on failure; the next call connects again.
func Shared(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.db != nil {
		return shared.db, nil
	}
	db, err := Connect(ctx, databaseURL, pool)
	if err != nil {
		return nil, err
	}
	shared.db = db
	return db, nil
}
