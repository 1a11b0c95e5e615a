package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"resumes-api/internal/resumes"
	"resumes-api/internal/services/health"
	"resumes-api/internal/shared/config"
	"resumes-api/internal/shared/server"
	"resumes-api/internal/shared/storage/db"
	"resumes-api/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	Store         resumes.Store
	ResumeService *resumes.Service
	ResumeHandler *resumes.Handler
	Health        *health.Service
}

// Build connects the configured record store and wires the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = config.StoreMemory
	}

	var sqlDB *sql.DB
	store, err := buildStore(ctx, cfg, &sqlDB)
	if err != nil {
		return nil, err
	}

	app := BuildWithStore(cfg, store)
	app.DB = sqlDB

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":           cfg.Env,
		"store_backend": cfg.StoreBackend,
		"table":         cfg.TableName,
	})
	return app, nil
}

// BuildWithStore wires the service, handler and router around an existing store.
func BuildWithStore(cfg config.Config, store resumes.Store) *App {
	svc := resumes.NewService(store)
	svc.Retry = resumes.RetryPolicy{
		MaxRetries: cfg.StoreMaxRetries,
		BaseDelay:  cfg.StoreRetryBaseDelay,
	}
	handler := resumes.NewHandler(svc, cfg.MaxPayloadBytes, cfg.StoreTimeout)

	var pinger resumes.Pinger
	if p, ok := store.(resumes.Pinger); ok {
		pinger = p
	}

	return &App{
		Config:        cfg,
		Store:         store,
		ResumeService: svc,
		ResumeHandler: handler,
		Health:        health.NewService(pinger, cfg.StoreBackend),
		Router: server.NewRouter(server.RouterDeps{
			Config:        cfg,
			ResumeHandler: handler,
		}),
	}
}

func buildStore(ctx context.Context, cfg config.Config, sqlDB **sql.DB) (resumes.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return resumes.NewMemoryStore(), nil
	case config.StoreDynamoDB:
		client, err := resumes.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return resumes.NewDynamoStore(client, cfg.TableName)
	case config.StorePostgres:
		conn, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		*sqlDB = conn
		return resumes.NewPGStore(conn, cfg.TableName), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// connectDB opens the postgres pool. An unreachable database is reported as
// resumes.ErrStoreUnavailable so callers can answer and retry accordingly.
func connectDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	if db.IsLambdaRuntime() {
		conn, err = db.Shared(ctx, databaseURL, db.PoolConfigFor(db.ProfileLambda))
	} else {
		conn, err = db.Connect(ctx, databaseURL, db.PoolConfigFor(db.ProfileServer))
	}
	if errors.Is(err, db.ErrUnavailable) {
		return nil, fmt.Errorf("%w: %w", resumes.ErrStoreUnavailable, err)
	}
	return conn, err
}
