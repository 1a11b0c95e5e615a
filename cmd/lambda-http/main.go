package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"resumes-api/internal/bootstrap"
	"resumes-api/internal/resumes"
	"resumes-api/internal/shared/config"
	"resumes-api/internal/shared/server/respond"
	"resumes-api/internal/shared/telemetry"
)

// buildRouter is replaced in tests.
var buildRouter = func(ctx context.Context) (*gin.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logger, err := telemetry.New(cfg.LogLevel); err == nil {
		telemetry.SetLogger(logger)
	}
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app.Router, nil
}

// adapter is built on the first invocation that succeeds; a failed build is
// attempted again by the next invocation.
var adapter struct {
	mu  sync.Mutex
	gin *ginadapter.GinLambda
}

func proxy(ctx context.Context) (*ginadapter.GinLambda, error) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.gin != nil {
		return adapter.gin, nil
	}
	router, err := buildRouter(ctx)
	if err != nil {
		return nil, err
	}
	adapter.gin = ginadapter.New(router)
	return adapter.gin, nil
}

// handler serves API Gateway REST API proxy events.
func handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	defer telemetry.Sync()

	p, err := proxy(ctx)
	if err != nil {
		telemetry.Error("bootstrap.failed", map[string]any{"error": err.Error()})
		if errors.Is(err, resumes.ErrStoreUnavailable) {
			return errorResponse(http.StatusServiceUnavailable, respond.KindStoreUnavailable, "record store unavailable, retry later"), nil
		}
		return errorResponse(http.StatusInternalServerError, respond.KindInternal, "service is not initialized"), nil
	}
	return p.ProxyWithContext(ctx, req)
}

func errorResponse(status int, kind, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(respond.ErrorResponse{Error: kind, Message: message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start(handler)
}
