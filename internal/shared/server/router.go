package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumes-api/internal/resumes"
	"resumes-api/internal/services/health"
	"resumes-api/internal/shared/config"
	"resumes-api/internal/shared/metrics"
	"resumes-api/internal/shared/server/middleware"
	"resumes-api/internal/shared/server/respond"
)

// RouterDeps holds the handlers needed to build the API router.
type RouterDeps struct {
	Config        config.Config
	ResumeHandler *resumes.Handler
}

// NewRouter constructs the Gin engine serving the resume routes. Anything
// outside the route table is answered with RouteNotFound.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = true

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Metrics(),
		middleware.Recovery(),
	)
	if len(deps.Config.CORSAllowOrigin) > 0 {
		r.Use(middleware.CORS(deps.Config.CORSAllowOrigin))
	}

	deps.ResumeHandler.RegisterRoutes(r)

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, respond.KindRouteNotFound,
			fmt.Sprintf("no route for path %s", c.Request.URL.Path))
	})
	r.NoMethod(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, respond.KindRouteNotFound,
			fmt.Sprintf("method %s is not defined for path %s", c.Request.Method, c.Request.URL.Path))
	})

	return r
}

// NewOpsRouter serves health and metrics on a listener separate from the API.
func NewOpsRouter(healthSvc *health.Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		status := healthSvc.Check(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
