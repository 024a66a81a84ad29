package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/middleware"
	"github.com/persistorai/graphrouter/internal/service"
	"github.com/persistorai/graphrouter/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	DB          *service.Database
	Hub         *ws.Hub
	Reasoner    Reasoner // nil when no LLM is configured
	CORSOrigins []string
	Version     string
	OllamaURL   string
}

// Router-level limits.
const (
	maxBodySize = 10 << 20 // 10 MB
	rateLimit   = 100      // requests per second per IP
	rateBurst   = 200      // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.AccessLog(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.PrometheusMiddleware("/metrics"))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	var clients func() int
	if deps.Hub != nil {
		clients = deps.Hub.ClientCount
	}

	health := NewHealthHandler(deps.DB, clients, log, deps.Version, deps.OllamaURL)
	nodes := NewNodeHandler(deps.DB, log)
	edges := NewEdgeHandler(deps.DB, log)
	batch := NewBatchHandler(deps.DB, log)
	queries := NewQueryHandler(deps.DB, log)
	txns := NewTransactionHandler(deps.DB, log)
	onto := NewOntologyHandler(deps.DB, log)
	stats := NewStatsHandler(deps.DB, log)
	reason := NewReasonHandler(deps.Reasoner, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	api.GET("/nodes", nodes.List)
	api.POST("/nodes", nodes.Create)
	api.GET("/nodes/:id", nodes.Get)
	api.PATCH("/nodes/:id", nodes.Update)
	api.DELETE("/nodes/:id", nodes.Delete)
	api.GET("/nodes/:id/edges", edges.ListForNode)

	api.POST("/edges", edges.Create)
	api.GET("/edges/:id", edges.Get)
	api.PATCH("/edges/:id", edges.Update)
	api.DELETE("/edges/:id", edges.Delete)

	api.POST("/batch/nodes", batch.Nodes)
	api.POST("/batch/edges", batch.Edges)

	api.POST("/query", queries.Execute)
	api.POST("/transactions", txns.Execute)

	api.GET("/ontology", onto.Get)
	api.POST("/ontology", onto.Register)

	api.GET("/stats/operations", stats.Operations)
	api.DELETE("/stats/operations", stats.Reset)

	api.POST("/reason", reason.Reason)

	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
