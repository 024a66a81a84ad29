// Package api provides HTTP handlers for graphrouter.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db         HealthChecker
	clients    func() int
	log        *logrus.Logger
	httpClient *http.Client
	version    string
	startTime  time.Time
	ollamaURL  string
}

// NewHealthHandler creates a HealthHandler. clients reports the connected
// WebSocket count and may be nil. An empty ollamaURL skips the LLM check.
func NewHealthHandler(db HealthChecker, clients func() int, log *logrus.Logger, version, ollamaURL string) *HealthHandler {
	if clients == nil {
		clients = func() int { return 0 }
	}

	return &HealthHandler{
		db:         db,
		clients:    clients,
		log:        log,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		version:    version,
		startTime:  time.Now(),
		ollamaURL:  ollamaURL,
	}
}

// healthResponse is the JSON payload returned by the liveness endpoint.
type healthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Backend          string  `json:"backend"`
	WebSocketClients int     `json:"websocket_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Detail any               `json:"detail,omitempty"`
}

// Liveness handles GET /api/v1/health. It never touches the backend.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:           "ok",
		Version:          h.version,
		Backend:          "not_configured",
		WebSocketClients: h.clients(),
		UptimeSeconds:    time.Since(h.startTime).Seconds(),
	}

	if h.db != nil {
		resp.Backend = h.db.Name()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready. The backend must answer a ping through
// the pool; a failing LLM provider only degrades readiness.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{
		"backend": "ok",
		"llm":     "ok",
	}
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var detail any

	if h.db == nil {
		checks["backend"] = "not_configured"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else {
		health := h.db.Health(ctx)
		detail = health

		if !health.Connected {
			h.log.WithField("error", health.Error).Error("readiness: backend check failed")
			checks["backend"] = "error"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
	}

	switch err := h.checkOllama(ctx); {
	case h.ollamaURL == "":
		checks["llm"] = "disabled"
	case err != nil:
		h.log.WithError(err).Warn("readiness: ollama check failed")
		checks["llm"] = "degraded"
	}

	c.JSON(statusCode, readinessResponse{Status: status, Checks: checks, Detail: detail})
}

// checkOllama does a best-effort connectivity check to the Ollama API.
func (h *HealthHandler) checkOllama(ctx context.Context) error {
	if h.ollamaURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.ollamaURL+"/api/version", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	return nil
}
