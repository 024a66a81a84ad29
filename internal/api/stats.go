package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsHandler serves per-operation performance statistics.
type StatsHandler struct {
	svc StatsService
	log *logrus.Logger
}

// NewStatsHandler creates a StatsHandler with the given dependencies.
func NewStatsHandler(svc StatsService, log *logrus.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, log: log}
}

// Operations handles GET /api/v1/stats/operations.
func (h *StatsHandler) Operations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.svc.Metrics()})
}

// Reset handles DELETE /api/v1/stats/operations.
func (h *StatsHandler) Reset(c *gin.Context) {
	h.svc.ResetMetrics()
	h.log.WithField("action", "stats.reset").Info("audit")

	c.Status(http.StatusNoContent)
}
