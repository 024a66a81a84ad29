package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/ws"
)

// wsHandler upgrades the request and streams write events. The optional
// events query parameter holds comma separated glob patterns such as
// "node.*,edge.created".
func wsHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, corsOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		patterns := splitPatterns(c.Query("events"))

		// CORS origins double as WebSocket origin patterns; config validation
		// rejects wildcards in them.
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       originHosts(corsOrigins),
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Error("websocket accept failed")

			return
		}

		client := ws.NewClient(hub, conn, patterns)
		hub.Register(client)

		// Cancel when either the server shuts down or the request ends.
		wsCtx, wsCancel := context.WithCancel(appCtx)
		go func() {
			select {
			case <-c.Request.Context().Done():
				wsCancel()
			case <-wsCtx.Done():
			}
		}()

		go client.WritePump(wsCtx)
		client.ReadPump(wsCtx)
		wsCancel()
	}
}

// originHosts strips the scheme from configured origins; coder/websocket
// matches origin patterns against the host only.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}

		out = append(out, o)
	}

	return out
}

func splitPatterns(s string) []string {
	var out []string

	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// maxPaginationLimit caps the maximum number of items per page.
const maxPaginationLimit = 1000

// maxPaginationOffset caps the maximum offset for paginated queries.
const maxPaginationOffset = 100000

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	return min(v, maxPaginationLimit)
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}

	return min(v, maxPaginationOffset)
}

// pathID reads a path parameter and rejects empty or oversized ids.
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)

	switch {
	case id == "":
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, name+" must not be empty")

		return "", false
	case len(id) > 255:
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, name+" exceeds maximum length of 255")

		return "", false
	}

	return id, true
}
