package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func limitedRouter(t *testing.T, rate, burst int) *gin.Engine {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.Use(middleware.NewRateLimiter(ctx, rate, burst).Handler())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func hit(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)

	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	t.Parallel()

	r := limitedRouter(t, 10, 5)

	if w := hit(r, "1.2.3.4:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRateLimiter_BlocksExceedingLimit(t *testing.T) {
	t.Parallel()

	r := limitedRouter(t, 1, 2)

	for i := range 3 {
		w := hit(r, "1.2.3.4:1234")

		if i < 2 && w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}

		if i == 2 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("request %d: expected 429, got %d", i, w.Code)
			}

			if w.Header().Get("Retry-After") == "" {
				t.Error("expected a Retry-After header")
			}
		}
	}
}

func TestRateLimiter_IndependentBuckets(t *testing.T) {
	t.Parallel()

	r := limitedRouter(t, 1, 1)

	hit(r, "1.1.1.1:1000")

	if w := hit(r, "2.2.2.2:1000"); w.Code != http.StatusOK {
		t.Fatalf("different IP should not be rate limited, got %d", w.Code)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	t.Parallel()

	// At a billion tokens per second any elapsed time refills the bucket.
	r := limitedRouter(t, 1_000_000_000, 2)

	for range 2 {
		hit(r, "5.5.5.5:1000")
	}

	if w := hit(r, "5.5.5.5:1000"); w.Code != http.StatusOK {
		t.Fatalf("expected tokens to refill, got %d", w.Code)
	}
}
