package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(rate string) *gin.Engine {
	router := setupTestRouter()
	factory := NewRateLimiterFactory(nil, testLogger())
	router.POST("/bookings", factory.New(rate, "create_booking"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func post(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/bookings", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	t.Run("Blocks after the limit per client", func(t *testing.T) {
		router := limitedRouter("2-M")

		assert.Equal(t, http.StatusCreated, post(router, "41.158.10.1").Code)
		assert.Equal(t, http.StatusCreated, post(router, "41.158.10.1").Code)

		w := post(router, "41.158.10.1")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

		// other clients have their own budget
		assert.Equal(t, http.StatusCreated, post(router, "41.158.10.2").Code)
	})

	t.Run("Bad rate disables limiting", func(t *testing.T) {
		router := limitedRouter("lots")
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusCreated, post(router, "41.158.10.1").Code)
		}
	})
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestID(), RequestLogger(testLogger()))
	router.GET("/ping", func(c *gin.Context) {
		meta := RequestMeta(c)
		c.String(http.StatusOK, meta.CorrelationID)
	})

	t.Run("Generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
		assert.Len(t, w.Body.String(), 36)
		assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("Propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set(RequestIDHeader, "ebilling-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "ebilling-42", w.Body.String())
	})
}
