package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithHeaders(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.100.4.2:51000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"Public X-Real-IP", map[string]string{"X-Real-IP": "41.158.12.9"}, "41.158.12.9"},
		{"First public forwarded hop", map[string]string{"X-Forwarded-For": "192.168.1.4, 41.158.12.9, 10.0.0.1"}, "41.158.12.9"},
		{"All hops private", map[string]string{"X-Forwarded-For": "192.168.1.4, 10.0.0.1"}, "192.168.1.4"},
		{"Private X-Real-IP falls through", map[string]string{"X-Real-IP": "10.0.0.9", "X-Forwarded-For": "41.158.12.9"}, "41.158.12.9"},
		{"No proxy headers", nil, "10.100.4.2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetRealIP(contextWithHeaders(tc.headers)))
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	assert.Equal(t, "Unknown", GetUserAgent(contextWithHeaders(nil)))
	assert.Equal(t, "curl/8.4.0", GetUserAgent(contextWithHeaders(map[string]string{"User-Agent": "curl/8.4.0"})))
}

func TestParseUserAgent(t *testing.T) {
	t.Run("Android phone", func(t *testing.T) {
		info := ParseUserAgent("Mozilla/5.0 (Linux; Android 13; SM-A546B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")
		assert.Equal(t, "mobile", info.DeviceType)
		assert.Equal(t, "android", info.Platform)
		assert.Equal(t, "Chrome", info.Browser)
		assert.False(t, info.IsBot)
	})

	t.Run("Provider callback client", func(t *testing.T) {
		info := ParseUserAgent("GuzzleHttp/7")
		assert.Equal(t, "server", info.DeviceType)
	})

	t.Run("Empty", func(t *testing.T) {
		info := ParseUserAgent("")
		assert.Equal(t, "unknown", info.DeviceType)
		assert.Equal(t, "unknown", info.Platform)
	})

	t.Run("Map form", func(t *testing.T) {
		m := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36").DeviceMap()
		assert.Equal(t, "desktop", m["device_type"])
		assert.Equal(t, "windows", m["platform"])
	})
}
