package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(New(allowed))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAllowsConfiguredOrigin(t *testing.T) {
	rec := serve(t, []string{"https://portal.college.edu/"}, http.MethodGet, "https://Portal.College.edu")

	assert.Equal(t, "https://Portal.College.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestRejectsUnknownOrigin(t *testing.T) {
	rec := serve(t, []string{"https://portal.college.edu"}, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEmptyListAllowsAnyOrigin(t *testing.T) {
	rec := serve(t, nil, http.MethodGet, "https://anywhere.example.com")
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	rec := serve(t, nil, http.MethodOptions, "https://portal.college.edu")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Request-ID")
}
