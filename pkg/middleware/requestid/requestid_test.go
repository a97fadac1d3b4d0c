package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithHeader(t *testing.T, incoming string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen string
	engine := gin.New()
	engine.Use(Middleware())
	engine.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(Header, incoming)
	}
	engine.ServeHTTP(rec, req)

	return seen, rec.Header().Get(Header)
}

func TestMiddlewareEchoesClientID(t *testing.T) {
	seen, echoed := serveWithHeader(t, "portal-7f3a")
	assert.Equal(t, "portal-7f3a", seen)
	assert.Equal(t, "portal-7f3a", echoed)
}

func TestMiddlewareMintsIDWhenMissing(t *testing.T) {
	seen, echoed := serveWithHeader(t, "")
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, echoed)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	seen, _ := serveWithHeader(t, strings.Repeat("x", 65))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestValueOutsideMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", Value(c))
}
