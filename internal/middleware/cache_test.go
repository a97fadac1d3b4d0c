package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutech/college-api/pkg/middleware/requestid"
)

func TestResponseMetaCollectsCacheHitLatencyAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var meta map[string]interface{}
	engine := gin.New()
	engine.Use(requestid.Middleware(), WithResponseMeta())
	engine.GET("/courses", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set(requestid.Header, "req-42")
	engine.ServeHTTP(rec, req)

	require.NotNil(t, meta)
	assert.Equal(t, true, meta[MetaKeyCacheHit])
	assert.Equal(t, "req-42", meta[MetaKeyRequestID])
	assert.Contains(t, meta, MetaKeyLatencyMS)
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, false)
	require.NotNil(t, ExtractMeta(c))
	assert.Equal(t, false, ExtractMeta(c)[MetaKeyCacheHit])
}
