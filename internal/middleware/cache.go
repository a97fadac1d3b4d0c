package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/pkg/middleware/requestid"
)

const metaContextKey = "response_meta"

// Keys surfaced in the response meta block. Catalog listings report whether
// they were served from the Redis cache.
const (
	MetaKeyCacheHit  = "cache_hit"
	MetaKeyLatencyMS = "processing_time_ms"
	MetaKeyRequestID = "request_id"
)

// WithResponseMeta seeds a per-request meta map that handlers enrich and the
// response envelope serialises. Latency and the request ID are filled in
// after the handler chain runs, unless a handler already set them.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(metaContextKey, map[string]interface{}{})

		c.Next()

		meta := ensureMeta(c)
		if _, exists := meta[MetaKeyLatencyMS]; !exists {
			meta[MetaKeyLatencyMS] = time.Since(start).Milliseconds()
		}
		if _, exists := meta[MetaKeyRequestID]; !exists {
			if reqID := requestid.Value(c); reqID != "" {
				meta[MetaKeyRequestID] = reqID
			}
		}
	}
}

// SetCacheHit records whether the catalog listing came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[MetaKeyCacheHit] = hit
}

// ExtractMeta returns the meta map for the current request, or nil when
// WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(metaContextKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if typed := ExtractMeta(c); typed != nil {
		return typed
	}
	meta := make(map[string]interface{})
	c.Set(metaContextKey, meta)
	return meta
}
