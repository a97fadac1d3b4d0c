package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID between the portal frontend and the API.
// Clients may supply their own; anything missing or oversized is replaced.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware tags every request with a unique ID, echoed in the response
// header and picked up by the request logger and response metadata.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the ID assigned to the current request, or "" outside the
// middleware chain.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
