package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderSessionID scopes handoff channels to one browser session.
const HeaderSessionID = "X-Session-Id"

func SessionID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderSessionID))
}

// LimitBody caps request bodies; oversized JSON fails to bind.
func LimitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
