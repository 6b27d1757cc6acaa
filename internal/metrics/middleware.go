package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// UnmatchedRoute labels requests that matched no registered route
const UnmatchedRoute = "unmatched"

// GinMiddleware returns middleware that instruments HTTP requests. The route
// template is used as the path label so cardinality stays bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = UnmatchedRoute
		}
		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), duration)
	}
}
