package http

import (
	"github.com/gin-gonic/gin"
)

const (
	callerIdHeader  = "schemaflow-caller-id"
	AuthTokenHeader = "schemaflow-auth-token"
)

// AuthMiddleware validates the caller headers on every route except the
// health check. Missing headers are a 400, a wrong token a 401.
func AuthMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == healthPath {
			c.Next()
			return
		}

		callerId := c.GetHeader(callerIdHeader)
		authToken := c.GetHeader(AuthTokenHeader)

		if callerId == "" {
			c.JSON(400, gin.H{"error": callerIdHeader + " header is missing"})
			c.Abort()
			return
		}
		if authToken == "" {
			c.JSON(400, gin.H{"error": AuthTokenHeader + " header is missing"})
			c.Abort()
			return
		}
		if expectedToken == "" || authToken != expectedToken {
			c.JSON(401, gin.H{"error": "Invalid auth token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
