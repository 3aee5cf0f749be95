package http

import (
	"github.com/gin-gonic/gin"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/handlers/decode"
)

// RegisterRoutes mounts the versioned API. The decode handler is
// resolved lazily so the router can be built before the model artifacts
// finish loading.
func RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/state/decode", func(c *gin.Context) {
			decode.InitV1().Decode(c)
		})
	}
}
