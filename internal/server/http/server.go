package http

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config"
)

const healthPath = "/health/self"

var (
	router *gin.Engine
	once   sync.Once
)

// Init assembles the router with recovery, request logging and header
// auth, and mounts the API routes.
func Init() {
	once.Do(func() {
		cfg := config.Instance().Config
		router = newRouter(cfg.ApplicationEnv, cfg.AuthToken)
	})
}

func newRouter(env, authToken string) *gin.Engine {
	if env == "prod" || env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(AuthMiddleware(authToken))

	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "true"})
	})

	RegisterRoutes(r)
	return r
}

// Instance returns the router. Init must have run first.
func Instance() *gin.Engine {
	if router == nil {
		log.Fatal().Msg("Router not initialized")
	}
	return router
}

// Run serves on the configured port and blocks.
func Run() error {
	port := config.Instance().Config.ApplicationPort
	log.Info().Msgf("HTTP server listening on :%d", port)
	return Instance().Run(fmt.Sprintf(":%d", port))
}
