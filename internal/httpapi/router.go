// Package httpapi assembles the HTTP surface of the chat server.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/obs"
)

type Deps struct {
	Env         string
	CORSOrigins []string
	Middleware  obs.Middleware
	Health      obs.HealthHandlers
	// Gateway serves the WebSocket endpoint.
	Gateway http.Handler
	Hub     *chat.Hub
}

func NewRouter(d Deps) *gin.Engine {
	mode := configureGinMode(d.Env)
	if d.Middleware.Logger != nil {
		d.Middleware.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(d.Middleware.RequestID())
	router.Use(d.Middleware.AccessLog())
	router.Use(cors.New(corsConfig(d.CORSOrigins)))

	router.GET("/livez", d.Health.Livez)
	router.GET("/readyz", d.Health.Readyz)

	if d.Gateway != nil {
		router.GET("/ws", gin.WrapH(d.Gateway))
	}

	api := router.Group("/api/v1")
	if d.Hub != nil {
		presence := presenceHTTP{hub: d.Hub}
		api.GET("/online", presence.Online)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
