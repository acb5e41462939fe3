package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/auth"
	"github.com/vovakirdan/wiremsg-server/internal/config"
	"github.com/vovakirdan/wiremsg-server/internal/core"
	"github.com/vovakirdan/wiremsg-server/internal/service/contacts"
	"github.com/vovakirdan/wiremsg-server/internal/service/groups"
	"github.com/vovakirdan/wiremsg-server/internal/service/messaging"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Auth      *auth.Service
	Contacts  *contacts.Service
	Groups    *groups.Service
	Messaging *messaging.Service
	Registry  *core.Registry

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewServer builds the HTTP server with REST, WebSocket and ops routes.
// Shutdown closes every live session so their write loops end with a normal closure.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	server.RegisterOnShutdown(func() {
		closed := closeSessions(svc.Registry)
		logger.Info().Int("sessions", closed).Msg("closed live sessions")
	})
	return server
}

// NewHandler mounts /ws next to the gin engine. The WebSocket upgrade hijacks the
// connection, which gin refuses once the handshake response is written.
func NewHandler(svc Services, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	wsHandler := NewWSHandler(svc.Registry, svc.Auth, WSOptions{
		QueueSize:    cfg.SendQueueSize,
		WriteTimeout: cfg.WriteTimeout,
		RequireToken: cfg.WSRequireToken,
	}, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", logSessions(logger, wsHandler))
	mux.Handle("/", NewRouter(svc, cfg, logger))
	return mux
}

// NewRouter builds the gin engine for everything except /ws.
func NewRouter(svc Services, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if cfg.MetricsEnabled && svc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := newUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)

	authHandlers := NewAuthHandlers(svc.Auth, logger)
	contactHandlers := NewContactHandlers(svc.Contacts, logger)
	messageHandlers := NewMessageHandlers(svc.Messaging, logger)
	groupHandlers := NewGroupHandlers(svc.Groups, svc.Messaging, logger)

	api := router.Group("/api")
	{
		public := api.Group("")
		public.Use(RateLimitMiddleware(limiter, clientIPKey))
		public.POST("/register", authHandlers.Register)
		public.POST("/login", authHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(svc.Auth, logger))
		protected.Use(RateLimitMiddleware(limiter, usernameKey))

		protected.GET("/contacts", contactHandlers.List)
		protected.POST("/contacts", contactHandlers.Add)
		protected.DELETE("/contacts/:contact", contactHandlers.Remove)

		protected.POST("/messages", messageHandlers.Send)
		protected.GET("/messages/:peer", messageHandlers.History)

		protected.POST("/groups", groupHandlers.Create)
		protected.GET("/groups", groupHandlers.List)
		protected.GET("/groups/:id/members", groupHandlers.Members)
		protected.POST("/groups/:id/members", groupHandlers.AddMember)
		protected.DELETE("/groups/:id/members/:username", groupHandlers.RemoveMember)
		protected.POST("/groups/:id/messages", groupHandlers.Send)
		protected.GET("/groups/:id/messages", groupHandlers.History)
	}

	return router
}

// closeSessions closes every registered connection and reports how many there were.
func closeSessions(registry *core.Registry) int {
	if registry == nil {
		return 0
	}
	conns := registry.Connections()
	for _, c := range conns {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	return len(conns)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
