package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/n42group/mailmerge/docs"
	"github.com/n42group/mailmerge/internal/auth"
	"github.com/n42group/mailmerge/internal/config"
	"github.com/n42group/mailmerge/internal/handlers"
	"github.com/n42group/mailmerge/internal/helpers"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/middleware"
	"github.com/n42group/mailmerge/internal/queue"
	"github.com/n42group/mailmerge/internal/sendlog"
)

// Dependencies are the process-wide resources the handlers need.
type Dependencies struct {
	Config     *config.Config
	Transports handlers.TransportFactory
	Queue      *queue.Publisher
	SendLog    sendlog.Store
}

// Handler Definitions
var (
	cfg           *config.Config
	authenticator auth.Authenticator
	sendHandler   *handlers.SendHandler
	healthHandler *handlers.HealthHandler
	rateLimiter   *middleware.RateLimiter
)

func InitializeHandlers(deps Dependencies) {
	cfg = deps.Config
	authenticator = auth.Authenticator{
		SendToken:     cfg.SendToken,
		PanelPassword: cfg.PanelPassword,
	}

	var opts []handlers.SendHandlerOption
	if deps.Queue != nil {
		opts = append(opts, handlers.WithQueue(deps.Queue))
	}
	if deps.SendLog != nil {
		opts = append(opts, handlers.WithSendLog(deps.SendLog))
	}
	sendHandler = handlers.NewSendHandler(cfg, deps.Transports, opts...)
	healthHandler = handlers.NewHealthHandler()

	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	if cfg.SendToken == "" && cfg.PanelPassword == "" {
		logger.Warn("Neither SEND_TOKEN nor PANEL_PASSWORD is set; send requests will fail")
	}
	logger.Info("Handlers initialized",
		zap.String("stage", cfg.Stage),
		zap.String("provider", cfg.MailProvider),
		zap.Bool("async", deps.Queue != nil),
		zap.Bool("send_log", deps.SendLog != nil))
}

// InitializeRoutes registers middleware and routes. InitializeHandlers must run first.
func InitializeRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(handlers.MethodNotAllowed)
	router.NoRoute(handlers.NotFound)

	router.Use(configureCORS(cfg.CORS))
	router.Use(middleware.CorrelationIDMiddleware())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", healthHandler.Health)
	// Raw Lambda function URLs keep the stage prefix.
	router.GET("/:stage/health", healthHandler.Health)

	api := router.Group("/api")
	api.Use(
		rateLimiter.Middleware(),
		middleware.RequestLoggingMiddleware(),
		middleware.EnhancedLoggingMiddleware(cfg.Stage != helpers.StageProd),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)
	{
		api.POST("/send", auth.RequireSendAuth(authenticator), sendHandler.Send)
		api.POST("/panel-send",
			auth.RequirePanelPassword(authenticator),
			auth.InjectSendToken(cfg.SendToken),
			auth.RequireSendAuth(authenticator),
			sendHandler.PanelSend,
		)
	}
}

// NewRouter builds a fully wired engine.
func NewRouter(deps Dependencies) *gin.Engine {
	InitializeHandlers(deps)
	router := gin.New()
	router.Use(gin.Recovery())
	InitializeRoutes(router)
	return router
}

func configureCORS(c config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	switch {
	case len(c.AllowedOrigins) == 0:
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	case len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*":
		corsConfig.AllowAllOrigins = true
	default:
		corsConfig.AllowOrigins = c.AllowedOrigins
	}
	if len(c.AllowedMethods) > 0 {
		corsConfig.AllowMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		corsConfig.AllowHeaders = c.AllowedHeaders
	}
	corsConfig.ExposeHeaders = c.ExposedHeaders
	corsConfig.AllowCredentials = c.AllowCredentials && !corsConfig.AllowAllOrigins

	return cors.New(corsConfig)
}
