package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ethed-api/internal/service"
)

// RouterConfig agrupa las dependencias de infraestructura del router.
type RouterConfig struct {
	JWT      *service.JWTService
	Gatherer prometheus.Gatherer
	// Health devuelve error si alguna dependencia no responde.
	Health func(c *gin.Context) error
	// MetadataDir se sirve en /metadata cuando no está vacío (solo fuera de producción).
	MetadataDir string
	// InternalRoutes habilita la confirmación de transacciones del relayer.
	InternalRoutes bool
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	authH *AuthHandler,
	ensH *ENSHandler,
	credH *CredentialHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.MetadataDir != "" {
		r.Static("/metadata", cfg.MetadataDir)
	}

	auth := r.Group("/auth", jsonContentTypeMiddleware())
	auth.GET("/nonce", authH.Nonce)
	auth.POST("/verify", authH.Verify)
	auth.POST("/refresh", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)

	protected := r.Group("", jsonContentTypeMiddleware(), JWTAuthMiddleware(cfg.JWT))
	protected.GET("/ens/availability", ensH.Availability)
	protected.POST("/ens/register", ensH.Register)
	protected.GET("/credentials", credH.List)
	protected.POST("/credentials/founding", credH.IssueFounding)
	protected.POST("/credentials/courses/:courseId", credH.IssueCourse)

	if cfg.InternalRoutes {
		internal := r.Group("/internal", jsonContentTypeMiddleware())
		internal.POST("/credentials/:id/transaction", credH.ConfirmTransaction)
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
