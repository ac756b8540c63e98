package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y las rutas de identidad.
func NewRouter(logger *zap.Logger, identityH *IdentityHandler) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/identity", identityH.GetIdentity)
	r.GET("/notifications", identityH.DrainNotifications)

	auth := r.Group("/auth")
	auth.POST("/login", identityH.Login)
	auth.POST("/signup", identityH.Signup)
	auth.POST("/logout", identityH.Logout)
	auth.POST("/oauth", identityH.LoginWithOAuth)
	auth.POST("/password/reset", identityH.ResetPassword)
	auth.POST("/password/update", RequireAuthenticated(identityH.manager), identityH.UpdatePassword)
	auth.DELETE("/error", identityH.ClearError)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
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
