package monitor

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"time"

	"innovation-review-api/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RegisterRoutes mounts /health, /metrics and the token-protected /logs.
// logsToken empty disables /logs.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, logsToken string) {
	router.GET("/health", healthHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if logsToken != "" {
		router.GET("/logs", logsHandler(logsToken))
	}
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if db == nil {
			c.JSON(http.StatusOK, status)
			return
		}

		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
		c.JSON(http.StatusOK, status)
	}
}

func logsHandler(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		logData, err := os.ReadFile(config.LogFilePath())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read log"})
			return
		}

		c.Data(http.StatusOK, "text/plain; charset=utf-8", logData)
	}
}
