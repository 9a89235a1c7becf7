package api

import (
    "net/http"
    "strings"

    "voiceapi/config"

    "github.com/gin-gonic/gin"
    "github.com/lithammer/shortuuid/v4"
)

func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
    return func(c *gin.Context) {
        if !cfg.AuthEnable {
            c.Next()
            return
        }

        authHeader := c.GetHeader("Authorization")
        if authHeader == "" {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
            return
        }

        parts := strings.Split(authHeader, " ")
        if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
            return
        }

        if parts[1] != cfg.AuthKey {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
            return
        }

        c.Next()
    }
}

// RequestIDMiddleware tags every request with a short id for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        id := c.GetHeader("X-Request-ID")
        if id == "" {
            id = shortuuid.New()
        }
        c.Set("requestID", id)
        c.Header("X-Request-ID", id)
        c.Next()
    }
}
