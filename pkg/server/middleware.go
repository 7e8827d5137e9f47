package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/gin-gonic/gin"
)

func Healthcheck(context *gin.Context) {
	context.JSON(200, gin.H{"status": "ok"})
}

func GetClientIP(c *gin.Context) string {
	// first check the X-Forwarded-For header
	requester := c.Request.Header.Get("X-Forwarded-For")
	if len(requester) == 0 {
		requester = c.Request.Header.Get("X-Real-IP")
	}
	if len(requester) == 0 {
		requester = c.Request.RemoteAddr
	}

	// proxied twice (load balancer then nginx) gives a comma delimited list
	if strings.Contains(requester, ",") {
		requester = strings.TrimSpace(strings.Split(requester, ",")[0])
	}

	return requester
}

// ZeroLogMiddleware sends gin logs to our zerologger
func ZeroLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := fmt.Sprint(time.Since(start).Milliseconds())

		event := config.Log.ZInfo().
			Str("client_ip", GetClientIP(c)).
			Str("duration", duration).
			Str("method", c.Request.Method).
			Str("path", c.Request.RequestURI).
			Str("status", fmt.Sprint(c.Writer.Status())).
			Str("referrer", c.Request.Referer())

		if c.Writer.Status() >= 500 {
			event.Err(c.Errors.Last())
		}

		event.Send()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// TODO: restrict the origin once the explorer UI has a fixed hostname
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
