// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"originality-go/pkg/log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 批量比对请求的 multipart 体可能很大，不做请求体捕获。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		contentType := c.ContentType()

		fields := []interface{}{
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", clientIP,
			"method", method,
			"path", path,
		}
		if strings.HasPrefix(contentType, "multipart/") {
			fields = append(fields, "contentLength", c.Request.ContentLength)
		}

		log.Infow("HTTP Request Log", fields...)
	}
}
