package middleware

import (
	"net/http"
	"time"

	"chatcore/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog logs one line per request.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Recovery turns a handler panic into a 500 with the CodeError body.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := errs.ErrPanic(r)
				log.Error("handler panic", zap.String("path", c.Request.URL.Path), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errs.ErrInternal)
			}
		}()
		c.Next()
	}
}
