package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs one line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[INFO] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Errors turns the first handler error into an enveloped JSON response.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors[0].Err

		var ae Error
		switch {
		case errors.As(err, &ae):
			c.AbortWithStatusJSON(ae.StatusCode, Res{Error: ae.Message})
		case errors.Is(err, context.DeadlineExceeded):
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, Res{Error: ErrHistoryTimeout.Message})
		case errors.Is(err, context.Canceled):
			// client went away
			c.Abort()
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, Res{Error: err.Error()})
		}
	}
}
