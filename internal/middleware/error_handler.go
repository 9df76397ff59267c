package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stockledger/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorHandler answers for errors a handler attached with c.Error without
// writing a response. Clients only ever see a generic message; the cause goes
// to the log with the request id.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		// The caller hung up; nobody is waiting for a body.
		if errors.Is(last.Err, context.Canceled) {
			log.Debug().Str("request_id", c.GetString(RequestIDKey)).Str("route", c.FullPath()).Msg("request cancelled by client")
			c.Abort()
			return
		}

		log.Error().
			Err(last.Err).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Msg("unhandled error")

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("internal server error"))
		}
	}
}

// Recovery turns a panic into a 500 and keeps the process alive.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error().
				Str("request_id", c.GetString(RequestIDKey)).
				Str("route", c.FullPath()).
				Interface("panic", r).
				Stack().
				Msg("panic recovered")
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("internal server error"))
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

// Logger writes one line per request. Health checks log at debug, server
// errors at error.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case c.FullPath() == "/health":
			level = zerolog.DebugLevel
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		}

		ev := log.WithLevel(level).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if actor := ActorFrom(c); actor != nil {
			ev = ev.Str("actor", *actor)
		}
		ev.Msg("request")
	}
}
