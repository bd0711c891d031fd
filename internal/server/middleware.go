package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Identity headers are set by the authenticating proxy in front of the
// service.
const (
	headerBusinessID = "X-Business-ID"
	headerUserID     = "X-User-ID"
	headerUserRole   = "X-User-Role"

	contextBusinessIDKey = "business_id"
	contextUserIDKey     = "user_id"
	contextUserRoleKey   = "user_role"
)

// Identity reads the caller headers into the gin context. Malformed ids
// are rejected, absent ones are left unset.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := strings.TrimSpace(c.GetHeader(headerBusinessID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil || id <= 0 {
				AbortWithError(c, invalidRequestError())
				return
			}
			c.Set(contextBusinessIDKey, id)
		}
		if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil || id <= 0 {
				AbortWithError(c, invalidRequestError())
				return
			}
			c.Set(contextUserIDKey, id)
		}
		if role := strings.ToUpper(strings.TrimSpace(c.GetHeader(headerUserRole))); role != "" {
			c.Set(contextUserRoleKey, role)
		}
		c.Next()
	}
}

func (s *Server) BusinessRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := businessIDFromContext(c); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// Authorize checks the caller role against the casbin policies.
func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(contextUserRoleKey)
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authz == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		ok, err := s.authz.Allowed(role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			s.log.Error("request failed", fields...)
		case status >= 400:
			s.log.Warn("request rejected", fields...)
		default:
			s.log.Debug("request", fields...)
		}
	}
}

func businessIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextBusinessIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok
}

func userIDFromContext(c *gin.Context) *snowflake.ID {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(snowflake.ID)
	if !ok {
		return nil
	}
	return &id
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, invalidRequestError()
	}
	return id, nil
}
