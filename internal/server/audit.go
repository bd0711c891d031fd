package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/windimenu/windi/internal/audit/domain"
	"go.uber.org/zap"
)

// audit records an admin change. Failures are logged and never fail the
// request that already committed.
func (s *Server) audit(c *gin.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.AuditLog(c.Request.Context(), auditdomain.Entry{
		ActorID:    userIDFromContext(c),
		ActorRole:  c.GetString(contextUserRoleKey),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID.String(),
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// ExportAuditLogs
// GET /admin/audit-logs/export?start=2026-10-01&end=2026-10-07&format=csv
func (s *Server) ExportAuditLogs(c *gin.Context) {
	start, err := time.Parse(dateLayout, strings.TrimSpace(c.Query("start")))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(c.Query("end")))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	end = end.AddDate(0, 0, 1)
	if !start.Before(end) {
		AbortWithError(c, invalidRequestError())
		return
	}

	format := auditdomain.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv"))))
	var actions []string
	if raw := strings.TrimSpace(c.Query("actions")); raw != "" {
		actions = strings.Split(raw, ",")
	}

	result, err := s.auditExport.Export(c.Request.Context(), auditdomain.ExportRequest{
		StartDate: start,
		EndDate:   end,
		Format:    format,
		Actions:   actions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := "text/csv"
	if result.Format == auditdomain.ExportFormatJSON {
		contentType = "application/json"
	}
	filename := fmt.Sprintf("audit_logs_%s_%s.%s", start.Format(dateLayout), end.AddDate(0, 0, -1).Format(dateLayout), result.Format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Checksum-SHA256", result.Checksum)
	c.Header("X-Record-Count", fmt.Sprintf("%d", result.Count))
	c.Data(http.StatusOK, contentType, result.Data)
}
