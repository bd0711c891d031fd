package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/audit/domain"
	"gorm.io/gorm"
)

type ExportService struct {
	db *gorm.DB
}

func NewExportService(db *gorm.DB) domain.ExportService {
	return &ExportService{db: db}
}

func (s *ExportService) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error) {
	if req.Format != domain.ExportFormatCSV && req.Format != domain.ExportFormatJSON {
		return nil, domain.ErrUnsupportedFormat
	}

	query := s.db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("created_at >= ? AND created_at < ?", req.StartDate, req.EndDate)
	if len(req.Actions) > 0 {
		query = query.Where("action IN ?", req.Actions)
	}
	var logs []domain.AuditLog
	if err := query.Order("created_at ASC").Order("id ASC").Find(&logs).Error; err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if req.Format == domain.ExportFormatCSV {
		data, err = formatCSV(logs)
	} else {
		data, err = formatJSON(logs)
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return &domain.ExportResult{
		Data:     data,
		Checksum: hex.EncodeToString(sum[:]),
		Format:   req.Format,
		Count:    len(logs),
	}, nil
}

var csvHeader = []string{
	"timestamp", "actor_id", "actor_role", "action",
	"target_type", "target_id", "ip_address", "user_agent", "metadata",
}

func formatCSV(logs []domain.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, l := range logs {
		metadata := ""
		if len(l.Metadata) > 0 {
			raw, err := json.Marshal(l.Metadata)
			if err != nil {
				return nil, err
			}
			metadata = string(raw)
		}
		if err := w.Write([]string{
			l.CreatedAt.UTC().Format(time.RFC3339),
			idString(l.ActorID),
			l.ActorRole,
			l.Action,
			l.TargetType,
			deref(l.TargetID),
			deref(l.IPAddress),
			deref(l.UserAgent),
			metadata,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type exportRecord struct {
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func formatJSON(logs []domain.AuditLog) ([]byte, error) {
	records := make([]exportRecord, 0, len(logs))
	for _, l := range logs {
		records = append(records, exportRecord{
			Timestamp:  l.CreatedAt.UTC().Format(time.RFC3339),
			ActorID:    idString(l.ActorID),
			ActorRole:  l.ActorRole,
			Action:     l.Action,
			TargetType: l.TargetType,
			TargetID:   deref(l.TargetID),
			IPAddress:  deref(l.IPAddress),
			UserAgent:  deref(l.UserAgent),
			Metadata:   l.Metadata,
		})
	}
	return json.MarshalIndent(records, "", "  ")
}

func idString(id *snowflake.ID) string {
	if id == nil || *id == 0 {
		return ""
	}
	return id.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
