package domain

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupportedFormat = errors.New("unsupported_export_format")

type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportRequest selects audit entries created in [StartDate, EndDate).
type ExportRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Format    ExportFormat
	// Actions optionally restricts the export to these action names.
	Actions []string
}

type ExportResult struct {
	Data     []byte
	Checksum string
	Format   ExportFormat
	Count    int
}

type ExportService interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}
