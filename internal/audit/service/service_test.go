package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/windimenu/windi/internal/audit/domain"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/pkg/db/dbtest"
	"go.uber.org/zap"
)

func TestAuditLogAndExport(t *testing.T) {
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	at := time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC)
	svc := NewService(Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: clock.Fixed(at)})
	admin := snowflake.ID(77)

	require.NoError(t, svc.AuditLog(ctx, domain.Entry{
		ActorID:    &admin,
		ActorRole:  "admin",
		Action:     "affiliate_sale.approve",
		TargetType: "affiliate_sale",
		TargetID:   "501",
		Metadata:   map[string]any{"note": "ok, checked"},
	}))
	require.NoError(t, svc.AuditLog(ctx, domain.Entry{
		ActorID:    &admin,
		ActorRole:  "ADMIN",
		Action:     "plan.create",
		TargetType: "plan",
		TargetID:   "9",
	}))
	assert.Error(t, svc.AuditLog(ctx, domain.Entry{Action: " "}))

	exporter := NewExportService(conn)
	window := domain.ExportRequest{StartDate: at.Add(-time.Hour), EndDate: at.Add(time.Hour)}

	t.Run("csv", func(t *testing.T) {
		req := window
		req.Format = domain.ExportFormatCSV
		res, err := exporter.Export(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
		assert.Len(t, res.Checksum, 64)

		rows, err := csv.NewReader(strings.NewReader(string(res.Data))).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, csvHeader, rows[0])
		assert.Equal(t, "77", rows[1][1])
		assert.Equal(t, "ADMIN", rows[1][2])
		assert.JSONEq(t, `{"note":"ok, checked"}`, rows[1][8])
	})

	t.Run("json filtered by action", func(t *testing.T) {
		req := window
		req.Format = domain.ExportFormatJSON
		req.Actions = []string{"plan.create"}
		res, err := exporter.Export(ctx, req)
		require.NoError(t, err)
		require.Equal(t, 1, res.Count)

		var records []exportRecord
		require.NoError(t, json.Unmarshal(res.Data, &records))
		require.Len(t, records, 1)
		assert.Equal(t, "9", records[0].TargetID)
		assert.Equal(t, "2026-10-05T09:30:00Z", records[0].Timestamp)
	})

	t.Run("outside window", func(t *testing.T) {
		res, err := exporter.Export(ctx, domain.ExportRequest{
			StartDate: at.Add(time.Hour),
			EndDate:   at.Add(2 * time.Hour),
			Format:    domain.ExportFormatJSON,
		})
		require.NoError(t, err)
		assert.Zero(t, res.Count)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := exporter.Export(ctx, domain.ExportRequest{StartDate: window.StartDate, EndDate: window.EndDate, Format: "xml"})
		assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	})
}
