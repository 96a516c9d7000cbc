// Package export renders approval requests into spreadsheet reports.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

const (
	requestsSheet = "Requests"
	stepsSheet    = "Steps"
	timeLayout    = "2006-01-02 15:04:05"
)

var (
	requestHeaders = []string{
		"Request ID", "Entity Type", "Entity ID", "Amount", "Chain ID", "Status",
		"Requested By", "Submitted At", "Completed At", "Current Level", "Reason",
	}
	stepHeaders = []string{
		"Request ID", "Level", "Required Role", "Status", "Approver", "Comments", "Acted At",
	}
)

// XLSXExporter implements port.RequestExporter with excelize
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType implements port.RequestExporter
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension implements port.RequestExporter
func (e *XLSXExporter) FileExtension() string {
	return "xlsx"
}

// Export writes one row per request and one row per step
func (e *XLSXExporter) Export(w io.Writer, requests []*entity.ApprovalRequest) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", requestsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("create steps sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, requestsSheet, 1, toCells(requestHeaders), headerStyle); err != nil {
		return err
	}
	if err := writeRow(f, stepsSheet, 1, toCells(stepHeaders), headerStyle); err != nil {
		return err
	}

	stepRow := 2
	for i, req := range requests {
		if err := writeRow(f, requestsSheet, i+2, requestRow(req), 0); err != nil {
			return err
		}
		for _, step := range req.Steps {
			if err := writeRow(f, stepsSheet, stepRow, stepCells(req.ID, step), 0); err != nil {
				return err
			}
			stepRow++
		}
	}

	for _, sheet := range []string{requestsSheet, stepsSheet} {
		if err := f.SetColWidth(sheet, "A", "K", 18); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info("Requests exported",
		zap.Int("requests", len(requests)),
		zap.Int("steps", stepRow-2))
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	if style == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

func requestRow(req *entity.ApprovalRequest) []interface{} {
	currentLevel := ""
	if step := req.CurrentStep(); step != nil {
		currentLevel = strconv.Itoa(step.Level)
	}
	reason := req.RejectReason
	if reason == "" {
		reason = req.CancelReason
	}

	return []interface{}{
		req.ID,
		req.ApprovableType.String(),
		req.ApprovableID,
		req.Amount.String(),
		req.ChainID,
		string(req.Status),
		req.RequestedBy,
		req.SubmittedAt.Format(timeLayout),
		formatTime(req.CompletedAt),
		currentLevel,
		reason,
	}
}

func stepCells(requestID string, step *entity.ApprovalStep) []interface{} {
	return []interface{}{
		requestID,
		step.Level,
		step.RequiredRole.String(),
		string(step.Status),
		step.ApproverID,
		step.Comments,
		formatTime(step.ActedAt),
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

// Verify interface compliance
var _ port.RequestExporter = (*XLSXExporter)(nil)
