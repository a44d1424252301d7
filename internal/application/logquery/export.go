package logquery

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mutugading/logquery/internal/domain/logrecord"
	"github.com/mutugading/logquery/pkg/circuitbreaker"
)

// DefaultExportMaxRows bounds an export when no limit is configured.
const DefaultExportMaxRows = 10000

const exportSheet = "Logs"

// ExportResult is a generated spreadsheet.
type ExportResult struct {
	FileContent []byte
	FileName    string
	Rows        int
	Truncated   bool
}

// ExportHandler writes the records matching a filter to an xlsx workbook.
type ExportHandler struct {
	repo    logrecord.Repository
	maxRows int
	breaker *circuitbreaker.CircuitBreaker
}

// NewExportHandler creates a new ExportHandler. A nil breaker leaves storage
// reads unguarded; pass the Service's breaker to share its state.
func NewExportHandler(repo logrecord.Repository, maxRows int, breaker *circuitbreaker.CircuitBreaker) *ExportHandler {
	if maxRows < 1 {
		maxRows = DefaultExportMaxRows
	}
	return &ExportHandler{repo: repo, maxRows: maxRows, breaker: breaker}
}

// Handle exports up to maxRows records matching filter, oldest first.
func (h *ExportHandler) Handle(ctx context.Context, filter logrecord.Filter) (*ExportResult, error) {
	// One extra row tells us whether the export was cut short.
	var logs []*logrecord.Log
	err := guardStorage(ctx, h.breaker, "export", func(ctx context.Context) error {
		found, err := h.repo.Find(ctx, filter, logrecord.PageRequest{
			Page:      1,
			Limit:     h.maxRows + 1,
			SortOrder: logrecord.SortAscending,
		})
		logs = found
		return err
	})
	if err != nil {
		return nil, err
	}

	truncated := len(logs) > h.maxRows
	if truncated {
		logs = logs[:h.maxRows]
	}

	content, err := writeWorkbook(logs)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		FileContent: content,
		FileName:    "logs_export.xlsx",
		Rows:        len(logs),
		Truncated:   truncated,
	}, nil
}

func writeWorkbook(logs []*logrecord.Log) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"No", "ID", "Type", "Level", "Message", "Created At", "Updated At"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(exportSheet, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(exportSheet, "A1", "G1", headerStyle)

	for i, l := range logs {
		row := i + 2
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("A%d", row), i+1)
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("B%d", row), l.ID().String())
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), l.Type())
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("D%d", row), l.Level())
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("E%d", row), l.Message())
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("F%d", row), l.CreatedAt().UTC().Format(time.RFC3339))
		_ = f.SetCellValue(exportSheet, fmt.Sprintf("G%d", row), l.UpdatedAt().UTC().Format(time.RFC3339))
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", "B", 38)
	_ = f.SetColWidth(exportSheet, "C", "D", 12)
	_ = f.SetColWidth(exportSheet, "E", "E", 60)
	_ = f.SetColWidth(exportSheet, "F", "G", 22)

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel to buffer: %w", err)
	}
	return buffer.Bytes(), nil
}
