package httpapi

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	serviceCallSheet = "Service Calls"
	ledgerSheet      = "Alarm Ledger"
)

// ServiceCallExportHeader columns of the service call sheet
var ServiceCallExportHeader = []string{"ID", "Timestamp", "Wristbands", "Text", "Status", "Ack By", "Ack Time", "Source", "Port"}

// LedgerExportHeader columns of the ledger sheet
var LedgerExportHeader = []string{"Alarm", "Status", "First Seen", "Acknowledged By", "Acknowledged At", "Cleared By", "Cleared At", "Flashed Red", "Flashed Green"}

// GenerateServiceCallExport builds an xlsx with the displayed calls and the full ledger
func GenerateServiceCallExport(records []models.ServiceCallRecord, entries []models.LedgerEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	callRows := make([][]any, 0, len(records))
	for _, r := range records {
		callRows = append(callRows, []any{
			r.ID,
			extractor.FormatTimestamp(r.Timestamp),
			strings.Join(r.AffectedIdentifiers, ", "),
			r.Text,
			string(r.Status),
			r.AckBy,
			r.AckTime,
			string(r.Source),
			portCell(r.Port),
		})
	}

	ledgerRows := make([][]any, 0, len(entries))
	for _, e := range entries {
		ledgerRows = append(ledgerRows, []any{
			e.ID,
			string(e.Status),
			timeCell(&e.FirstSeen),
			e.AcknowledgedBy,
			timeCell(e.AcknowledgedAt),
			e.ClearedBy,
			timeCell(e.ClearedAt),
			yesNo(e.HasFlashedRed),
			yesNo(e.HasFlashedGreen),
		})
	}

	if err := writeSheet(f, serviceCallSheet, ServiceCallExportHeader, callRows, headerStyle); err != nil {
		return nil, err
	}
	if err := writeSheet(f, ledgerSheet, LedgerExportHeader, ledgerRows, headerStyle); err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(serviceCallSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(sheet, name, name, 20); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func timeCell(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func portCell(p int) any {
	if p == 0 {
		return ""
	}
	return p
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
