package history

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

var exportHeaders = []string{"Timestamp", "Value", "Unit", "Alert"}

// SheetName returns the worksheet title used for a sensor in exports.
func SheetName(sensor models.SensorType) string {
	return sensor.Label()
}

// WriteXLSX writes the retained readings as a workbook with one sheet per
// sensor followed by a summary sheet.
func (b *Buffer) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	all := b.All()
	for i, sensor := range models.AllSensors {
		sheet := SheetName(sensor)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}

		if err := writeRow(f, sheet, 1, toAny(exportHeaders)); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", "D1", headerStyle); err != nil {
			return fmt.Errorf("set header style: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", "A", 22); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}

		for row, r := range all[sensor] {
			values := []any{r.Timestamp.UTC().Format(time.RFC3339), r.Value, sensor.Unit(), r.IsAlert}
			if err := writeRow(f, sheet, row+2, values); err != nil {
				return err
			}
		}
	}

	if err := b.writeSummarySheet(f, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (b *Buffer) writeSummarySheet(f *excelize.File, headerStyle int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := writeRow(f, sheet, 1, []any{"Sensor", "Average", "Max", "Alerts", "Readings"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	summaries := b.Summaries()
	for i, sensor := range models.AllSensors {
		s := summaries[sensor]
		values := []any{sensor.Label(), s.AverageText(), s.MaxText(), s.AlertCount, s.Count}
		if err := writeRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
