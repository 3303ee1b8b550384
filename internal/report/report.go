// Package report exports reservations and availability as xlsx workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"rentcal/internal/availability"
	"rentcal/internal/models"
	"rentcal/internal/pricing"
)

// ContentType is the MIME type of the produced workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Workbook is a sequential sheet writer over excelize.
type Workbook struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile()}
}

// AddSheet starts a new sheet and makes it current.
func (w *Workbook) AddSheet(name string) error {
	// Excel limit.
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes a bold header row.
func (w *Workbook) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

// WriteRow writes values into the next row.
func (w *Workbook) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// Save writes the workbook to wr.
func (w *Workbook) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// ReservationColumns heads every reservation sheet.
var ReservationColumns = []string{
	"ID", "User", "Start", "End", "Days", "Total", "Status", "Created",
}

// ReservationRow renders r in ReservationColumns order.
func ReservationRow(r models.Reservation) []any {
	return []any{
		r.ID,
		r.UserID,
		string(r.StartDate),
		string(r.EndDate),
		r.DayCount,
		pricing.FormatCents(r.TotalCents),
		r.Status,
		r.CreatedAt.Format("2006-01-02 15:04"),
	}
}

// WriteReservations exports a resource's reservations and, when blocked is
// non-nil, a per-date availability sheet.
func WriteReservations(
	wr io.Writer,
	resource *models.Resource,
	reservations []models.Reservation,
	blocked availability.BlockedDateMap,
) error {
	wb := NewWorkbook()
	defer wb.Close()

	if err := wb.AddSheet("Reservations"); err != nil {
		return err
	}
	if err := wb.WriteRow([]any{"Resource", resource.ID, resource.Name}); err != nil {
		return err
	}
	if err := wb.WriteHeader(ReservationColumns); err != nil {
		return err
	}
	for _, r := range reservations {
		if err := wb.WriteRow(ReservationRow(r)); err != nil {
			return fmt.Errorf("write reservation %s: %w", r.ID, err)
		}
	}

	if blocked != nil {
		if err := wb.AddSheet("Availability"); err != nil {
			return err
		}
		if err := wb.WriteHeader([]string{"Date", "Status", "Reason"}); err != nil {
			return err
		}
		for _, d := range blocked.Dates() {
			mark := blocked[d]
			status := "open"
			if mark.Blocked {
				status = "blocked"
			}
			row := []any{string(d), status}
			if mark.Reason != "" {
				row = append(row, string(mark.Reason))
			}
			if err := wb.WriteRow(row); err != nil {
				return err
			}
		}
	}

	return wb.Save(wr)
}
