package api

import (
	"fmt"
	"net/http"
	"time"

	"carshine/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "Bookings"

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, to, ok := dateRangeParams(w, r)
	if !ok {
		return
	}

	bookings, err := s.deps.Bookings.GetAllBookings(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	f, err := bookingsWorkbook(bookings, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build export")
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("bookings_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		// Заголовки уже ушли, остается только залогировать.
		writeError(w, http.StatusInternalServerError, "could not write export")
	}
}

func bookingsWorkbook(bookings []*models.BookingWithProfile, from, to string) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	title := "All bookings"
	if from != "" && to != "" {
		title = fmt.Sprintf("Bookings %s - %s", from, to)
	}
	_ = f.SetCellValue(exportSheetName, "A1", title)
	_ = f.MergeCell(exportSheetName, "A1", "K1")
	if style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err == nil {
		_ = f.SetCellStyle(exportSheetName, "A1", "A1", style)
	}

	headers := []string{
		"ID", "Date", "Time", "Service", "Price", "Car",
		"Status", "Customer", "Email", "Created", "Updated",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(exportSheetName, cell, header)
		_ = f.SetCellStyle(exportSheetName, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 3
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("B%d", row), b.Date)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("C%d", row), b.TimeSlot)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("D%d", row), b.ServiceName)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("E%d", row), b.Price)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("F%d", row), b.CarDetails())
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("G%d", row), b.Status)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("H%d", row), b.CustomerName)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("I%d", row), b.CustomerEmail)
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("J%d", row), b.CreatedAt.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(exportSheetName, fmt.Sprintf("K%d", row), b.UpdatedAt.Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(exportSheetName, "A", "A", 36)
	_ = f.SetColWidth(exportSheetName, "B", "C", 12)
	_ = f.SetColWidth(exportSheetName, "D", "D", 22)
	_ = f.SetColWidth(exportSheetName, "E", "G", 12)
	_ = f.SetColWidth(exportSheetName, "H", "I", 24)
	_ = f.SetColWidth(exportSheetName, "J", "K", 18)

	_ = f.DeleteSheet("Sheet1")

	return f, nil
}
