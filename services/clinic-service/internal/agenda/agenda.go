// Package agenda prints the day's appointment list as an A4 PDF for the
// front desk.
package agenda

import (
	"fmt"
	"io"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/mask"
	"github.com/go-pdf/fpdf"
)

var columns = []struct {
	title string
	width float64
}{
	{"Time", 18},
	{"Patient", 55},
	{"Staff", 50},
	{"Type", 30},
	{"Status", 27},
}

// Render writes the agenda for date (YYYY-MM-DD) to w. Entries are printed
// in the order given.
func Render(w io.Writer, date string, entries []directory.Entry, generatedAt time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle("Agenda "+mask.ISOToDate(date), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Agenda "+mask.ISOToDate(date), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Generated "+generatedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			pdf.CellFormat(c.width, 7, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, e := range entries {
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		row := []string{e.Time, patientName(e), staffName(e), string(e.Type), string(e.Status)}
		for i, c := range columns {
			pdf.CellFormat(c.width, 7, tr(row[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		if e.Notes != "" {
			pdf.SetFont("Helvetica", "I", 8)
			pdf.MultiCell(0, 4, tr(e.Notes), "LRB", "L", false)
			pdf.SetFont("Helvetica", "", 10)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d appointment(s)", len(entries)), "", 1, "L", false, 0, "")

	return pdf.Output(w)
}

func patientName(e directory.Entry) string {
	if e.Patient != nil {
		return e.Patient.Name
	}
	return e.PatientID
}

func staffName(e directory.Entry) string {
	if e.Staff != nil {
		return e.Staff.Name
	}
	return e.StaffID
}
