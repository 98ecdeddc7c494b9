package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateLine is one department row printed on a clearance certificate.
type CertificateLine struct {
	Department string
	Status     string
	ClearedBy  string
	ClearedAt  *time.Time
}

// CertificateDocument carries everything printed on a certificate.
type CertificateDocument struct {
	Number      string
	StudentID   string
	StudentName string
	RequestID   string
	IssuerName  string
	IssuedAt    time.Time
	Lines       []CertificateLine
}

// CertificateRenderer draws no-dues certificates as single page PDFs.
type CertificateRenderer struct {
	title string
}

// NewCertificateRenderer constructs a renderer; an empty title falls back to the default heading.
func NewCertificateRenderer(title string) *CertificateRenderer {
	if title == "" {
		title = "No-Dues Clearance Certificate"
	}
	return &CertificateRenderer{title: title}
}

// Render produces the certificate PDF bytes.
func (r *CertificateRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.Number == "" || doc.StudentID == "" {
		return nil, fmt.Errorf("certificate number and student are required")
	}
	if len(doc.Lines) == 0 {
		return nil, fmt.Errorf("certificate requires at least one department line")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(r.title, true)
	pdf.AddPage()

	pdf.SetLineWidth(0.8)
	pdf.Rect(10, 10, 190, 277, "D")

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 14, r.title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate No. %s", doc.Number), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	name := doc.StudentName
	if name == "" {
		name = doc.StudentID
	}
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 7, fmt.Sprintf(
		"This is to certify that %s (student ID %s) has no outstanding dues with the departments listed below "+
			"and has been cleared under request %s.", name, doc.StudentID, doc.RequestID), "", "L", false)
	pdf.Ln(6)

	widths := []float64{50, 30, 45, 45}
	headers := []string{"Department", "Status", "Cleared by", "Cleared on"}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		clearedOn := "-"
		if line.ClearedAt != nil {
			clearedOn = line.ClearedAt.UTC().Format("02 Jan 2006")
		}
		clearedBy := line.ClearedBy
		if clearedBy == "" {
			clearedBy = "-"
		}
		pdf.CellFormat(widths[0], 7, line.Department, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, line.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, clearedBy, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[3], 7, clearedOn, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(16)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued on %s", doc.IssuedAt.UTC().Format("02 January 2006")), "", 1, "L", false, 0, "")
	if doc.IssuerName != "" {
		pdf.Ln(12)
		pdf.CellFormat(0, 6, doc.IssuerName, "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
