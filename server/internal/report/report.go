package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/sensorsight/sensorsight/pkg/predict"
	"github.com/sensorsight/sensorsight/pkg/types"
	"github.com/sensorsight/sensorsight/server/internal/alerts"
	"github.com/sensorsight/sensorsight/server/internal/store"
)

// Report is everything one sensor report shows.
type Report struct {
	GeneratedAt time.Time
	Snapshot    *types.SensorSnapshot
	Trend       []store.TrendPoint
	Alerts      []*alerts.Alert
}

// RULText renders the RUL field with its status, e.g. "14 days" or
// "stable (no degradation)".
func RULText(s *types.SensorSnapshot) string {
	switch s.RULStatus {
	case predict.RULStatusProjected:
		return fmt.Sprintf("%d days", s.RUL)
	case predict.RULStatusStable:
		return "stable (no degradation)"
	default:
		return "insufficient data"
	}
}

type row struct{ label, value string }

func summaryRows(r Report) []row {
	s := r.Snapshot
	return []row{
		{"Sensor", s.SensorID},
		{"Type", s.SensorType},
		{"Status", s.Status},
		{"Condition", s.Condition},
		{"Health score", strconv.Itoa(s.HealthScore)},
		{"Composite score", fmt.Sprintf("%.1f", s.CompositeScore)},
		{"Remaining useful life", RULText(s)},
		{"Uptime", fmt.Sprintf("%.1f%%", s.UptimePct)},
		{"Samples in window", strconv.Itoa(s.SampleCount)},
		{"Last update", time.Unix(s.TimestampUnix, 0).UTC().Format(time.RFC3339)},
	}
}

func readingRows(s *types.SensorSnapshot) []row {
	return []row{
		{"Temperature (C)", fmt.Sprintf("%.2f / %.2f", s.Latest.Temperature, s.Thresholds.TemperatureCritical)},
		{"Noise level", fmt.Sprintf("%.2f / %.2f", s.Latest.NoiseLevel, s.Thresholds.NoiseCritical)},
		{"Dead pixels", fmt.Sprintf("%.0f", s.Latest.DeadPixels)},
	}
}

// BuildPDF renders r as a single-document A4 PDF.
func BuildPDF(r Report) ([]byte, error) {
	if r.Snapshot == nil {
		return nil, fmt.Errorf("report: nil snapshot")
	}
	s := r.Snapshot

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Sensor health report: "+s.SensorID, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Sensor Health Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 5, "Generated "+r.GeneratedAt.UTC().Format(time.RFC3339))
	pdf.Ln(8)

	section(pdf, "Summary")
	for _, rw := range summaryRows(r) {
		pdf.CellFormat(60, 6, rw.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(100, 6, rw.value, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	if s.ErrorMessage != "" {
		pdf.SetTextColor(200, 30, 30)
		pdf.CellFormat(160, 6, "Last scrape failed: "+s.ErrorMessage, "1", 0, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(-1)
	}

	section(pdf, "Latest readings (value / critical)")
	for _, rw := range readingRows(s) {
		pdf.CellFormat(60, 6, rw.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(100, 6, rw.value, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(s.Forecast) > 0 {
		section(pdf, "Temperature forecast")
		header(pdf, []float64{40, 40}, "Step", "Temperature")
		for _, p := range s.Forecast {
			pdf.CellFormat(40, 6, fmt.Sprintf("%.0f", p.X), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", p.Y), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	if len(r.Trend) > 0 {
		section(pdf, "Recent trend")
		header(pdf, []float64{50, 25, 25, 30, 30}, "Time", "Health", "RUL", "Temp", "Noise")
		for _, p := range r.Trend {
			pdf.CellFormat(50, 6, p.At.UTC().Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, strconv.Itoa(p.HealthScore), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, strconv.Itoa(p.RUL), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", p.Temperature), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", p.NoiseLevel), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	section(pdf, "Alerts")
	if len(r.Alerts) == 0 {
		pdf.Cell(0, 6, "No alerts recorded.")
		pdf.Ln(-1)
	}
	for _, a := range r.Alerts {
		sev, _ := alerts.ParseSeverity(a.Severity)
		red, green, blue := hexRGB(sev.Color())
		pdf.SetFillColor(red, green, blue)
		pdf.CellFormat(25, 6, a.Severity, "1", 0, "C", true, 0, "")
		pdf.CellFormat(20, 6, a.State, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, a.FiredAt.UTC().Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(75, 6, a.RuleName, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 7, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
}

func header(pdf *gofpdf.Fpdf, widths []float64, cols ...string) {
	pdf.SetFont("Arial", "B", 9)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 6, c, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
}

func hexRGB(h string) (int, int, int) {
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

// Sheet names used by BuildXLSX.
const (
	SheetSummary  = "summary"
	SheetForecast = "forecast"
	SheetTrend    = "trend"
	SheetAlerts   = "alerts"
)

// BuildXLSX renders r as a workbook with summary, forecast, trend and
// alerts sheets.
func BuildXLSX(r Report) ([]byte, error) {
	if r.Snapshot == nil {
		return nil, fmt.Errorf("report: nil snapshot")
	}
	s := r.Snapshot

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}
	for _, name := range []string{SheetForecast, SheetTrend, SheetAlerts} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("report: new sheet %s: %w", name, err)
		}
	}

	_ = f.SetCellValue(SheetSummary, "A1", "Sensor Health Report")
	_ = f.SetCellValue(SheetSummary, "B1", r.GeneratedAt.UTC().Format(time.RFC3339))
	line := 3
	for _, rw := range append(summaryRows(r), readingRows(s)...) {
		_ = f.SetCellValue(SheetSummary, cell(1, line), rw.label)
		_ = f.SetCellValue(SheetSummary, cell(2, line), rw.value)
		line++
	}
	if s.ErrorMessage != "" {
		_ = f.SetCellValue(SheetSummary, cell(1, line), "Last scrape error")
		_ = f.SetCellValue(SheetSummary, cell(2, line), s.ErrorMessage)
	}

	writeRow(f, SheetForecast, 1, "Step", "Temperature")
	for i, p := range s.Forecast {
		writeRow(f, SheetForecast, i+2, p.X, p.Y)
	}

	writeRow(f, SheetTrend, 1, "Time", "Health score", "Composite", "RUL", "RUL status", "Temperature", "Noise level")
	for i, p := range r.Trend {
		writeRow(f, SheetTrend, i+2, p.At.UTC().Format(time.RFC3339), p.HealthScore, p.CompositeScore,
			p.RUL, p.RULStatus, p.Temperature, p.NoiseLevel)
	}

	writeRow(f, SheetAlerts, 1, "Fired", "Resolved", "Severity", "State", "Rule", "Value", "Message")
	for i, a := range r.Alerts {
		resolved := ""
		if a.ResolvedAt != nil {
			resolved = a.ResolvedAt.UTC().Format(time.RFC3339)
		}
		writeRow(f, SheetAlerts, i+2, a.FiredAt.UTC().Format(time.RFC3339), resolved, a.Severity,
			a.State, a.RuleName, a.Value, a.Message)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		_ = f.SetCellValue(sheet, cell(i+1, row), v)
	}
}
