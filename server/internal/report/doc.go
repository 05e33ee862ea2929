// Package report renders a per-sensor health report as PDF (gofpdf) or
// XLSX (excelize).
package report
