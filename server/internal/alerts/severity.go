package alerts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSeverity is returned by ParseSeverity for names outside the set.
var ErrUnknownSeverity = errors.New("alerts: unknown severity")

// Severity is the closed, ordered set info < warning < critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// ParseSeverity maps a config or wire name onto a Severity. Matching is
// case-insensitive; the empty string is warning.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityWarning, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int { return int(s) }

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Label is the bracketed prefix used in chat notifications.
func (s Severity) Label() string {
	return "[" + strings.ToUpper(s.String()) + "]"
}

// Color is the hex theme colour used for Teams cards and reports.
func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "FF4F6A"
	case SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
