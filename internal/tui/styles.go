package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)
	// ActiveStyle marks the toolchain in use.
	ActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	// WarnStyle marks problems the user should look at.
	WarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	// HintStyle renders secondary text.
	HintStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		// Changes
		"installed":   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"switched":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"uninstalled": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"ok":          lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// No-ops
		"already-installed": lipgloss.NewStyle().Faint(true),
		"already-in-use":    lipgloss.NewStyle().Faint(true),

		// Warnings
		"no-match": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"warning":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		// Error
		"error": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// Column defines a single column in a table.
type Column struct {
	Header string
	Width  int
}

// RenderTable lays out rows under a bold header. Cells longer than the
// column width are truncated.
func RenderTable(columns []Column, rows [][]string) string {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col.Header)
		if col.Width > widths[i] {
			widths[i] = col.Width
		}
	}

	var b strings.Builder
	headerParts := make([]string, len(columns))
	for i, col := range columns {
		headerParts[i] = HeaderStyle.Render(pad(col.Header, widths[i]))
	}
	b.WriteString(strings.TrimRight(strings.Join(headerParts, "  "), " "))
	b.WriteByte('\n')

	for _, row := range rows {
		parts := make([]string, len(columns))
		for i := range columns {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			parts[i] = pad(TruncateWithEllipsis(val, widths[i]), widths[i])
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// NonEmptyOrDash returns "-" for empty/whitespace strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis truncates a string and adds "..." if it exceeds max length.
func TruncateWithEllipsis(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
