package alerts

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ConsoleNotifier writes one styled line per alert.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (c *ConsoleNotifier) Notify(alert Alert) {
	line := FormatLine(alert)
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// FormatLine renders an alert as "15:04:05 SEVERITY [source] Rule: message".
func FormatLine(alert Alert) string {
	var b strings.Builder
	if !alert.FiredAt.IsZero() {
		b.WriteString(alert.FiredAt.Format("15:04:05"))
		b.WriteByte(' ')
	}
	b.WriteString(severityStyle(alert.Severity).Render(strings.ToUpper(alert.Severity)))
	if alert.Source != "" {
		b.WriteByte(' ')
		b.WriteString(sourceStyle.Render("[" + shortSource(alert.Source) + "]"))
	}
	b.WriteString(" " + alert.Rule + ": " + alert.Message)
	return b.String()
}

func severityStyle(severity string) lipgloss.Style {
	switch severity {
	case SeverityCritical:
		return criticalStyle
	case SeverityWarning:
		return warningStyle
	default:
		return infoStyle
	}
}
