// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/quinn/rolo/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles = map[models.JobStatus]lipgloss.Style{
		models.JobPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.JobProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.JobCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.JobFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.JobCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatJobStatus formats a job status with color
func FormatJobStatus(s models.JobStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatContactShort formats a contact in one line
func FormatContactShort(c *models.Contact) string {
	var parts []string
	parts = append(parts, titleStyle.Render(shortID(c.ID)))
	parts = append(parts, c.DisplayName())
	if c.Email != "" {
		parts = append(parts, subtleStyle.Render(c.Email))
	}
	if c.Company != "" {
		parts = append(parts, subtleStyle.Render(c.Company))
	}
	if c.Labels != "" {
		parts = append(parts, labelStyle.Render(c.Labels))
	}
	return strings.Join(parts, "  ")
}

// FormatTimeAgo renders a timestamp as a relative age
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Subtle renders dimmed text
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
