// Package ui provides shared terminal styling for the interactive chat.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette (256-color).
var (
	ClrBrand  = lipgloss.Color("214") // orange
	ClrMuted  = lipgloss.Color("245")
	ClrSubtle = lipgloss.Color("242")
	ClrRed    = lipgloss.Color("203")
	ClrCyan   = lipgloss.Color("81") // tool names
	ClrYellow = lipgloss.Color("220")
)

var (
	Brand   = lipgloss.NewStyle().Foreground(ClrBrand).Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(ClrMuted)
	Subtle  = lipgloss.NewStyle().Foreground(ClrSubtle)
	Red     = lipgloss.NewStyle().Foreground(ClrRed)
	Cyan    = lipgloss.NewStyle().Foreground(ClrCyan)
	Yellow  = lipgloss.NewStyle().Foreground(ClrYellow)
	Keyword = lipgloss.NewStyle().Foreground(ClrBrand)
)

// Prompt renders a prompt like "pkai> ".
func Prompt(label string) string {
	return Brand.Render(label+">") + " "
}

func Error(msg string) string {
	return Red.Render("error: " + msg)
}

func Errorf(format string, a ...any) string {
	return Error(fmt.Sprintf(format, a...))
}

// Info formats a label followed by muted detail.
func Info(label, detail string) string {
	return Brand.Render(label) + " " + Muted.Render(detail)
}

// Tools renders the list of tools a turn invoked, or "" when none ran.
func Tools(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return Muted.Render("tools: ") + Cyan.Render(strings.Join(names, ", "))
}

func Dim(text string) string {
	return Subtle.Render(text)
}
