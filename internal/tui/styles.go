package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Teal accent for the Tessera banner.
const accentColor = "#14B8A6"

var tesseraArt = []string{
	"  ████████╗███████╗███████╗███████╗███████╗██████╗  █████╗ ",
	"  ╚══██╔══╝██╔════╝██╔════╝██╔════╝██╔════╝██╔══██╗██╔══██╗",
	"     ██║   █████╗  ███████╗███████╗█████╗  ██████╔╝███████║",
	"     ██║   ██╔══╝  ╚════██║╚════██║██╔══╝  ██╔══██╗██╔══██║",
	"     ██║   ███████╗███████║███████║███████╗██║  ██║██║  ██║",
	"     ╚═╝   ╚══════╝╚══════╝╚══════╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Sources   lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Sources:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}

// RenderBanner returns the styled ASCII banner.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range tesseraArt {
		b.WriteString(s.Banner.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

var welcomeTips = []string{
	"Tips for getting started:",
	"  • Answers draw on your memories, documents and knowledge graph",
	"  • Use /help to see available commands",
	"  • Press Ctrl+C to cancel, Ctrl+D to exit",
	"  • Up/Down arrows navigate command history",
}

// RenderWelcomeTips returns the styled tips block shown under the banner.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		b.WriteString(s.Tips.Render(tip))
		b.WriteString("\n")
	}
	return b.String()
}
