package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// View implements tea.Model. AltScreen with a viewport gives scrollable
// message history above a fixed input area.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	m.viewBuf.WriteString(m.viewport.View())
	m.viewBuf.WriteString("\n")

	m.viewBuf.WriteString(m.renderSeparator())
	m.viewBuf.WriteString("\n")

	// Input stays visible and editable in every state.
	m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	m.viewBuf.WriteString(m.input.View())
	m.viewBuf.WriteString("\n")

	m.viewBuf.WriteString(m.renderSeparator())
	m.viewBuf.WriteString("\n")

	m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs viewport content from messages
// and current state.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	b.WriteString(m.styles.RenderBanner())
	b.WriteString("\n")
	b.WriteString(m.styles.RenderWelcomeTips())
	b.WriteString("\n")

	for _, msg := range m.messages {
		switch msg.Role {
		case roleUser:
			b.WriteString(m.styles.User.Render("You> "))
			b.WriteString(msg.Text)
		case roleAssistant:
			b.WriteString(m.styles.Assistant.Render("Tessera> "))
			b.WriteString(m.markdown.Render(msg.Text))
			if msg.Sources != "" {
				b.WriteString("\n")
				b.WriteString(m.styles.Sources.Render(msg.Sources))
			}
		case roleSystem:
			b.WriteString(m.styles.System.Render(msg.Text))
		case roleError:
			b.WriteString(m.styles.Error.Render("Error: " + msg.Text))
		}
		b.WriteString("\n\n")
	}

	if m.state == StateStreaming && m.output.Len() > 0 {
		b.WriteString(m.styles.Assistant.Render("Tessera> "))
		b.WriteString(m.output.String())
		b.WriteString("\n\n")
	}

	if m.state == StateThinking {
		b.WriteString(m.spinner.View())
		b.WriteString(" Thinking...\n\n")
	}

	m.viewport.SetContent(b.String())
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar shows state-appropriate keyboard shortcuts.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Cancel, m.keys.Quit, m.keys.ScrollUp,
		}
	case StateThinking, StateStreaming:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	}
	return m.help.ShortHelpView(bindings)
}
