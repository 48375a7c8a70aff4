// Package tui provides the Bubble Tea terminal chat interface for Tessera.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/chat"
)

// State is the TUI state machine.
type State int

const (
	StateInput     State = iota // awaiting user input
	StateThinking               // request sent, no chunks yet
	StateStreaming              // receiving response chunks
)

// Display bounds.
const (
	maxMessages = 100
	maxHistory  = 100
)

// streamTimeout caps a single conversational turn.
const streamTimeout = 5 * time.Minute

// Display roles.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// Message is one conversation entry for display. Sources carries the
// context-source summary shown under assistant replies.
type Message struct {
	Role    string
	Text    string
	Sources string
}

// Model is the Bubble Tea model for the Tessera chat interface.
type Model struct {
	input      textarea.Model
	history    []string
	historyIdx int

	state     State
	lastCtrlC time.Time

	spinner  spinner.Model
	output   strings.Builder
	viewBuf  strings.Builder
	messages []Message

	viewport viewport.Model

	help help.Model
	keys keyMap

	// Bubble Tea's event loop serializes access; a single union channel
	// carries all stream events.
	streamCancel  context.CancelFunc
	streamEventCh <-chan streamEvent

	chatFlow  *chat.Flow
	sessionID uuid.UUID
	ctx       context.Context
	ctxCancel context.CancelFunc

	width  int
	height int

	styles Styles

	// nil markdown renderer degrades to plain text
	markdown *markdownRenderer
}

func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// New creates a chat Model. ctx must be the same context passed to
// tea.WithContext so cancellation stays consistent.
func New(ctx context.Context, flow *chat.Flow, sessionID uuid.UUID) (*Model, error) {
	if flow == nil {
		return nil, errors.New("tui.New: flow is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	if sessionID == uuid.Nil {
		return nil, errors.New("tui.New: session ID is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// No backgrounds, plain text input
	plain := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: plain, Blurred: plain})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Keys are routed explicitly in handleKey, so the viewport's own
	// bindings are disabled to avoid clashing with history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	return &Model{
		chatFlow:  flow,
		sessionID: sessionID,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      help.New(),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80,
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}
