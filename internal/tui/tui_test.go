package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/chat"
)

func TestNew_ErrorOnNilFlow(t *testing.T) {
	_, err := New(context.Background(), nil, uuid.New())
	if err == nil {
		t.Fatal("New with nil flow succeeded, want error")
	}
}

// newTestModel builds a Model directly, bypassing New so no chat flow
// is required.
func newTestModel(t *testing.T) *Model {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ta := textarea.New()
	ta.SetHeight(1)

	return &Model{
		input:     ta,
		viewport:  viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		sessionID: uuid.New(),
		ctx:       ctx,
		ctxCancel: cancel,
		width:     80,
	}
}

func TestAddMessage_BoundsEnforcement(t *testing.T) {
	m := newTestModel(t)

	for i := 0; i < maxMessages+20; i++ {
		m.addMessage(Message{Role: roleUser, Text: fmt.Sprintf("msg %d", i)})
	}

	if len(m.messages) != maxMessages {
		t.Errorf("messages = %d, want %d", len(m.messages), maxMessages)
	}
	if m.messages[0].Text != "msg 20" {
		t.Errorf("oldest kept = %q, want %q", m.messages[0].Text, "msg 20")
	}
}

func TestHandleSubmit_AddsToHistory(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("what is the deploy process")

	_, cmd := m.handleSubmit()
	if cmd == nil {
		t.Fatal("handleSubmit returned nil cmd")
	}

	if m.state != StateThinking {
		t.Errorf("state = %v, want StateThinking", m.state)
	}
	if len(m.history) != 1 || m.history[0] != "what is the deploy process" {
		t.Errorf("history = %v", m.history)
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleUser {
		t.Errorf("messages = %v", m.messages)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
}

func TestHandleSubmit_IgnoresEmpty(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")

	_, cmd := m.handleSubmit()
	if cmd != nil {
		t.Error("empty submit produced a command")
	}
	if m.state != StateInput {
		t.Errorf("state = %v, want StateInput", m.state)
	}
}

func TestHandleSubmit_HistoryBounds(t *testing.T) {
	m := newTestModel(t)

	for i := 0; i < maxHistory+10; i++ {
		m.input.SetValue(fmt.Sprintf("query %d", i))
		m.handleSubmit()
		m.state = StateInput
	}

	if len(m.history) != maxHistory {
		t.Errorf("history = %d, want %d", len(m.history), maxHistory)
	}
	if m.history[0] != "query 10" {
		t.Errorf("oldest kept = %q, want %q", m.history[0], "query 10")
	}
}

func TestHandleSlashCommands(t *testing.T) {
	tests := []struct {
		cmd      string
		wantRole string
	}{
		{cmdHelp, roleSystem},
		{"/bogus", roleError},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			m := newTestModel(t)
			m.input.SetValue(tt.cmd)

			m.handleSubmit()
			if len(m.messages) != 1 {
				t.Fatalf("messages = %d, want 1", len(m.messages))
			}
			if m.messages[0].Role != tt.wantRole {
				t.Errorf("role = %q, want %q", m.messages[0].Role, tt.wantRole)
			}
		})
	}
}

func TestHandleSlashCommand_Clear(t *testing.T) {
	m := newTestModel(t)
	m.addMessage(Message{Role: roleUser, Text: "old"})

	m.input.SetValue(cmdClear)
	m.handleSubmit()

	if len(m.messages) != 0 {
		t.Errorf("messages after /clear = %d, want 0", len(m.messages))
	}
}

func TestNavigateHistory(t *testing.T) {
	m := newTestModel(t)
	m.history = []string{"first", "second"}
	m.historyIdx = 2

	m.navigateHistory(-1)
	if got := m.input.Value(); got != "second" {
		t.Errorf("after up: input = %q, want %q", got, "second")
	}
	m.navigateHistory(-1)
	if got := m.input.Value(); got != "first" {
		t.Errorf("after up up: input = %q, want %q", got, "first")
	}
	m.navigateHistory(-1)
	if got := m.input.Value(); got != "first" {
		t.Errorf("clamped at oldest: input = %q", got)
	}
	m.navigateHistory(1)
	m.navigateHistory(1)
	if got := m.input.Value(); got != "" {
		t.Errorf("past newest: input = %q, want empty", got)
	}
}

func TestSummarizeSources(t *testing.T) {
	if got := summarizeSources(nil); got != "" {
		t.Errorf("empty items = %q, want empty", got)
	}

	items := []chat.ContextItem{
		{ID: "a", Sources: []string{"memory", "vector"}},
		{ID: "b", Sources: []string{"vector"}},
		{ID: "c", Sources: []string{"graph"}},
	}
	got := summarizeSources(items)
	want := "context: memory ×1, vector ×2, graph ×1"
	if got != want {
		t.Errorf("summarizeSources = %q, want %q", got, want)
	}
}

func TestListenForStream_UnionChannel(t *testing.T) {
	t.Run("error event", func(t *testing.T) {
		ch := make(chan streamEvent, 1)
		ch <- streamEvent{err: errors.New("boom")}
		msg := listenForStream(ch)()
		if _, ok := msg.(streamErrorMsg); !ok {
			t.Errorf("msg = %T, want streamErrorMsg", msg)
		}
	})

	t.Run("done event", func(t *testing.T) {
		ch := make(chan streamEvent, 1)
		ch <- streamEvent{done: true, output: chat.Output{Response: "hi"}}
		msg := listenForStream(ch)()
		done, ok := msg.(streamDoneMsg)
		if !ok {
			t.Fatalf("msg = %T, want streamDoneMsg", msg)
		}
		if done.output.Response != "hi" {
			t.Errorf("response = %q", done.output.Response)
		}
	})

	t.Run("text after empty event", func(t *testing.T) {
		ch := make(chan streamEvent, 2)
		ch <- streamEvent{}
		ch <- streamEvent{text: "chunk"}
		msg := listenForStream(ch)()
		text, ok := msg.(streamTextMsg)
		if !ok {
			t.Fatalf("msg = %T, want streamTextMsg", msg)
		}
		if text.text != "chunk" {
			t.Errorf("text = %q", text.text)
		}
	})

	t.Run("closed channel", func(t *testing.T) {
		ch := make(chan streamEvent)
		close(ch)
		msg := listenForStream(ch)()
		if _, ok := msg.(streamErrorMsg); !ok {
			t.Errorf("msg = %T, want streamErrorMsg", msg)
		}
	})

	t.Run("nil channel", func(t *testing.T) {
		if msg := listenForStream(nil)(); msg != nil {
			t.Errorf("msg = %v, want nil", msg)
		}
	})
}

func TestUpdate_StreamLifecycle(t *testing.T) {
	m := newTestModel(t)
	m.state = StateThinking

	ch := make(chan streamEvent, 1)
	_, cancel := context.WithCancel(context.Background())
	model, _ := m.Update(streamStartedMsg{eventCh: ch, cancel: cancel})
	m = model.(*Model)
	if m.state != StateStreaming {
		t.Fatalf("state = %v, want StateStreaming", m.state)
	}

	model, _ = m.Update(streamTextMsg{text: "Hello "})
	m = model.(*Model)
	model, _ = m.Update(streamTextMsg{text: "there"})
	m = model.(*Model)
	if got := m.output.String(); got != "Hello there" {
		t.Errorf("accumulated output = %q", got)
	}

	model, _ = m.Update(streamDoneMsg{output: chat.Output{
		Response:    "Hello there",
		ContextUsed: []chat.ContextItem{{ID: "x", Sources: []string{"memory"}}},
	}})
	m = model.(*Model)

	if m.state != StateInput {
		t.Errorf("state after done = %v, want StateInput", m.state)
	}
	if len(m.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(m.messages))
	}
	if m.messages[0].Text != "Hello there" {
		t.Errorf("final text = %q", m.messages[0].Text)
	}
	if !strings.Contains(m.messages[0].Sources, "memory") {
		t.Errorf("sources footer = %q, want memory mention", m.messages[0].Sources)
	}
	if m.output.Len() != 0 {
		t.Error("output buffer not reset after done")
	}
}

func TestUpdate_StreamError(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	model, _ := m.Update(streamErrorMsg{err: context.Canceled})
	m = model.(*Model)
	if m.state != StateInput {
		t.Errorf("state = %v, want StateInput", m.state)
	}
	if len(m.messages) != 1 || m.messages[0].Role != roleSystem {
		t.Errorf("canceled stream message = %+v, want system notice", m.messages)
	}
}

func TestCleanup_ReturnsQuit(t *testing.T) {
	m := newTestModel(t)
	if cmd := m.cleanup(); cmd == nil {
		t.Fatal("cleanup returned nil cmd")
	}
	if m.ctxCancel != nil {
		t.Error("ctxCancel not cleared")
	}
	select {
	case <-m.ctx.Done():
	default:
		t.Error("context not canceled by cleanup")
	}
}

func TestRenderSeparator_DefaultWidth(t *testing.T) {
	m := newTestModel(t)
	m.width = 0
	sep := m.renderSeparator()
	if !strings.Contains(sep, "─") {
		t.Errorf("separator = %q, want line characters", sep)
	}
}

func TestMarkdownRenderer_NilDegradesToPlain(t *testing.T) {
	var r *markdownRenderer
	if got := r.Render("# hi"); got != "# hi" {
		t.Errorf("nil renderer output = %q, want passthrough", got)
	}
	if r.UpdateWidth(100) {
		t.Error("nil renderer reported width update")
	}
}

func TestMarkdownRenderer_UpdateWidth(t *testing.T) {
	r := newMarkdownRenderer(80)
	if r == nil {
		t.Skip("glamour unavailable")
	}
	if r.UpdateWidth(80) {
		t.Error("same width reported as update")
	}
	if !r.UpdateWidth(100) {
		t.Error("new width not applied")
	}
	if r.width != 100 {
		t.Errorf("width = %d, want 100", r.width)
	}
}
