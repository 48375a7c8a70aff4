package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/tessera-ai/tessera/internal/chat"
)

// streamBufferSize absorbs chunk bursts during UI render delays.
const streamBufferSize = 100

// streamEvent is a discriminated union carried on a single channel.
// Exactly one field is set per event.
type streamEvent struct {
	text   string
	output chat.Output
	err    error
	done   bool
}

type streamStartedMsg struct {
	eventCh <-chan streamEvent
	cancel  context.CancelFunc
}

type streamTextMsg struct {
	text string
}

type streamDoneMsg struct {
	output chat.Output
}

type streamErrorMsg struct {
	err error
}

// startStream launches the flow in a goroutine and forwards its
// iterator values as stream events. The goroutine exits on completion,
// cancellation, or error; channel closure signals it is gone.
func (m *Model) startStream(query string) tea.Cmd {
	return func() tea.Msg {
		eventCh := make(chan streamEvent, streamBufferSize)
		ctx, cancel := context.WithTimeout(m.ctx, streamTimeout)

		go func() {
			defer cancel()
			defer close(eventCh)
			defer func() {
				if r := recover(); r != nil {
					slog.Error("stream panic recovered", "panic", r)
					select {
					case eventCh <- streamEvent{err: fmt.Errorf("stream panic: %v", r)}:
					default:
					}
				}
			}()

			var chunkCount int
			for value, err := range m.chatFlow.Stream(ctx, chat.Input{
				Query:     query,
				SessionID: m.sessionID.String(),
			}) {
				if err != nil {
					select {
					case eventCh <- streamEvent{err: fmt.Errorf("chunk %d: %w", chunkCount, err)}:
					case <-ctx.Done():
					}
					return
				}
				if value.Done {
					select {
					case eventCh <- streamEvent{done: true, output: value.Output}:
					case <-ctx.Done():
					}
					return
				}
				if value.Stream.Text != "" {
					chunkCount++
					select {
					case eventCh <- streamEvent{text: value.Stream.Text}:
					case <-ctx.Done():
						return
					}
				}
			}

			// The iterator exited without a Done value: canceled, zero
			// chunks, or early termination. Always signal completion.
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("stream ended unexpectedly without completion")
				slog.Warn("stream iterator exited without completion signal")
			}
			select {
			case eventCh <- streamEvent{err: err}:
			default:
			}
		}()

		return streamStartedMsg{eventCh: eventCh, cancel: cancel}
	}
}

// listenForStream waits for the next stream event. Empty events are
// skipped with a loop rather than recursion.
func listenForStream(eventCh <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}
		for {
			event, ok := <-eventCh
			if !ok {
				return streamErrorMsg{err: fmt.Errorf("stream ended without completion signal")}
			}
			switch {
			case event.err != nil:
				return streamErrorMsg{err: event.err}
			case event.done:
				return streamDoneMsg{output: event.output}
			case event.text != "":
				return streamTextMsg{text: event.text}
			default:
				continue
			}
		}
	}
}

// summarizeSources condenses the context items used for a reply into a
// short footer line, e.g. "context: memory ×2, vector ×1".
func summarizeSources(items []chat.ContextItem) string {
	if len(items) == 0 {
		return ""
	}

	counts := make(map[string]int)
	var order []string
	for _, item := range items {
		for _, src := range item.Sources {
			if counts[src] == 0 {
				order = append(order, src)
			}
			counts[src]++
		}
	}
	if len(order) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("context: ")
	for i, src := range order {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s ×%d", src, counts[src])
	}
	return b.String()
}
