package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Input defines the request payload for the chat flow.
type Input struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// ContextItem is the wire form of one fused context item used for a turn.
type ContextItem struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`
	Score   float64  `json:"score"`
}

// Output defines the response payload from the chat flow.
type Output struct {
	Response    string        `json:"response"`
	SessionID   string        `json:"sessionId"`
	ContextUsed []ContextItem `json:"contextUsed"`
}

// StreamChunk is the streaming output type for the chat flow.
// Each chunk contains partial text that can be immediately displayed.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "tessera/chat"

// Flow is the type alias for the chat service's Genkit streaming flow.
// Exported for use in the api package with genkit.Handler().
type Flow = core.Flow[Input, Output, StreamChunk]

// Package-level singleton for Flow to prevent panic on re-registration.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, initializing it on first
// call. Subsequent calls return the existing Flow (parameters are
// ignored). genkit.DefineStreamingFlow panics on re-registration, so
// the singleton is the only safe construction path.
func NewFlow(g *genkit.Genkit, svc *Service) *Flow {
	flowOnce.Do(func() {
		flow = svc.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting resets the Flow singleton so tests can initialize
// with different configurations. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow defines the Genkit streaming flow for the chat service.
// Use NewFlow instead of calling this directly; DefineFlow registers a
// global flow and calling it twice panics.
func (s *Service) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			sessionID, err := uuid.Parse(input.SessionID)
			if err != nil {
				return Output{}, fmt.Errorf("%w: %q", ErrInvalidSession, input.SessionID)
			}

			var callback StreamCallback
			if streamCb != nil {
				callback = func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
					for _, part := range chunk.Content {
						if part.IsText() && part.Text != "" {
							if err := streamCb(ctx, StreamChunk{Text: part.Text}); err != nil {
								return err
							}
						}
					}
					return nil
				}
			}

			resp, err := s.ExecuteStream(ctx, sessionID, input.Query, callback)
			if err != nil {
				return Output{}, err
			}

			used := make([]ContextItem, len(resp.ContextUsed))
			for i, item := range resp.ContextUsed {
				sources := make([]string, len(item.Sources))
				for j, src := range item.Sources {
					sources[j] = string(src)
				}
				used[i] = ContextItem{ID: item.ID, Sources: sources, Score: item.Score}
			}

			return Output{
				Response:    resp.FinalText,
				SessionID:   input.SessionID,
				ContextUsed: used,
			}, nil
		})
}
