package chat

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	gatherer := source.NewGatherer(nil, 0, logger)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing genkit",
			cfg:     Config{Gatherer: gatherer, Logger: logger},
			wantErr: "genkit instance is required",
		},
		{
			name:    "missing gatherer",
			cfg:     Config{Genkit: &genkit.Genkit{}, Logger: logger},
			wantErr: "source gatherer is required",
		},
		{
			name:    "missing session store",
			cfg:     Config{Genkit: &genkit.Genkit{}, Gatherer: gatherer, Logger: logger},
			wantErr: "session store is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.validate()
			if err == nil {
				t.Fatal("validate() should fail")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("validate() error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSentinelErrors_CanBeChecked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wrapped  error
		sentinel error
	}{
		{name: "invalid session", wrapped: errors.Join(ErrInvalidSession, errors.New("bad id")), sentinel: ErrInvalidSession},
		{name: "execution failed", wrapped: errors.Join(ErrExecutionFailed, errors.New("LLM timeout")), sentinel: ErrExecutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if !errors.Is(tt.wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.wrapped, tt.sentinel)
			}
		})
	}
}

func TestSystemPrompt_WithContext(t *testing.T) {
	t.Parallel()

	fragment := fusion.Assemble([]fusion.Item{
		{
			ID:      "memory:1",
			Content: "the user prefers dark roast coffee",
			Score:   0.8,
			Sources: []fusion.Source{fusion.SourceMemory},
		},
	}, 1000)

	got := systemPrompt(fragment)

	if !strings.Contains(got, "Retrieved context:") {
		t.Error("prompt should include the context header")
	}
	if !strings.Contains(got, "dark roast coffee") {
		t.Error("prompt should include the fused item content")
	}
	if strings.Contains(got, "No retrieved context") {
		t.Error("prompt should not claim context is missing")
	}
}

func TestSystemPrompt_EmptyFragment(t *testing.T) {
	t.Parallel()

	got := systemPrompt(fusion.Fragment{})

	if !strings.Contains(got, "No retrieved context is available") {
		t.Error("empty fragment should produce the no-context prompt")
	}
	if strings.Contains(got, "Retrieved context:") {
		t.Error("empty fragment should not include a context header")
	}
}
