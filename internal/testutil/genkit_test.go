package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

func TestMockModel_PatternMatching(t *testing.T) {
	g := NewGenkit(t)

	mock := NewMockModel("fallback answer")
	mock.AddResponse("weather", "It is sunny.")
	mock.AddResponse("name", "I am a test model.")
	model := mock.Register(g)

	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModel(model),
		ai.WithPrompt("What is the WEATHER like?"),
	)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := resp.Text(); got != "It is sunny." {
		t.Errorf("response = %q, want %q", got, "It is sunny.")
	}

	resp, err = genkit.Generate(context.Background(), g,
		ai.WithModel(model),
		ai.WithPrompt("Something unmatched"),
	)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := resp.Text(); got != "fallback answer" {
		t.Errorf("fallback = %q, want %q", got, "fallback answer")
	}

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].UserMessage != "What is the WEATHER like?" {
		t.Errorf("recorded message = %q", calls[0].UserMessage)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)

	a := e.vectorFor("hello world")
	b := e.vectorFor("hello world")
	c := e.vectorFor("something else")

	if len(a) != 16 {
		t.Fatalf("vector length = %d, want 16", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}

	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("vector norm^2 = %f, want ~1", norm)
	}
}

func TestMockEmbedder_Pin(t *testing.T) {
	g := NewGenkit(t)

	e := NewMockEmbedder(3)
	e.Pin("pinned", []float32{1, 0, 0})
	embedder := e.Register(g)

	resp, err := embedder.Embed(context.Background(), &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText("pinned", nil),
			ai.DocumentFromText("free", nil),
		},
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Fatalf("embeddings = %d, want 2", len(resp.Embeddings))
	}
	got := resp.Embeddings[0].Embedding
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Errorf("pinned vector = %v, want [1 0 0]", got)
	}
	if len(resp.Embeddings[1].Embedding) != 3 {
		t.Errorf("free vector length = %d, want 3", len(resp.Embeddings[1].Embedding))
	}
}
