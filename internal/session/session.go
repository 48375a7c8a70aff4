// Package session persists conversation sessions and their messages in
// PostgreSQL. Message content is Genkit's ai.Part slice stored as JSONB,
// so tool calls and multi-part responses survive round trips unchanged.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ValidRole reports whether role is a known message role.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Session is a conversation session.
type Session struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single conversation message. Content holds Genkit's ai.Part
// slice, serialized as JSONB in the database.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	SessionID      uuid.UUID  `json:"sessionId"`
	Role           string     `json:"role"`
	Content        []*ai.Part `json:"content"`
	SequenceNumber int        `json:"sequenceNumber"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.IsText() {
			out += p.Text
		}
	}
	return out
}

// History encapsulates in-flight conversation history with thread-safe
// access. The zero value is not useful; use NewHistory.
type History struct {
	mu       sync.RWMutex
	messages []*ai.Message
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{messages: make([]*ai.Message, 0)}
}

// SetMessages replaces all messages. A defensive copy prevents external
// mutation of the internal slice.
func (h *History) SetMessages(messages []*ai.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]*ai.Message, len(messages))
	copy(h.messages, messages)
}

// Messages returns a copy of all messages.
func (h *History) Messages() []*ai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*ai.Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Add appends a user message and the assistant's response.
func (h *History) Add(userInput, assistantResponse string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		ai.NewUserMessage(ai.NewTextPart(userInput)),
		ai.NewModelMessage(ai.NewTextPart(assistantResponse)),
	)
}

// AddMessage appends a single message. Nil messages are ignored.
func (h *History) AddMessage(msg *ai.Message) {
	if msg == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// Count returns the number of messages.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]*ai.Message, 0)
}
