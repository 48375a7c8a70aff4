package session

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
)

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		assert.True(t, ValidRole(role), "role %q should be valid", role)
	}
	assert.False(t, ValidRole(""))
	assert.False(t, ValidRole("model"))
	assert.False(t, ValidRole("User"))
}

func TestMessageText(t *testing.T) {
	m := &Message{Content: []*ai.Part{
		ai.NewTextPart("hello "),
		ai.NewTextPart("world"),
	}}
	assert.Equal(t, "hello world", m.Text())

	empty := &Message{}
	assert.Empty(t, empty.Text())
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	assert.Zero(t, h.Count())

	h.Add("hi", "hello")
	assert.Equal(t, 2, h.Count())

	h.AddMessage(ai.NewUserMessage(ai.NewTextPart("again")))
	assert.Equal(t, 3, h.Count())

	h.AddMessage(nil)
	assert.Equal(t, 3, h.Count())

	// Messages returns a copy.
	msgs := h.Messages()
	msgs[0] = nil
	assert.NotNil(t, h.Messages()[0])

	h.Clear()
	assert.Zero(t, h.Count())
}

func TestHistorySetMessagesCopies(t *testing.T) {
	src := []*ai.Message{ai.NewUserMessage(ai.NewTextPart("a"))}
	h := NewHistory()
	h.SetMessages(src)
	src[0] = nil
	assert.NotNil(t, h.Messages()[0])
}

func TestNormalizeHistoryLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, normalizeHistoryLimit(0))
	assert.Equal(t, DefaultHistoryLimit, normalizeHistoryLimit(-5))
	assert.Equal(t, 50, normalizeHistoryLimit(50))
	assert.Equal(t, MaxHistoryLimit, normalizeHistoryLimit(MaxHistoryLimit+1))
}

func TestToGenkitRole(t *testing.T) {
	assert.Equal(t, ai.RoleModel, toGenkitRole(RoleAssistant))
	assert.Equal(t, ai.RoleSystem, toGenkitRole(RoleSystem))
	assert.Equal(t, ai.RoleTool, toGenkitRole(RoleTool))
	assert.Equal(t, ai.RoleUser, toGenkitRole(RoleUser))
	assert.Equal(t, ai.RoleUser, toGenkitRole("unknown"))
}
