package chat

import (
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
)

// TokenBudget bounds how much of the context window is spent on
// conversation history versus retrieved context.
type TokenBudget struct {
	MaxHistoryTokens int // Budget for prior conversation messages
	MaxContextTokens int // Budget for the fused context fragment
}

// DefaultTokenBudget returns conservative defaults that fit comfortably
// in common model context windows.
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		MaxHistoryTokens: 4000,
		MaxContextTokens: 2000,
	}
}

// estimateTokens approximates the token count of text.
// Uses runes/2: pessimistic for English (~4 chars/token) but realistic
// for CJK where one character is often one token. Overestimating keeps
// us safely inside the model's context window.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 2
	if n < 1 {
		return 1
	}
	return n
}

// estimateMessagesTokens sums the estimated tokens of all text parts.
func estimateMessagesTokens(msgs []*ai.Message) int {
	total := 0
	for _, msg := range msgs {
		for _, part := range msg.Content {
			if part.IsText() {
				total += estimateTokens(part.Text)
			}
		}
	}
	return total
}

// messageTokens estimates the tokens of a single message.
func messageTokens(msg *ai.Message) int {
	total := 0
	for _, part := range msg.Content {
		if part.IsText() {
			total += estimateTokens(part.Text)
		}
	}
	return total
}

// truncateHistory drops old messages until the estimated history fits
// within budget. System messages are always retained (their cost still
// counts against the budget). Non-system messages are considered newest
// first; a message too large for the remaining budget is skipped while
// older, smaller messages may still be kept. Chronological order is
// preserved in the result.
func (s *Service) truncateHistory(msgs []*ai.Message, budget int) []*ai.Message {
	if len(msgs) == 0 {
		return msgs
	}

	total := estimateMessagesTokens(msgs)
	if total <= budget {
		return msgs
	}

	remaining := budget
	var systems []*ai.Message
	var rest []*ai.Message
	for _, msg := range msgs {
		if msg.Role == ai.RoleSystem {
			systems = append(systems, msg)
			remaining -= messageTokens(msg)
		} else {
			rest = append(rest, msg)
		}
	}

	// Walk newest to oldest, keeping whatever still fits.
	kept := make([]*ai.Message, 0, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		cost := messageTokens(rest[i])
		if cost > remaining {
			continue
		}
		kept = append(kept, rest[i])
		remaining -= cost
	}

	// Restore chronological order: systems first, then kept reversed.
	result := make([]*ai.Message, 0, len(systems)+len(kept))
	result = append(result, systems...)
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i])
	}

	if len(result) < len(msgs) {
		s.logger.Debug("truncated history",
			"original_messages", len(msgs),
			"kept_messages", len(result),
			"budget", budget,
		)
	}
	return result
}
