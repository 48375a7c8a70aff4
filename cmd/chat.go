package cmd

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/tui"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session by ID")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		sessionID, err := resolveSession(ctx, a)
		if err != nil {
			return err
		}

		flow := chat.NewFlow(a.Genkit, a.Chat)

		model, err := tui.New(ctx, flow, sessionID)
		if err != nil {
			return fmt.Errorf("creating chat interface: %w", err)
		}

		program := tea.NewProgram(model, tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("running chat interface: %w", err)
		}
		return nil
	})
}

// resolveSession resumes the session named by --session or creates a
// fresh one.
func resolveSession(ctx context.Context, a *app.App) (uuid.UUID, error) {
	if chatSessionID != "" {
		id, err := uuid.Parse(chatSessionID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid session ID %q: %w", chatSessionID, err)
		}
		if _, err := a.Sessions.Get(ctx, id); err != nil {
			return uuid.Nil, fmt.Errorf("resuming session %s: %w", id, err)
		}
		return id, nil
	}

	sess, err := a.Sessions.Create(ctx, ownerID, "New conversation")
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}
	return sess.ID, nil
}
