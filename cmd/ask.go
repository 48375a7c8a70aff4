package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/fusion"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		sess, err := a.Sessions.Create(ctx, ownerID, a.Chat.GenerateTitle(ctx, question))
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}

		resp, err := a.Chat.Execute(ctx, sess.ID, question)
		if err != nil {
			return fmt.Errorf("generating answer: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.FinalText)
		if summary := summarizeContext(resp.ContextUsed); summary != "" {
			fmt.Fprintln(cmd.ErrOrStderr())
			fmt.Fprintln(cmd.ErrOrStderr(), summary)
		}
		return nil
	})
}

// summarizeContext counts fused context items per source, preserving
// first-seen order.
func summarizeContext(items []fusion.Item) string {
	if len(items) == 0 {
		return ""
	}
	counts := make(map[fusion.Source]int)
	var order []fusion.Source
	for _, item := range items {
		for _, src := range item.Sources {
			if counts[src] == 0 {
				order = append(order, src)
			}
			counts[src]++
		}
	}
	parts := make([]string, 0, len(order))
	for _, src := range order {
		parts = append(parts, fmt.Sprintf("%s ×%d", src, counts[src]))
	}
	return "context: " + strings.Join(parts, ", ")
}
