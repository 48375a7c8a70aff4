package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/ingest"
)

var ingestRef string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the knowledge base",
}

var ingestFileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Ingest local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, func(a *app.App) (*ingest.Task, error) {
			return a.Pipeline.IngestFiles(args, ownerID)
		})
	},
}

var ingestURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Ingest a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, func(a *app.App) (*ingest.Task, error) {
			return a.Pipeline.IngestURL(args[0], ownerID)
		})
	},
}

var ingestGitHubCmd = &cobra.Command{
	Use:   "github <owner/repo>",
	Short: "Ingest a GitHub repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, func(a *app.App) (*ingest.Task, error) {
			return a.Pipeline.IngestGitHub(args[0], ingestRef, ownerID)
		})
	},
}

func init() {
	ingestGitHubCmd.Flags().StringVar(&ingestRef, "ref", "", "branch, tag, or commit (default: repository default branch)")
	ingestCmd.AddCommand(ingestFileCmd, ingestURLCmd, ingestGitHubCmd)
	rootCmd.AddCommand(ingestCmd)
}

// runIngest queues one task, waits for the pipeline to drain, and
// reports the final task state.
func runIngest(cmd *cobra.Command, queue func(*app.App) (*ingest.Task, error)) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		task, err := queue(a)
		if err != nil {
			return fmt.Errorf("queueing ingestion: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ingesting %s %s (task %s)\n", task.Kind, task.Source, task.ID)
		a.Pipeline.Wait()

		final, err := a.Registry.Get(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("looking up task %s: %w", task.ID, err)
		}
		if final.Status == ingest.StatusFailed {
			return fmt.Errorf("ingestion failed: %s", final.Error)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "done: %d documents, %d chunks\n", final.Documents, final.Chunks)
		return nil
	})
}
