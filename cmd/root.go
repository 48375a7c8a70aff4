// Package cmd contains the tessera CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/log"
)

// ownerID scopes memories, sessions and ingestion tasks for CLI runs.
var ownerID string

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Tessera - context-fusion RAG chat",
	Long: `Tessera is a retrieval-augmented chat assistant. It fuses semantic
memories, vector-indexed documents, a knowledge graph and conversation
history into ranked context for every reply.

Running tessera without a subcommand starts the interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	initLogger()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "default", "owner scope for memories and sessions")
}

// initLogger installs the process-wide logger. Logs go to stderr so
// stdout stays clean for command output and MCP JSON-RPC.
func initLogger() {
	level := slog.LevelInfo
	if os.Getenv("TESSERA_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))
}
