package cmd

import (
	"context"
	"fmt"
	"log/slog"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve Tessera tools over the Model Context Protocol (stdio)",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		server, err := mcp.NewServer(mcp.Config{
			Name:     "tessera",
			Version:  Version,
			OwnerID:  ownerID,
			Context:  a.Chat,
			Memories: a.Memories,
			Ingest:   a.Pipeline,
			Logger:   slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}

		// JSON-RPC rides stdout; everything else must stay on stderr.
		slog.Default().Info("MCP server listening on stdio")

		if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("MCP server: %w", err)
		}
		return nil
	})
}
