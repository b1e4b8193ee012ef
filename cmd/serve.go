package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/nocturnelabs/coderag/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing rag_query and rag_index_status tools for AI agents like Claude Code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		eng, err := buildEngine(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("building engine: %w", err)
		}
		defer eng.store.Close()

		mcpserver.Version = Version

		fmt.Fprintln(os.Stderr, "coderag MCP server started on stdio")

		srv := mcpserver.NewServer(eng.pipeline, eng.runner)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
