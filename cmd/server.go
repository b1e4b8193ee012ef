package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nocturnelabs/coderag/internal/api"
	"github.com/nocturnelabs/coderag/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the RAG engine's HTTP server",
	Long:  `Starts the coderag HTTP server exposing repository indexing and retrieval-augmented query endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx, cfg)
		if err != nil {
			return fmt.Errorf("building engine: %w", err)
		}
		defer eng.store.Close()

		srv := server.New(server.Config{
			Port:     serverPort,
			AllowAll: true,
		}, api.Deps{Runner: eng.runner, Pipeline: eng.pipeline})

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "coderag server v%s starting on port %d\n", Version, serverPort)
		return srv.Start()
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serverCmd)
}
