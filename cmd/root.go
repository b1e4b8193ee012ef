package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coderag",
	Short: "Retrieval-augmented Q&A over indexed GitHub repositories",
	Long: `coderag fetches a GitHub repository, chunks and embeds its source, and
answers natural-language questions about it with citations into the
actual code. It integrates with AI agents via MCP and exposes the same
engine over HTTP.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".autodoc.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
