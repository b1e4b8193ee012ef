package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nocturnelabs/coderag/internal/ragpipeline"
	"github.com/nocturnelabs/coderag/internal/retriever"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a retrieval-augmented question about an indexed repository",
	Long:  `Runs the retrieval-augmented generation pipeline against an already-indexed repository and prints the grounded answer plus its citations.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().String("repo", "", "repository id in owner/name form (required)")
	queryCmd.Flags().Int("top-k", 0, "maximum number of cited excerpts (default 8)")
	queryCmd.Flags().Bool("json", false, "output the full result as JSON")
	queryCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	repoID, _ := cmd.Flags().GetString("repo")
	topK, _ := cmd.Flags().GetInt("top-k")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.store.Close()

	var sink collectingSink
	runErr := eng.pipeline.Run(ctx, ragpipeline.Request{
		RepoID: repoID,
		Query:  question,
		Opts:   retriever.Options{TopK: topK},
	}, &sink)
	if runErr != nil {
		return fmt.Errorf("query failed: %w", runErr)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sink.events)
	}

	printQueryAnswer(sink.events)
	return nil
}

type collectingSink struct {
	events []ragpipeline.Event
}

func (s *collectingSink) Send(e ragpipeline.Event) error {
	s.events = append(s.events, e)
	return nil
}

func printQueryAnswer(events []ragpipeline.Event) {
	for _, e := range events {
		switch {
		case e.Name == ragpipeline.EventName("stage:context") && e.Status == "done":
			fmt.Println("Sources:")
			for n := 1; n <= len(e.Citations); n++ {
				c, ok := e.Citations[n]
				if !ok {
					continue
				}
				loc := fmt.Sprintf("[%d] %s lines %d-%d", n, c.FilePath, c.StartLine, c.EndLine)
				if c.Symbol != "" {
					loc += fmt.Sprintf(" (%s)", c.Symbol)
				}
				fmt.Println("  " + loc)
			}
			fmt.Println()
		case e.Name == ragpipeline.EventName("stage:generation") && e.Status == "done":
			fmt.Println(e.Answer)
		case e.Name == ragpipeline.EventError:
			fmt.Fprintf(os.Stderr, "error: %s\n", e.Message)
		}
	}
}
