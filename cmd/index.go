package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nocturnelabs/coderag/internal/jobs"
)

var indexCmd = &cobra.Command{
	Use:   "index [repo]",
	Short: "Index a repository into the RAG engine's vector store",
	Long:  `Enqueues a fetch-filter-chunk-embed-write run for the given repository (owner/name or a GitHub URL) and waits for it to finish, reporting progress as the job advances.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().Bool("no-wait", false, "enqueue the job and exit without waiting for completion")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	owner, name, ok := splitOwnerRepo(args[0])
	if !ok {
		return fmt.Errorf("%q is not a valid owner/name repo reference", args[0])
	}

	noWait, _ := cmd.Flags().GetBool("no-wait")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.store.Close()

	jobID, err := eng.runner.Enqueue(ctx, jobs.IndexRequest{Owner: owner, Name: name})
	if err != nil {
		return fmt.Errorf("enqueueing index job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "queued index job %s for %s/%s\n", jobID, owner, name)

	if noWait {
		fmt.Println(jobID)
		return nil
	}

	return waitForJob(ctx, eng.runner, jobID)
}

// waitForJob polls the runner until jobID leaves the waiting/active states,
// printing each percentage checkpoint as it advances.
func waitForJob(ctx context.Context, runner *jobs.Runner, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			job, err := runner.Status(ctx, jobID)
			if err != nil {
				return fmt.Errorf("checking job status: %w", err)
			}
			if job.Progress != lastProgress {
				fmt.Fprintf(os.Stderr, "  [%3d%%] %s\n", job.Progress, job.State)
				lastProgress = job.Progress
			}
			switch job.State {
			case jobs.StateCompleted:
				fmt.Println("index complete")
				return nil
			case jobs.StateFailed:
				return fmt.Errorf("index failed: %s", job.Error)
			}
		}
	}
}

// splitOwnerRepo accepts either "owner/name" or a full GitHub URL
// ("https://github.com/owner/name", optionally with a trailing ".git").
func splitOwnerRepo(raw string) (owner, name string, ok bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "github.com/")
	raw = strings.TrimSuffix(raw, ".git")
	raw = strings.TrimSuffix(raw, "/")

	parts := strings.Split(raw, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
