package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nocturnelabs/coderag/internal/ragpipeline"
	"github.com/nocturnelabs/coderag/internal/retriever"
)

// bufferingSink collects a pipeline run's events so handleRAGQuery can
// return one formatted text result instead of streaming, mirroring
// internal/api's synchronous /rag/query handler.
type bufferingSink struct {
	events []ragpipeline.Event
}

func (b *bufferingSink) Send(e ragpipeline.Event) error {
	b.events = append(b.events, e)
	return nil
}

// handleRAGQuery runs the full retrieval-augmented generation pipeline and
// formats the answer plus its citations as text for the calling agent.
func (s *Server) handleRAGQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repo_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	topK := request.GetInt("top_k", 0)

	sink := &bufferingSink{}
	runErr := s.pipeline.Run(ctx, ragpipeline.Request{
		RepoID: repoID,
		Query:  query,
		Opts:   retriever.Options{TopK: topK},
	}, sink)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rag_query failed: %v", runErr)), nil
	}

	return mcp.NewToolResultText(formatRAGAnswer(sink.events)), nil
}

// handleRAGIndexStatus reports the current state of an index job.
func (s *Server) handleRAGIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}

	job, statusErr := s.runner.Status(ctx, jobID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job %q not found: %v", jobID, statusErr)), nil
	}

	text := fmt.Sprintf("job %s: state=%s progress=%d%%", job.ID, job.State, job.Progress)
	if job.Error != "" {
		text += fmt.Sprintf(" error=%q", job.Error)
	}
	return mcp.NewToolResultText(text), nil
}

// formatRAGAnswer renders the generation stage's answer plus the context
// stage's citation map as agent-readable text.
func formatRAGAnswer(events []ragpipeline.Event) string {
	var answer string
	var citations map[int]string

	for _, e := range events {
		switch {
		case e.Name == ragpipeline.EventName("stage:generation") && e.Status == "done":
			answer = e.Answer
		case e.Name == ragpipeline.EventName("stage:context") && e.Status == "done":
			citations = make(map[int]string, len(e.Citations))
			for n, c := range e.Citations {
				loc := fmt.Sprintf("%s lines %d-%d", c.FilePath, c.StartLine, c.EndLine)
				if c.Symbol != "" {
					loc += fmt.Sprintf(" (%s)", c.Symbol)
				}
				citations[n] = loc
			}
		}
	}

	if answer == "" {
		return "No answer was generated. The repository may not be indexed yet — check rag_index_status or run an index job first."
	}

	var sb strings.Builder
	sb.WriteString(answer)
	if len(citations) > 0 {
		sb.WriteString("\n\nSources:\n")
		for n := 1; n <= len(citations); n++ {
			if loc, ok := citations[n]; ok {
				sb.WriteString(fmt.Sprintf("[%d] %s\n", n, loc))
			}
		}
	}
	return sb.String()
}
