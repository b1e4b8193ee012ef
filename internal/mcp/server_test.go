package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nocturnelabs/coderag/internal/chunk"
	"github.com/nocturnelabs/coderag/internal/embeddings"
	"github.com/nocturnelabs/coderag/internal/fetch"
	"github.com/nocturnelabs/coderag/internal/jobs"
	"github.com/nocturnelabs/coderag/internal/llm"
	"github.com/nocturnelabs/coderag/internal/ragcontext"
	"github.com/nocturnelabs/coderag/internal/ragpipeline"
	"github.com/nocturnelabs/coderag/internal/retriever"
	"github.com/nocturnelabs/coderag/internal/store"
)

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Name() string    { return "fake" }
func (f fakeEmbedder) Dimensions() int { return f.dim }
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType embeddings.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeSearcher struct {
	candidates []retriever.Candidate
}

func (f fakeSearcher) SearchSimilar(ctx context.Context, repoID string, queryVector []float32, limit int) ([]retriever.Candidate, error) {
	return f.candidates, nil
}

func (f fakeSearcher) GetIndexInfo(ctx context.Context, repoID string) (retriever.IndexInfo, error) {
	return retriever.IndexInfo{EmbeddingModel: "fake"}, nil
}

type fakeLLM struct{ answer string }

func (f fakeLLM) Name() string { return "fake" }
func (f fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: f.answer}, nil
}
func (f fakeLLM) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan string, error) {
	ch := make(chan string, 1)
	ch <- f.answer
	close(ch)
	return ch, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, owner, name string, opts fetch.Options) (*fetch.Repository, error) {
	return &fetch.Repository{CommitHash: "abc"}, nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(repoID, filePath, language, content string) (chunk.Result, error) {
	return chunk.Result{}, nil
}

type fakeStore struct{}

func (fakeStore) DecideReindex(ctx context.Context, repoID, commitHash, embeddingModel string) (store.Decision, error) {
	return store.DecisionSkip, nil
}
func (fakeStore) ReplaceAllChunks(ctx context.Context, repoID string, chunks []chunk.Chunk, vectors [][]float32) error {
	return nil
}
func (fakeStore) UpsertChunksForFiles(ctx context.Context, repoID string, filePaths []string, chunks []chunk.Chunk, vectors [][]float32) error {
	return nil
}
func (fakeStore) MarkReady(ctx context.Context, repoID, commitHash string) error   { return nil }
func (fakeStore) MarkFailed(ctx context.Context, repoID string, cause error) error { return nil }
func (fakeStore) GetRepoIndex(ctx context.Context, repoID string) (*store.RepoIndex, error) {
	return &store.RepoIndex{RepoID: repoID, EmbeddingModel: "fake"}, nil
}

func newTestServer(t *testing.T, answer string, candidates []retriever.Candidate) *Server {
	t.Helper()
	rtr := retriever.New(fakeEmbedder{dim: 4}, fakeSearcher{candidates: candidates})
	pipe := ragpipeline.New(rtr, fakeLLM{answer: answer}, "test-model", 24000)
	runner := jobs.New(context.Background(), 1, fakeFetcher{}, fakeChunker{}, fakeEmbedder{dim: 4}, fakeStore{})
	return NewServer(pipe, runner)
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"rag_query", ragQueryTool, "rag_query"},
		{"rag_index_status", ragIndexStatusTool, "rag_index_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestHandleRAGQuery(t *testing.T) {
	srv := newTestServer(t, "Foo is a function that returns nothing.", []retriever.Candidate{
		{ID: "1", FilePath: "foo.go", StartLine: 1, EndLine: 3, SymbolName: "Foo", Content: "func Foo() {}", VectorScore: 0.9},
	})
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{
			"repo_id": "o/r",
			"query":   "what does Foo do?",
		}

		result, err := srv.handleRAGQuery(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("missing repo_id", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"query": "what does Foo do?"}

		result, err := srv.handleRAGQuery(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing repo_id")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"repo_id": "o/r"}

		result, err := srv.handleRAGQuery(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})
}

func TestHandleRAGIndexStatus(t *testing.T) {
	srv := newTestServer(t, "answer", nil)
	ctx := context.Background()

	jobID, err := srv.runner.Enqueue(ctx, jobs.IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	t.Run("known job", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"job_id": jobID}

		result, callErr := srv.handleRAGIndexStatus(ctx, req)
		if callErr != nil {
			t.Fatalf("unexpected error: %v", callErr)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"job_id": "no-such-job"}

		result, callErr := srv.handleRAGIndexStatus(ctx, req)
		if callErr != nil {
			t.Fatalf("unexpected error: %v", callErr)
		}
		if !result.IsError {
			t.Error("expected error for unknown job")
		}
	})

	t.Run("missing job_id", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, callErr := srv.handleRAGIndexStatus(ctx, req)
		if callErr != nil {
			t.Fatalf("unexpected error: %v", callErr)
		}
		if !result.IsError {
			t.Error("expected error for missing job_id")
		}
	})
}

func TestFormatRAGAnswerNoAnswerYet(t *testing.T) {
	out := formatRAGAnswer(nil)
	if out == "" {
		t.Fatal("expected a non-empty fallback message")
	}
}

func TestFormatRAGAnswerWithCitations(t *testing.T) {
	events := []ragpipeline.Event{
		{
			Name:   ragpipeline.EventName("stage:context"),
			Status: "done",
			Citations: ragcontext.CitationMap{
				1: {Number: 1, FilePath: "foo.go", StartLine: 1, EndLine: 3, Symbol: "Foo"},
			},
		},
		{
			Name:   ragpipeline.EventName("stage:generation"),
			Status: "done",
			Answer: "Foo does nothing, see [1].",
		},
	}

	out := formatRAGAnswer(events)
	if out == "" {
		t.Fatal("expected non-empty formatted answer")
	}
}
