package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/chunk"
	"github.com/nocturnelabs/coderag/internal/embeddings"
	"github.com/nocturnelabs/coderag/internal/fetch"
	"github.com/nocturnelabs/coderag/internal/store"
)

type fakeFetcher struct {
	repo *fetch.Repository
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, owner, name string, opts fetch.Options) (*fetch.Repository, error) {
	return f.repo, f.err
}

type fakeChunker struct{}

func (fakeChunker) Chunk(repoID, filePath, language, content string) (chunk.Result, error) {
	return chunk.Result{Chunks: []chunk.Chunk{
		{RepoID: repoID, FilePath: filePath, ChunkIndex: 0, Language: language, Content: content},
	}}, nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Name() string    { return "fake-embedder" }
func (f fakeEmbedder) Dimensions() int { return f.dim }
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType embeddings.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeStore struct {
	decision      store.Decision
	decideErr     error
	writeErr      error
	markReadyErr  error
	markFailedErr error
	existingIndex *store.RepoIndex

	markedFailed        bool
	failCause           error
	decideReindexCalled bool
}

func (f *fakeStore) DecideReindex(ctx context.Context, repoID, commitHash, embeddingModel string) (store.Decision, error) {
	f.decideReindexCalled = true
	return f.decision, f.decideErr
}

func (f *fakeStore) ReplaceAllChunks(ctx context.Context, repoID string, chunks []chunk.Chunk, vectors [][]float32) error {
	return f.writeErr
}

func (f *fakeStore) UpsertChunksForFiles(ctx context.Context, repoID string, filePaths []string, chunks []chunk.Chunk, vectors [][]float32) error {
	return f.writeErr
}

func (f *fakeStore) MarkReady(ctx context.Context, repoID, commitHash string) error {
	return f.markReadyErr
}

func (f *fakeStore) MarkFailed(ctx context.Context, repoID string, cause error) error {
	f.markedFailed = true
	f.failCause = cause
	return f.markFailedErr
}

func (f *fakeStore) GetRepoIndex(ctx context.Context, repoID string) (*store.RepoIndex, error) {
	if f.existingIndex != nil {
		return f.existingIndex, nil
	}
	return nil, apperr.New(apperr.NotFound, "not indexed")
}

func waitForState(t *testing.T, r *Runner, jobID string, want State) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if job.State == want || job.State == StateFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach state %s in time", jobID, want)
	return nil
}

func newTestRunner(ctx context.Context, st Store) *Runner {
	repo := &fetch.Repository{
		CommitHash: "deadbeef",
		Files: []fetch.File{
			{Path: "main.go", Content: []byte("package main\n")},
		},
	}
	return New(ctx, 2, &fakeFetcher{repo: repo}, fakeChunker{}, fakeEmbedder{dim: 8}, st)
}

func TestEnqueueIsIdempotentWhileJobActive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A store whose DecideReindex blocks forever keeps the job "active"
	// long enough to observe the idempotent re-enqueue.
	block := make(chan struct{})
	st := &blockingStore{release: block}
	defer close(block)

	r := newTestRunner(ctx, st)

	id1, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Give the worker a moment to pick the job up so activeByRepo is set
	// before the second Enqueue races it.
	time.Sleep(20 * time.Millisecond)

	id2, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected idempotent job id, got %s and %s", id1, id2)
	}
}

type blockingStore struct {
	release chan struct{}
}

func (b *blockingStore) DecideReindex(ctx context.Context, repoID, commitHash, embeddingModel string) (store.Decision, error) {
	<-b.release
	return store.DecisionSkip, nil
}

func (b *blockingStore) ReplaceAllChunks(ctx context.Context, repoID string, chunks []chunk.Chunk, vectors [][]float32) error {
	return nil
}

func (b *blockingStore) UpsertChunksForFiles(ctx context.Context, repoID string, filePaths []string, chunks []chunk.Chunk, vectors [][]float32) error {
	return nil
}

func (b *blockingStore) MarkReady(ctx context.Context, repoID, commitHash string) error { return nil }

func (b *blockingStore) MarkFailed(ctx context.Context, repoID string, cause error) error { return nil }

func (b *blockingStore) GetRepoIndex(ctx context.Context, repoID string) (*store.RepoIndex, error) {
	return nil, apperr.New(apperr.NotFound, "not indexed")
}

func TestStatusReturnsNotFoundForUnknownJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRunner(ctx, &fakeStore{decision: store.DecisionSkip})

	_, err := r.Status(ctx, "no-such-job")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", apperr.KindOf(err))
	}
}

func TestRunSkipsWriteWhenDecisionIsSkip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionSkip}
	r := newTestRunner(ctx, st)

	id, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := waitForState(t, r, id, StateCompleted)
	if job.State != StateCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", job.State, job.Error)
	}
	if job.Progress != ProgressComplete {
		t.Fatalf("expected progress %d, got %d", ProgressComplete, job.Progress)
	}
	if st.markedFailed {
		t.Fatal("did not expect MarkFailed on a skip decision")
	}
}

func TestRunFullReindexSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionFullReindex}
	r := newTestRunner(ctx, st)

	id, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := waitForState(t, r, id, StateCompleted)
	if job.State != StateCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", job.State, job.Error)
	}
	if job.Progress != ProgressComplete {
		t.Fatalf("expected progress %d, got %d", ProgressComplete, job.Progress)
	}
}

func TestRunMarksFailedOnFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionFullReindex}
	r := New(ctx, 1, &fakeFetcher{err: errors.New("github is down")}, fakeChunker{}, fakeEmbedder{dim: 8}, st)

	id, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := waitForState(t, r, id, StateFailed)
	if job.State != StateFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if job.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
	if !st.markedFailed {
		t.Fatal("expected MarkFailed to be called")
	}
}

func TestRunMarksFailedOnWriteError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionFullReindex, writeErr: errors.New("constraint violation")}
	r := newTestRunner(ctx, st)

	id, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := waitForState(t, r, id, StateFailed)
	if job.State != StateFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if !st.markedFailed {
		t.Fatal("expected MarkFailed to be called")
	}
}

type ollamaFakeEmbedder struct{ dim int }

func (f ollamaFakeEmbedder) Name() string    { return "ollama/nomic-embed-text" }
func (f ollamaFakeEmbedder) Dimensions() int { return f.dim }
func (f ollamaFakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType embeddings.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func TestRunRefusesWriteOnDevEmbedderModelTagMismatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionFullReindex, existingIndex: &store.RepoIndex{EmbeddingModel: "openai/text-embedding-3-small"}}
	repo := &fetch.Repository{CommitHash: "deadbeef", Files: []fetch.File{{Path: "main.go", Content: []byte("package main\n")}}}
	r := New(ctx, 1, &fakeFetcher{repo: repo}, fakeChunker{}, ollamaFakeEmbedder{dim: 8}, st)

	id, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job := waitForState(t, r, id, StateFailed)
	if job.State != StateFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if !st.markedFailed {
		t.Fatal("expected MarkFailed to be called")
	}
	if !errors.Is(st.failCause, embeddings.ErrModelMismatch) {
		t.Fatalf("expected failCause to wrap ErrModelMismatch, got %v", st.failCause)
	}
	if st.decideReindexCalled {
		t.Fatal("expected DecideReindex never to be called once the model-tag gate refuses the write")
	}
}

func TestEnqueueAllowsReenqueueAfterCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{decision: store.DecisionSkip}
	r := newTestRunner(ctx, st)

	id1, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, r, id1, StateCompleted)

	id2, err := r.Enqueue(ctx, IndexRequest{Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected a new job id once the previous run released the repo")
	}
}
