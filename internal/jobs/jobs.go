// Package jobs runs the fetch-filter-chunk-embed-write pipeline
// asynchronously behind a fixed-size worker pool, keyed so at most one job
// is ever active per repository, grounded on internal/indexer/pipeline.go's
// stage sequencing and internal/progress/reporter.go's percentage-based
// progress reporting.
package jobs

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/chunk"
	"github.com/nocturnelabs/coderag/internal/embeddings"
	"github.com/nocturnelabs/coderag/internal/fetch"
	"github.com/nocturnelabs/coderag/internal/filter"
	"github.com/nocturnelabs/coderag/internal/store"
)

// State is the closed set of job lifecycle states.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Progress checkpoints matching the five pipeline stages.
const (
	ProgressFetch    = 20
	ProgressFilter   = 40
	ProgressChunk    = 70
	ProgressEmbed    = 90
	ProgressComplete = 100
)

// IndexRequest names the repository to index.
type IndexRequest struct {
	Owner string
	Name  string
}

func (r IndexRequest) repoID() string { return r.Owner + "/" + r.Name }

// Job is the observable state of one index run.
type Job struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repoId"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fetcher resolves a repository's default branch and file contents.
// *fetch.Fetcher satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, owner, name string, opts fetch.Options) (*fetch.Repository, error)
}

// Chunker splits one file's content into chunks. *chunk.Chunker satisfies
// this.
type Chunker interface {
	Chunk(repoID, filePath, language, content string) (chunk.Result, error)
}

// Store persists the reindex decision and the resulting chunks.
// *store.Store satisfies this.
type Store interface {
	DecideReindex(ctx context.Context, repoID, commitHash, embeddingModel string) (store.Decision, error)
	ReplaceAllChunks(ctx context.Context, repoID string, chunks []chunk.Chunk, vectors [][]float32) error
	UpsertChunksForFiles(ctx context.Context, repoID string, filePaths []string, chunks []chunk.Chunk, vectors [][]float32) error
	MarkReady(ctx context.Context, repoID, commitHash string) error
	MarkFailed(ctx context.Context, repoID string, cause error) error
	GetRepoIndex(ctx context.Context, repoID string) (*store.RepoIndex, error)
}

// Runner drains a bounded-concurrency FIFO queue of index jobs, one job per
// repository at a time.
type Runner struct {
	fetcher  Fetcher
	chunker  Chunker
	embedder embeddings.Embedder
	store    Store

	mu           sync.Mutex
	jobs         map[string]*Job
	activeByRepo map[string]string // repoID -> jobID, only while waiting/active

	queue chan string
	sem   *semaphore.Weighted
}

// New creates a Runner and starts workerConcurrency worker goroutines.
// The workers exit when ctx is cancelled.
func New(ctx context.Context, workerConcurrency int, fetcher Fetcher, chunker Chunker, embedder embeddings.Embedder, st Store) *Runner {
	if workerConcurrency <= 0 {
		workerConcurrency = 2
	}
	r := &Runner{
		fetcher:      fetcher,
		chunker:      chunker,
		embedder:     embedder,
		store:        st,
		jobs:         make(map[string]*Job),
		activeByRepo: make(map[string]string),
		queue:        make(chan string, 1024),
		sem:          semaphore.NewWeighted(int64(workerConcurrency)),
	}
	for i := 0; i < workerConcurrency; i++ {
		go r.worker(ctx)
	}
	return r
}

func (r *Runner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
			r.run(ctx, jobID)
			r.sem.Release(1)
		}
	}
}

// Enqueue queues an index run for the given repository. If the repo
// already has a waiting or active job, that job's ID is returned instead
// of creating a new one.
func (r *Runner) Enqueue(ctx context.Context, req IndexRequest) (string, error) {
	repoID := req.repoID()

	r.mu.Lock()
	if existingID, ok := r.activeByRepo[repoID]; ok {
		if existing := r.jobs[existingID]; existing.State == StateWaiting || existing.State == StateActive {
			r.mu.Unlock()
			return existingID, nil
		}
	}
	job := &Job{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		State:     StateWaiting,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.jobs[job.ID] = job
	r.activeByRepo[repoID] = job.ID
	r.mu.Unlock()

	select {
	case r.queue <- job.ID:
	default:
		return "", apperr.New(apperr.Internal, "job queue full")
	}
	return job.ID, nil
}

// Status returns the current state of a job.
func (r *Runner) Status(ctx context.Context, jobID string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "job not found")
	}
	cp := *job
	return &cp, nil
}

func (r *Runner) update(jobID string, mutate func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	mutate(job)
	job.UpdatedAt = time.Now()
}

func (r *Runner) release(repoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeByRepo, repoID)
}

func (r *Runner) run(ctx context.Context, jobID string) {
	r.mu.Lock()
	job := r.jobs[jobID]
	r.mu.Unlock()
	if job == nil {
		return
	}
	repoID := job.RepoID
	defer r.release(repoID)

	r.update(jobID, func(j *Job) { j.State = StateActive })

	owner, name, ok := splitRepoID(repoID)
	if !ok {
		r.fail(jobID, repoID, apperr.New(apperr.BadInput, "malformed repo id"))
		return
	}

	repo, err := r.fetcher.Fetch(ctx, owner, name, fetch.Options{})
	if err != nil {
		r.fail(jobID, repoID, err)
		return
	}
	r.update(jobID, func(j *Job) { j.Progress = ProgressFetch })

	filtered := filter.Apply(repo.Files)
	r.update(jobID, func(j *Job) { j.Progress = ProgressFilter })

	if err := r.checkDevEmbedderModelTag(ctx, repoID); err != nil {
		r.fail(jobID, repoID, err)
		return
	}

	decision, err := r.store.DecideReindex(ctx, repoID, repo.CommitHash, r.embedder.Name())
	if err != nil {
		r.fail(jobID, repoID, err)
		return
	}
	if decision == store.DecisionSkip {
		r.update(jobID, func(j *Job) { j.State = StateCompleted; j.Progress = ProgressComplete })
		return
	}

	var chunks []chunk.Chunk
	var changedFiles []string
	for _, f := range filtered.Accepted {
		lang := filter.Language(f.Path)
		res, err := r.chunker.Chunk(repoID, f.Path, lang, string(f.Content))
		if err != nil {
			log.Printf("jobs: chunk %s: %v", f.Path, err)
			continue
		}
		chunks = append(chunks, res.Chunks...)
		changedFiles = append(changedFiles, f.Path)
	}
	r.update(jobID, func(j *Job) { j.Progress = ProgressChunk })

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		symbol := ""
		if c.SymbolName != nil {
			symbol = *c.SymbolName
		}
		texts[i] = embeddings.BuildEmbedText(c.FilePath, symbol, c.Language, c.Content)
	}
	vectors, err := embeddings.Run(ctx, r.embedder, texts, embeddings.TaskRetrievalDocument)
	if err != nil {
		r.fail(jobID, repoID, err)
		return
	}
	r.update(jobID, func(j *Job) { j.Progress = ProgressEmbed })

	if decision == store.DecisionFullReindex {
		err = r.store.ReplaceAllChunks(ctx, repoID, chunks, vectors)
	} else {
		err = r.store.UpsertChunksForFiles(ctx, repoID, changedFiles, chunks, vectors)
	}
	if err != nil {
		r.fail(jobID, repoID, err)
		return
	}

	if err := r.store.MarkReady(ctx, repoID, repo.CommitHash); err != nil {
		r.fail(jobID, repoID, err)
		return
	}

	r.update(jobID, func(j *Job) { j.State = StateCompleted; j.Progress = ProgressComplete })
}

func (r *Runner) fail(jobID, repoID string, cause error) {
	log.Printf("jobs: %s failed: %v", repoID, cause)
	if err := r.store.MarkFailed(context.Background(), repoID, cause); err != nil {
		log.Printf("jobs: mark failed for %s: %v", repoID, err)
	}
	r.update(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = cause.Error()
	})
}

// checkDevEmbedderModelTag refuses a write, before any chunk reaches the
// writer, when the run's embedder is the dev-only Ollama fallback and an
// already-indexed repo's declared model tag doesn't match it. This keeps a
// local dev run from ever looking like a legitimate full-reindex trigger
// against a production index built with a different provider.
func (r *Runner) checkDevEmbedderModelTag(ctx context.Context, repoID string) error {
	name := r.embedder.Name()
	if !strings.HasPrefix(name, "ollama/") {
		return nil
	}
	existing, err := r.store.GetRepoIndex(ctx, repoID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil
		}
		return err
	}
	if existing.EmbeddingModel != name {
		return apperr.Wrap(apperr.BadInput, "dev embedder model tag does not match existing index", embeddings.ErrModelMismatch)
	}
	return nil
}

func splitRepoID(repoID string) (owner, name string, ok bool) {
	for i := 0; i < len(repoID); i++ {
		if repoID[i] == '/' {
			return repoID[:i], repoID[i+1:], true
		}
	}
	return "", "", false
}
