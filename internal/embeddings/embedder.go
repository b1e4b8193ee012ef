// Package embeddings turns chunk text into vectors, threading a task-type
// discipline through every call so an index-time chunk and a query-time
// question are never embedded with the same instruction when the provider
// distinguishes them, and enforcing a single fixed output dimensionality
// so the vector store's column type is never silently violated.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nocturnelabs/coderag/internal/retryutil"
)

// TaskType distinguishes indexing embeds from query embeds. Providers with
// a native task-type field (Google) honor it directly; providers without
// one (OpenAI, Ollama) accept it as a documented no-op, but the embed text
// built by BuildEmbedText still differs between call sites so mixing
// remains observable.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

// MaxBatchSize is the largest number of texts sent in a single provider
// call, regardless of provider.
const MaxBatchSize = 100

// InterBatchPause is the delay between sequential batch calls, avoiding a
// burst against the embedding API on large repositories.
const InterBatchPause = 200 * time.Millisecond

// RequiredDimensions is the fixed embedding width the vector store column
// is declared with. Every embedder in this package is configured to
// produce vectors of exactly this width.
const RequiredDimensions = 768

// ErrDimensionMismatch is returned when a provider's response doesn't
// match its declared Dimensions().
var ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")

// ErrModelMismatch is returned when a write targets a repo index whose
// recorded embedding model tag differs from the run's embedder.
var ErrModelMismatch = errors.New("embeddings: model tag mismatch with existing index")

// Embedder generates embeddings for one batch of texts at a time.
type Embedder interface {
	// EmbedBatch embeds up to MaxBatchSize texts in a single provider call.
	EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error)

	// Dimensions returns the fixed output width this embedder produces.
	Dimensions() int

	// Name identifies the embedding model, used as the repo index's
	// embedding_model tag.
	Name() string
}

// BuildEmbedText builds the exact text handed to the embedding model,
// prefixing chunk content with a header carrying its file path, symbol
// name, and language. This construction MUST stay identical between
// indexing and query call sites (query text has no file/symbol/language,
// so those fields are simply empty) or the two embedding spaces drift
// apart.
func BuildEmbedText(filePath, symbolName, language, content string) string {
	header := "File: " + filePath
	if symbolName != "" {
		header += " | Symbol: " + symbolName
	}
	if language != "" {
		header += " | Language: " + language
	}
	if filePath == "" {
		return content
	}
	return header + "\n\n" + content
}

// Run embeds all of texts using e, splitting into batches of at most
// MaxBatchSize with InterBatchPause between sequential batches. Each batch
// is retried up to 3 times with exponential backoff; if a batch still
// fails after retries, the whole run aborts and any embeddings already
// produced by earlier batches are discarded, since a ready index implies
// complete for its commit.
func Run(ctx context.Context, e Embedder, texts []string, taskType TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		var result [][]float32
		err := retryutil.Do(ctx, 4, 2*time.Second, nil, func(attempt int) error {
			res, err := e.EmbedBatch(ctx, batch, taskType)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		if len(result) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: got %d embeddings for %d texts", i, end, len(result), len(batch))
		}
		for _, v := range result {
			if len(v) != e.Dimensions() {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.Dimensions())
			}
		}
		all = append(all, result...)

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(InterBatchPause):
			}
		}
	}
	return all, nil
}
