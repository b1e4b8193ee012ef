// Package retriever turns a natural-language query into a ranked, scored
// set of chunks: embed the query, run a cosine-similarity vector search
// scoped to one repository, drop weak candidates, then rerank by file
// proximity.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/embeddings"
)

// Candidate is one unranked result returned by the vector search.
type Candidate struct {
	ID          string  `json:"id"`
	FilePath    string  `json:"filePath"`
	ChunkIndex  int     `json:"chunkIndex"`
	SymbolName  string  `json:"symbolName,omitempty"`
	Language    string  `json:"language,omitempty"`
	StartLine   int     `json:"startLine"`
	EndLine     int     `json:"endLine"`
	Content     string  `json:"content"`
	VectorScore float64 `json:"vectorScore"`
}

// RetrievedChunk is a ranked, scored chunk ready for context assembly.
type RetrievedChunk struct {
	Candidate
	ProximityBoost float64 `json:"proximityBoost"`
	FinalScore     float64 `json:"finalScore"`
}

// IndexInfo is the subset of recorded index state the retriever needs to
// guard against searching a table embedded with a different model.
type IndexInfo struct {
	EmbeddingModel string
}

// Searcher is the subset of the vector store the retriever depends on.
// internal/store.Store satisfies this directly.
type Searcher interface {
	SearchSimilar(ctx context.Context, repoID string, queryVector []float32, limit int) ([]Candidate, error)
	GetIndexInfo(ctx context.Context, repoID string) (IndexInfo, error)
}

// Options configures one Retrieve call.
type Options struct {
	RepoID              string
	TopK                int
	CandidateMultiplier int
	MinScore            float64
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 8
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = 3
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.3
	}
	return o
}

// Result is the outcome of a Retrieve call.
type Result struct {
	Chunks []RetrievedChunk
}

// Retriever embeds queries and searches a repo-scoped vector store.
type Retriever struct {
	embedder embeddings.Embedder
	search   Searcher
}

// New creates a Retriever.
func New(embedder embeddings.Embedder, search Searcher) *Retriever {
	return &Retriever{embedder: embedder, search: search}
}

// Retrieve embeds query as a RETRIEVAL_QUERY task, searches for
// topK*candidateMultiplier candidates, drops those below minScore, and
// reranks the remainder by file proximity.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	info, err := r.search.GetIndexInfo(ctx, opts.RepoID)
	if err != nil {
		return Result{}, err
	}
	if info.EmbeddingModel != r.embedder.Name() {
		return Result{}, apperr.New(apperr.SchemaMismatch, fmt.Sprintf(
			"index for %s was built with model %q, query embedder is %q", opts.RepoID, info.EmbeddingModel, r.embedder.Name()))
	}

	queryText := embeddings.BuildEmbedText("", "", "", query)
	vectors, err := embeddings.Run(ctx, r.embedder, []string{queryText}, embeddings.TaskRetrievalQuery)
	if err != nil {
		return Result{}, err
	}

	candidates, err := r.search.SearchSimilar(ctx, opts.RepoID, vectors[0], opts.TopK*opts.CandidateMultiplier)
	if err != nil {
		return Result{}, err
	}

	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.VectorScore >= opts.MinScore {
			filtered = append(filtered, c)
		}
	}

	ranked := rerank(filtered, opts.TopK)
	return Result{Chunks: ranked}, nil
}

// rerank applies the file-proximity boost and returns the top n chunks.
func rerank(candidates []Candidate, topK int) []RetrievedChunk {
	if len(candidates) == 0 {
		return nil
	}

	anchorCount := 3
	if anchorCount > len(candidates) {
		anchorCount = len(candidates)
	}
	anchors := make(map[string]bool, anchorCount)
	for i := 0; i < anchorCount; i++ {
		anchors[candidates[i].FilePath] = true
	}

	const boostPerChunk = 0.08
	const maxBoostPerFile = 0.16

	boostedSoFar := make(map[string]int)
	ranked := make([]RetrievedChunk, len(candidates))
	for i, c := range candidates {
		boost := 0.0
		if anchors[c.FilePath] && float64(boostedSoFar[c.FilePath])*boostPerChunk < maxBoostPerFile {
			boost = boostPerChunk
			boostedSoFar[c.FilePath]++
		}
		ranked[i] = RetrievedChunk{
			Candidate:      c,
			ProximityBoost: boost,
			FinalScore:     c.VectorScore + boost,
		}
	}

	originalOrder := make(map[string]int, len(ranked))
	for i, rc := range ranked {
		originalOrder[rc.ID] = i
		_ = i
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].VectorScore != ranked[j].VectorScore {
			return ranked[i].VectorScore > ranked[j].VectorScore
		}
		return originalOrder[ranked[i].ID] < originalOrder[ranked[j].ID]
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
