// Package store is the Postgres/pgvector-backed persistence layer for
// repository indexing state and embedded chunks, grounded on the
// PostgresStore/VectorStore split used for relational and vector data in
// the reference git-analysis service, generalized to one repo-scoped table
// pair and a commit/model aware reindex decision.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/chunk"
	"github.com/nocturnelabs/coderag/internal/retriever"
)

// Status is the closed set of repo_index.status values.
type Status string

const (
	StatusPending  Status = "pending"
	StatusIndexing Status = "indexing"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// Decision is the outcome of comparing a repo's recorded index state
// against the commit and embedding model of an incoming index request.
type Decision string

const (
	DecisionSkip        Decision = "skipped"
	DecisionUpsert       Decision = "upsert"
	DecisionFullReindex Decision = "full-reindex"
)

// RepoIndex is the persisted indexing state for one repository.
type RepoIndex struct {
	RepoID         string
	CommitHash     string
	EmbeddingModel string
	Status         Status
	ChunkCount     int
	LastError      string
	UpdatedAt      time.Time
}

// Store wraps a Postgres connection configured for pgvector.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open postgres", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "ping postgres", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperr.Wrap(apperr.Internal, "apply schema", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// repoLockKey derives a stable advisory-lock key from a repo ID with 64-bit
// FNV-1a, so every process computes the same key for the same repo ID and
// contending processes serialize on it.
func repoLockKey(repoID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(repoID))
	return int64(h.Sum64())
}

// DecideReindex compares the incoming commit hash and embedding model
// against the repository's recorded state under a per-repo Postgres
// advisory transaction lock, so two concurrent index requests for the same
// repo cannot both decide "full-reindex" and race each other's writes.
//
// skipped: commit hash and embedding model both unchanged.
// upsert: commit hash changed but embedding model did not (the caller
// replaces the existing chunks of every file it passes to
// UpsertChunksForFiles; chunks of other files are kept).
// full-reindex: embedding model changed, no prior record, or the prior
// record is in a failed state.
func (s *Store) DecideReindex(ctx context.Context, repoID, commitHash, embeddingModel string) (Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "begin reindex decision tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, repoLockKey(repoID)); err != nil {
		return "", apperr.Wrap(apperr.Internal, "acquire repo lock", err)
	}

	var existing RepoIndex
	row := tx.QueryRowContext(ctx,
		`SELECT commit_hash, embedding_model, status FROM repo_index WHERE repo_id = $1`, repoID)
	err = row.Scan(&existing.CommitHash, &existing.EmbeddingModel, &existing.Status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.insertPending(ctx, tx, repoID, commitHash, embeddingModel); err != nil {
			return "", err
		}
		return DecisionFullReindex, tx.Commit()
	case err != nil:
		return "", apperr.Wrap(apperr.Internal, "read repo index state", err)
	}

	decision := DecisionSkip
	switch {
	case existing.Status == StatusFailed:
		decision = DecisionFullReindex
	case existing.EmbeddingModel != embeddingModel:
		decision = DecisionFullReindex
	case existing.CommitHash != commitHash:
		decision = DecisionUpsert
	}

	if decision != DecisionSkip {
		if _, err := tx.ExecContext(ctx,
			`UPDATE repo_index SET status = $1, updated_at = NOW() WHERE repo_id = $2`,
			StatusIndexing, repoID,
		); err != nil {
			return "", apperr.Wrap(apperr.Internal, "mark repo indexing", err)
		}
	}

	return decision, tx.Commit()
}

func (s *Store) insertPending(ctx context.Context, tx *sql.Tx, repoID, commitHash, embeddingModel string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO repo_index (repo_id, commit_hash, embedding_model, status, chunk_count)
		 VALUES ($1, $2, $3, $4, 0)
		 ON CONFLICT (repo_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`,
		repoID, commitHash, embeddingModel, StatusIndexing,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert repo index row", err)
	}
	return nil
}

// ReplaceAllChunks deletes every chunk recorded for repoID and inserts the
// given set, used for full-reindex and initial-index decisions.
func (s *Store) ReplaceAllChunks(ctx context.Context, repoID string, chunks []chunk.Chunk, embeddings [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin replace-chunks tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE repo_id = $1`, repoID); err != nil {
		return apperr.Wrap(apperr.Internal, "delete existing chunks", err)
	}
	if err := insertChunks(ctx, tx, repoID, chunks, embeddings); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertChunksForFiles deletes and re-inserts chunks scoped to the given
// file paths only, used for the upsert reindex decision where most of the
// repository's files are unchanged.
func (s *Store) UpsertChunksForFiles(ctx context.Context, repoID string, filePaths []string, chunks []chunk.Chunk, embeddings [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin upsert-chunks tx", err)
	}
	defer tx.Rollback()

	if len(filePaths) > 0 {
		placeholders := make([]string, len(filePaths))
		args := make([]interface{}, 0, len(filePaths)+1)
		args = append(args, repoID)
		for i, p := range filePaths {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, p)
		}
		q := fmt.Sprintf(`DELETE FROM code_chunks WHERE repo_id = $1 AND file_path IN (%s)`, strings.Join(placeholders, ","))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return apperr.Wrap(apperr.Internal, "delete changed-file chunks", err)
		}
	}
	if err := insertChunks(ctx, tx, repoID, chunks, embeddings); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, repoID string, chunks []chunk.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return apperr.New(apperr.Internal, "chunk count does not match embedding count")
	}
	if len(chunks) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_chunks (id, repo_id, file_path, chunk_index, symbol_name, language, start_line, end_line, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "prepare chunk insert", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		var symbolName sql.NullString
		if c.SymbolName != nil {
			symbolName = sql.NullString{String: *c.SymbolName, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, repoID, c.FilePath, c.ChunkIndex, symbolName, c.Language,
			c.StartLine, c.EndLine, c.Content, vectorToString(embeddings[i]),
		)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "insert chunk", err)
		}
	}
	return nil
}

// MarkReady records a successful index pass.
func (s *Store) MarkReady(ctx context.Context, repoID, commitHash string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_chunks WHERE repo_id = $1`, repoID).Scan(&count); err != nil {
		return apperr.Wrap(apperr.Internal, "count chunks", err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE repo_index SET status = $1, commit_hash = $2, chunk_count = $3, last_error = NULL, updated_at = NOW() WHERE repo_id = $4`,
		StatusReady, commitHash, count, repoID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark repo ready", err)
	}
	return nil
}

// MarkFailed records a failed index pass without discarding prior chunks,
// so they stay searchable; the next DecideReindex on a failed record
// returns full-reindex.
func (s *Store) MarkFailed(ctx context.Context, repoID string, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repo_index SET status = $1, last_error = $2, updated_at = NOW() WHERE repo_id = $3`,
		StatusFailed, cause.Error(), repoID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark repo failed", err)
	}
	return nil
}

// GetRepoIndex returns the recorded indexing state for a repo.
func (s *Store) GetRepoIndex(ctx context.Context, repoID string) (*RepoIndex, error) {
	var ri RepoIndex
	var lastError sql.NullString
	ri.RepoID = repoID
	row := s.db.QueryRowContext(ctx,
		`SELECT commit_hash, embedding_model, status, chunk_count, last_error, updated_at FROM repo_index WHERE repo_id = $1`, repoID)
	err := row.Scan(&ri.CommitHash, &ri.EmbeddingModel, &ri.Status, &ri.ChunkCount, &lastError, &ri.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "repo index not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read repo index", err)
	}
	ri.LastError = lastError.String
	return &ri, nil
}

// GetIndexInfo returns the subset of recorded index state
// internal/retriever needs to refuse a search against a mismatched
// embedding model.
func (s *Store) GetIndexInfo(ctx context.Context, repoID string) (retriever.IndexInfo, error) {
	ri, err := s.GetRepoIndex(ctx, repoID)
	if err != nil {
		return retriever.IndexInfo{}, err
	}
	return retriever.IndexInfo{EmbeddingModel: ri.EmbeddingModel}, nil
}

// SearchSimilar runs a cosine-distance ANN search scoped to one repo,
// satisfying internal/retriever.Searcher.
func (s *Store) SearchSimilar(ctx context.Context, repoID string, queryVector []float32, limit int) ([]retriever.Candidate, error) {
	vectorStr := vectorToString(queryVector)
	query := `
		SELECT id, file_path, chunk_index, COALESCE(symbol_name, ''), COALESCE(language, ''),
		       start_line, end_line, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM code_chunks
		WHERE repo_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, vectorStr, repoID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "search similar chunks", err)
	}
	defer rows.Close()

	var results []retriever.Candidate
	for rows.Next() {
		var c retriever.Candidate
		if err := rows.Scan(&c.ID, &c.FilePath, &c.ChunkIndex, &c.SymbolName, &c.Language,
			&c.StartLine, &c.EndLine, &c.Content, &c.VectorScore); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan similar chunk", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteByRepoID removes all recorded state for a repository.
func (s *Store) DeleteByRepoID(ctx context.Context, repoID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin delete tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE repo_id = $1`, repoID); err != nil {
		return apperr.Wrap(apperr.Internal, "delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM repo_index WHERE repo_id = $1`, repoID); err != nil {
		return apperr.Wrap(apperr.Internal, "delete repo index", err)
	}
	return tx.Commit()
}

// vectorToString converts a float32 slice to pgvector's literal encoding:
// [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
