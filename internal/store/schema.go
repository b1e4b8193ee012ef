package store

// schema is executed once by migrate. It is idempotent (IF NOT EXISTS
// throughout) so repeated startups against an already-migrated database are
// cheap no-ops.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS repo_index (
	repo_id         TEXT PRIMARY KEY,
	commit_hash     TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	chunk_count     INT NOT NULL DEFAULT 0,
	last_error      TEXT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS code_chunks (
	id           TEXT PRIMARY KEY,
	repo_id      TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	chunk_index  INT NOT NULL,
	symbol_name  TEXT,
	language     TEXT,
	start_line   INT NOT NULL,
	end_line     INT NOT NULL,
	content      TEXT NOT NULL,
	embedding    vector(768) NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS code_chunks_repo_id_idx ON code_chunks (repo_id);
CREATE INDEX IF NOT EXISTS code_chunks_file_path_idx ON code_chunks (repo_id, file_path);
`
