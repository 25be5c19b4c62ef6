package sqlite

// Schema is the embedded DDL for the SQLite backend. All statements are
// idempotent so the schema can be re-applied on every open.
//
// Timestamps are stored as integer nanoseconds (updated_at drives both
// retrieval metadata and oldest-first eviction).
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	dimension   INTEGER NOT NULL,
	content     TEXT NOT NULL,
	memory_type TEXT NOT NULL DEFAULT 'general',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_updated ON memories(user_id, updated_at);
`
