package postgres

// schemaTemplate is the DDL for the PostgreSQL backend. The single %d verb is
// the embedding dimension, which pgvector requires at column-definition time.
// All statements are idempotent so the schema can be re-applied on every open.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS memories (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    content     TEXT NOT NULL,
    embedding   vector(%d) NOT NULL,
    memory_type TEXT NOT NULL DEFAULT 'general',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_updated ON memories(user_id, updated_at);

-- ivfflat accelerates the cosine-distance ORDER BY once the table has data.
CREATE INDEX IF NOT EXISTS idx_memories_embedding_cosine
    ON memories USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
