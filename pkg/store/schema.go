package store

// Schema for the event log. Event ids are assigned by the store and are
// monotonic and contiguous per thread, so the primary key is the pair
// (thread_id, id). Deleting a thread cascades to its events.
const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	canonical_id TEXT NOT NULL,
	parent_id TEXT REFERENCES threads(id),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_threads_canonical_id ON threads(canonical_id);

CREATE TABLE IF NOT EXISTS events (
	thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	id INTEGER NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (thread_id, id)
);
`
