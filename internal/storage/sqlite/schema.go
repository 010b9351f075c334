package sqlite

import "github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage/migrations"

const schemaV1 = `
-- Content-addressed embeddings; hash already includes the model name
CREATE TABLE IF NOT EXISTS embeddings (
    content_hash TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embedding_failures (
    entity_id TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    error TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL,
    failed_at DATETIME NOT NULL
);

-- Inputs of the last rebuild
CREATE TABLE IF NOT EXISTS skills (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    authority TEXT NOT NULL DEFAULT '',
    grade_label TEXT NOT NULL,
    grade INTEGER NOT NULL,
    area TEXT NOT NULL,
    content_domain TEXT NOT NULL,
    updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS taxonomy_nodes (
    id TEXT PRIMARY KEY,
    level INTEGER NOT NULL CHECK(level >= 1 AND level <= 6),
    name TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    path TEXT NOT NULL DEFAULT '',
    annotation TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_taxonomy_parent ON taxonomy_nodes(parent_id);

-- Pair verdicts keyed by canonical pair key
CREATE TABLE IF NOT EXISTS classifications (
    pair_key TEXT PRIMARY KEY,
    hash_a TEXT NOT NULL DEFAULT '',
    hash_b TEXT NOT NULL DEFAULT '',
    label TEXT NOT NULL,
    source TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS variant_groups (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    confidence TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_category ON conflicts(category);

CREATE TABLE IF NOT EXISTS review_items (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    ref TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);

-- Append-only decision ledger
CREATE TABLE IF NOT EXISTS decisions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    action TEXT NOT NULL,
    targets TEXT NOT NULL,
    rationale TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

-- Run manifests
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,
    input_hash TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS checkpoints (
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    item_offset INTEGER NOT NULL,
    done INTEGER NOT NULL DEFAULT 0,
    payload BLOB NOT NULL,
    checksum TEXT NOT NULL,
    version TEXT NOT NULL,
    invalid INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, stage, item_offset),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

-- Audit trail
CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    stage TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
CREATE INDEX IF NOT EXISTS idx_run_events_timestamp ON run_events(timestamp);
`

// Ledger rows are immutable once written.
const schemaV2 = `
CREATE TRIGGER IF NOT EXISTS decisions_no_update
BEFORE UPDATE ON decisions
BEGIN
    SELECT RAISE(ABORT, 'decisions are append-only');
END;

CREATE TRIGGER IF NOT EXISTS decisions_no_delete
BEFORE DELETE ON decisions
BEGIN
    SELECT RAISE(ABORT, 'decisions are append-only');
END;
`

func schemaMigrations() *migrations.Manager {
	return migrations.NewManager(
		migrations.Migration{Version: 1, Description: "initial schema", Up: schemaV1},
		migrations.Migration{Version: 2, Description: "append-only decisions", Up: schemaV2},
	)
}
