package pgstore

// schema is applied in order by Migrate. Every statement is idempotent.
//
// Datasets are stored as JSONB documents. The columns next to the document
// carry the values the store filters, orders and constrains on.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS version_sets (
		id      UUID PRIMARY KEY,
		created TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS permissions (
		id      UUID PRIMARY KEY,
		editors JSONB NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS datasets (
		id                    UUID PRIMARY KEY,
		catalog_id            TEXT NOT NULL DEFAULT '',
		persistent_identifier TEXT NOT NULL DEFAULT '',
		normalized_doi        TEXT NOT NULL DEFAULT '',
		state                 TEXT NOT NULL,
		draft_of              UUID,
		version_set_id        UUID REFERENCES version_sets (id),
		version               INTEGER NOT NULL DEFAULT 1,
		created               TIMESTAMPTZ NOT NULL,
		removed               TIMESTAMPTZ,
		document              JSONB NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS datasets_catalog_pid_key
		ON datasets (catalog_id, persistent_identifier)
		WHERE persistent_identifier <> '' AND catalog_id <> ''`,

	`CREATE UNIQUE INDEX IF NOT EXISTS datasets_draft_of_key
		ON datasets (draft_of)
		WHERE draft_of IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS datasets_version_set_idx
		ON datasets (version_set_id, version, created)`,

	`CREATE INDEX IF NOT EXISTS datasets_normalized_doi_idx
		ON datasets (normalized_doi)
		WHERE normalized_doi <> ''`,

	`CREATE TABLE IF NOT EXISTS doi_claims (
		doi        TEXT PRIMARY KEY,
		dataset_id UUID NOT NULL UNIQUE REFERENCES datasets (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS dataset_snapshots (
		id                 UUID PRIMARY KEY,
		dataset_id         UUID NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
		reason             TEXT NOT NULL,
		state              TEXT NOT NULL,
		published_revision INTEGER NOT NULL,
		draft_revision     INTEGER NOT NULL,
		created            TIMESTAMPTZ NOT NULL,
		document           JSONB NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS dataset_snapshots_dataset_idx
		ON dataset_snapshots (dataset_id, created)`,
}
