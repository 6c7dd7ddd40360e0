package store

// schemaStatements creates tables additively. Every statement is
// IF NOT EXISTS / ADD COLUMN-guarded so a fresh database and an
// upgraded one converge on the same shape.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS libraries (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		recursive  INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS items (
		id                   TEXT PRIMARY KEY,
		library_id           TEXT NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		path                 TEXT NOT NULL,
		filename             TEXT NOT NULL,
		size                 INTEGER NOT NULL,
		mtime                TEXT NOT NULL,
		fingerprint          TEXT NOT NULL,
		media_type           TEXT NOT NULL,
		status               TEXT NOT NULL,
		last_completed_stage TEXT NOT NULL DEFAULT '',
		progress             REAL NOT NULL DEFAULT 0,
		error_code           TEXT NOT NULL DEFAULT '',
		error_message        TEXT NOT NULL DEFAULT '',
		duration             REAL NOT NULL DEFAULT 0,
		width                INTEGER NOT NULL DEFAULT 0,
		height               INTEGER NOT NULL DEFAULT 0,
		fps                  REAL NOT NULL DEFAULT 0,
		codecs               TEXT NOT NULL DEFAULT '',
		container            TEXT NOT NULL DEFAULT '',
		creation_time        TEXT,
		camera_make          TEXT NOT NULL DEFAULT '',
		camera_model         TEXT NOT NULL DEFAULT '',
		gps                  TEXT NOT NULL DEFAULT '',
		is_live_component    INTEGER NOT NULL DEFAULT 0,
		live_pair_id         TEXT NOT NULL DEFAULT '',
		indexed_at           TEXT,
		created_at           TEXT NOT NULL,
		transcript           TEXT NOT NULL DEFAULT '',
		UNIQUE (library_id, path)
	)`,

	`CREATE TABLE IF NOT EXISTS item_metadata (
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		key     TEXT NOT NULL,
		value   TEXT NOT NULL,
		PRIMARY KEY (item_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS transcript_segments (
		id         TEXT PRIMARY KEY,
		item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		start_ms   INTEGER NOT NULL,
		end_ms     INTEGER NOT NULL,
		text       TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS frames (
		id             TEXT PRIMARY KEY,
		item_id        TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		idx            INTEGER NOT NULL,
		timestamp_ms   INTEGER NOT NULL,
		thumbnail_path TEXT NOT NULL DEFAULT '',
		colors         TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS detections (
		id           TEXT PRIMARY KEY,
		item_id      TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		frame_id     TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		timestamp_ms INTEGER NOT NULL,
		label        TEXT NOT NULL,
		confidence   REAL NOT NULL,
		bbox         TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS persons (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		face_count        INTEGER NOT NULL DEFAULT 0,
		thumbnail_face_id TEXT NOT NULL DEFAULT '',
		recognition_mode  TEXT NOT NULL DEFAULT 'average',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS faces (
		id                    TEXT PRIMARY KEY,
		item_id               TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		frame_id              TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
		timestamp_ms          INTEGER NOT NULL,
		bbox                  TEXT NOT NULL,
		confidence            REAL NOT NULL,
		crop_path             TEXT NOT NULL DEFAULT '',
		embedding             BLOB,
		person_id             TEXT NOT NULL DEFAULT '',
		cluster_id            TEXT NOT NULL DEFAULT '',
		assignment_source     TEXT NOT NULL DEFAULT '',
		assignment_confidence REAL NOT NULL DEFAULT 0,
		assigned_at           TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS face_examples (
		face_id   TEXT NOT NULL REFERENCES faces(id) ON DELETE CASCADE,
		person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		kind      TEXT NOT NULL,
		PRIMARY KEY (face_id, person_id, kind)
	)`,

	`CREATE TABLE IF NOT EXISTS pair_thresholds (
		person_a  TEXT NOT NULL,
		person_b  TEXT NOT NULL,
		threshold REAL NOT NULL,
		PRIMARY KEY (person_a, person_b)
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id            TEXT PRIMARY KEY,
		item_id       TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		status        TEXT NOT NULL,
		current_stage TEXT NOT NULL DEFAULT '',
		progress      REAL NOT NULL DEFAULT 0,
		message       TEXT NOT NULL DEFAULT '',
		error_code    TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS favorites (
		kind      TEXT NOT NULL,
		target_id TEXT NOT NULL,
		PRIMARY KEY (kind, target_id)
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		tag     TEXT NOT NULL,
		PRIMARY KEY (item_id, tag)
	)`,
}

// indexStatements run after schemaStatements so freshly added columns
// can be indexed in the same boot.
var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_items_library ON items(library_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_fingerprint ON items(library_id, fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_items_status ON items(status)`,
	`CREATE INDEX IF NOT EXISTS idx_items_mtime ON items(mtime)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_segments_item ON transcript_segments(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_frames_item ON frames(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_item ON detections(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_frame ON detections(frame_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_label ON detections(label)`,
	`CREATE INDEX IF NOT EXISTS idx_faces_item ON faces(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_faces_person ON faces(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_faces_cluster ON faces(cluster_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_item ON jobs(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag)`,
}

// SchemaVersion identifies the shape above for backup/restore payloads.
const SchemaVersion = 1
