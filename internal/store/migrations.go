package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id               TEXT PRIMARY KEY,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL,
				scam_detected    INTEGER NOT NULL DEFAULT 0,
				scam_confidence  REAL NOT NULL DEFAULT 0,
				detected_at      TEXT NOT NULL DEFAULT '',
				agent_engaged    INTEGER NOT NULL DEFAULT 0,
				engaged_at       TEXT NOT NULL DEFAULT '',
				engaged_seq      INTEGER NOT NULL DEFAULT 0,
				concluded        INTEGER NOT NULL DEFAULT 0,
				concluded_at     TEXT NOT NULL DEFAULT '',
				callback_sent    INTEGER NOT NULL DEFAULT 0,
				callback_sent_at TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_sessions_updated ON sessions (updated_at);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				seq         INTEGER NOT NULL,
				sender      TEXT NOT NULL,
				text        TEXT NOT NULL,
				sent_at     TEXT NOT NULL DEFAULT '',
				received_at TEXT NOT NULL,
				UNIQUE (session_id, seq)
			);

			CREATE INDEX idx_messages_session ON messages (session_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "create intelligence",
		SQL: `
			CREATE TABLE intelligence (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				category    TEXT NOT NULL,
				value       TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				UNIQUE (session_id, category, value)
			);

			CREATE INDEX idx_intelligence_session ON intelligence (session_id, category);
		`,
	},
}
