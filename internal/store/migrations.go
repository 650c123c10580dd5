package store

// migration is a single schema step. Statements use only types and
// syntax accepted by both SQLite and PostgreSQL.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS accounts (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL,
				provider        TEXT NOT NULL,
				email           TEXT NOT NULL,
				active          INTEGER NOT NULL DEFAULT 1,
				reauth_required INTEGER NOT NULL DEFAULT 0,
				access_token    TEXT NOT NULL DEFAULT '',
				refresh_token   TEXT NOT NULL DEFAULT '',
				token_expiry    TIMESTAMP,
				imap_host       TEXT NOT NULL DEFAULT '',
				imap_port       INTEGER NOT NULL DEFAULT 0,
				imap_password   TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMP NOT NULL,
				updated_at      TIMESTAMP NOT NULL,
				UNIQUE (user_id, provider, email)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts (user_id)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id                  TEXT PRIMARY KEY,
				account_id          TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
				provider_message_id TEXT NOT NULL,
				sender              TEXT NOT NULL DEFAULT '',
				recipients          TEXT NOT NULL DEFAULT '',
				subject             TEXT NOT NULL DEFAULT '',
				body                TEXT NOT NULL DEFAULT '',
				received_at         TIMESTAMP NOT NULL,
				is_read             INTEGER NOT NULL DEFAULT 0,
				ai_intent           TEXT,
				ai_sentiment        TEXT,
				ai_priority         TEXT,
				ai_summary          TEXT,
				created_at          TIMESTAMP NOT NULL,
				UNIQUE (account_id, provider_message_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_received ON messages (received_at)`,
			`CREATE TABLE IF NOT EXISTS draft_replies (
				id         TEXT PRIMARY KEY,
				message_id TEXT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
				reply_text TEXT NOT NULL,
				status     TEXT NOT NULL DEFAULT 'pending',
				sent_at    TIMESTAMP,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_draft_replies_message ON draft_replies (message_id)`,
			`CREATE TABLE IF NOT EXISTS catalog_entries (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				name        TEXT NOT NULL,
				sku         TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				price       DOUBLE PRECISION,
				category    TEXT NOT NULL DEFAULT '',
				available   INTEGER NOT NULL DEFAULT 1,
				metadata    TEXT,
				created_at  TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_catalog_user ON catalog_entries (user_id)`,
		},
	},
}
