package pgstore

// schema is applied by Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sender_eligibility (
		sender_pubkey          TEXT PRIMARY KEY,
		last_used_block_height BIGINT NOT NULL,
		block_time             TIMESTAMPTZ NOT NULL,
		used_inputs            TEXT[] NOT NULL DEFAULT '{}',
		tx_hash                TEXT NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_relay_events (
		id              TEXT PRIMARY KEY,
		event_id        TEXT NOT NULL UNIQUE,
		owner_key       TEXT NOT NULL,
		kind            INTEGER NOT NULL,
		signed_payload  JSONB NOT NULL,
		retry_count     INTEGER NOT NULL DEFAULT 0,
		max_retries     INTEGER NOT NULL,
		status          TEXT NOT NULL,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		last_attempt_at TIMESTAMPTZ,
		published_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS pending_relay_events_sweep
		ON pending_relay_events (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS payment_ledger (
		id            TEXT PRIMARY KEY,
		tx_hash       TEXT NOT NULL UNIQUE,
		sender_pubkey TEXT NOT NULL,
		from_wallet   TEXT NOT NULL,
		total_amount  BIGINT NOT NULL,
		fee           BIGINT NOT NULL,
		output_count  INTEGER NOT NULL,
		intent_count  INTEGER NOT NULL,
		receipts      JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
}
