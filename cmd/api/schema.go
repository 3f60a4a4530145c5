package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// bootstrapSchema creates the application tables. River manages its own
// tables through rivermigrate.
func bootstrapSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_update TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_idx ON accounts (email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS credit_history (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	delta INTEGER NOT NULL,
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS credit_history_account_idx ON credit_history (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS codes (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	account_id UUID,
	email TEXT NOT NULL DEFAULT '',
	credits INTEGER NOT NULL DEFAULT 0,
	used BOOLEAN NOT NULL DEFAULT FALSE,
	used_at TIMESTAMPTZ,
	used_by UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS codes_lookup_idx ON codes (kind, value) WHERE NOT used;

CREATE TABLE IF NOT EXISTS processing_runs (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	status TEXT NOT NULL DEFAULT 'QUEUED',
	total INTEGER NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	last_balance INTEGER,
	results JSONB,
	failures JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS processing_runs_account_idx ON processing_runs (account_id, created_at DESC);
`
	_, err := pool.Exec(ctx, ddl)
	return err
}
