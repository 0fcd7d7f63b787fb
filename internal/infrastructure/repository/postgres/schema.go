package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101901

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the intake tables. The unique partial index on
// documents.slot_id keeps a slot bound to at most one document.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	category_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	deadline TIMESTAMPTZ,
	contact_email TEXT NOT NULL DEFAULT '',
	manager_email TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checklist_slots (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	required BOOLEAN NOT NULL DEFAULT TRUE,
	status TEXT NOT NULL DEFAULT 'pending',
	validation_rules JSONB NOT NULL DEFAULT '[]'::jsonb,
	validation_results JSONB NOT NULL DEFAULT '[]'::jsonb,
	document_type_id TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_checklist_slots_case ON checklist_slots(case_id, position);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	extracted_data JSONB,
	validation_results JSONB NOT NULL DEFAULT '[]'::jsonb,
	provisional_slot_id TEXT,
	slot_id TEXT REFERENCES checklist_slots(id) ON DELETE SET NULL,
	document_type_id TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_slot ON documents(slot_id) WHERE slot_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_id);

CREATE TABLE IF NOT EXISTS intake_batches (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	document_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	submitted INTEGER NOT NULL DEFAULT 0,
	rejected INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	gate_fired BOOLEAN NOT NULL DEFAULT FALSE,
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	settled_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_intake_batches_case ON intake_batches(case_id, created_at DESC);

CREATE TABLE IF NOT EXISTS questionnaire_templates (
	id TEXT PRIMARY KEY,
	category_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_questionnaire_templates_category ON questionnaire_templates(category_id) WHERE active;

CREATE TABLE IF NOT EXISTS questionnaire_prefills (
	case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
	template_id TEXT NOT NULL REFERENCES questionnaire_templates(id) ON DELETE CASCADE,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (case_id, template_id)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}
