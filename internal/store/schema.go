package store

import (
	"context"
	"fmt"
)

// EnsureSchema creates the run tables if they do not exist. Called once at
// service startup.
func (s *PGRunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Pool().Exec(ctx, `
CREATE TABLE IF NOT EXISTS runs (
  id BIGINT PRIMARY KEY,
  topic TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  finished_at TIMESTAMP WITH TIME ZONE
);

CREATE TABLE IF NOT EXISTS document_versions (
  id BIGINT PRIMARY KEY,
  run_id BIGINT NOT NULL REFERENCES runs (id),
  number INT NOT NULL,
  text TEXT NOT NULL,
  created_from TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (run_id, number)
);

CREATE TABLE IF NOT EXISTS verdicts (
  id BIGINT PRIMARY KEY,
  run_id BIGINT NOT NULL REFERENCES runs (id),
  version_number INT NOT NULL,
  role TEXT NOT NULL,
  approved BOOLEAN NOT NULL,
  source_issue BOOLEAN NOT NULL DEFAULT FALSE,
  malformed BOOLEAN NOT NULL DEFAULT FALSE,
  payload JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  UNIQUE (run_id, version_number, role)
);
CREATE INDEX IF NOT EXISTS idx_document_versions_run_id ON document_versions (run_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_run_id ON verdicts (run_id);
`)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
