package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"masthead.app/newsroom/core/db"
	"masthead.app/newsroom/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// RunStore persists runs, document versions, and verdicts. It is the source
// of truth for resume: LoadState rebuilds the controller's working state
// from what was written, so a worker crash loses at most the step in
// flight.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID int64) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	UpdateStatus(ctx context.Context, runID int64, status model.RunStatus) error
	FinishRun(ctx context.Context, runID int64, status model.RunStatus, runErr *string) error
	SaveVersion(ctx context.Context, version *model.DocumentVersion) error
	SaveVerdicts(ctx context.Context, verdicts []model.Verdict) error
	LoadState(ctx context.Context, runID int64) (*model.RunState, error)
}

type PGRunStore struct {
	db *db.DB
}

func NewPGRunStore(database *db.DB) *PGRunStore {
	return &PGRunStore{db: database}
}

func (s *PGRunStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO runs (id, topic, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.Topic, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (s *PGRunStore) GetRun(ctx context.Context, runID int64) (*model.Run, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT id, topic, status, error, created_at, finished_at
		FROM runs WHERE id = $1`, runID)

	var run model.Run
	err := row.Scan(&run.ID, &run.Topic, &run.Status, &run.Error, &run.CreatedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return &run, nil
}

func (s *PGRunStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, topic, status, error, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.ID, &run.Topic, &run.Status, &run.Error, &run.CreatedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PGRunStore) UpdateStatus(ctx context.Context, runID int64, status model.RunStatus) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE runs SET status = $2 WHERE id = $1`, runID, status)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PGRunStore) FinishRun(ctx context.Context, runID int64, status model.RunStatus, runErr *string) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE runs SET status = $2, error = $3, finished_at = now() WHERE id = $1`,
		runID, status, runErr)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PGRunStore) SaveVersion(ctx context.Context, version *model.DocumentVersion) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO document_versions (id, run_id, number, text, created_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		version.ID, version.RunID, version.Number, version.Text, version.CreatedFrom, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving version %d: %w", version.Number, err)
	}
	return nil
}

// SaveVerdicts stores every verdict from one review cycle in a single
// transaction, so resume never sees a half-recorded cycle.
func (s *PGRunStore) SaveVerdicts(ctx context.Context, verdicts []model.Verdict) error {
	if len(verdicts) == 0 {
		return nil
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, v := range verdicts {
			payload, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshaling verdict: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO verdicts (id, run_id, version_number, role, approved, source_issue, malformed, payload, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				v.ID, v.RunID, v.VersionNumber, v.Role, v.Approved, v.SourceIssue, v.Malformed, payload, v.CreatedAt)
			if err != nil {
				return fmt.Errorf("saving %s verdict for version %d: %w", v.Role, v.VersionNumber, err)
			}
		}
		return nil
	})
}

// LoadState rebuilds the run's working state: every version in order, with
// the verdicts each version received. Versions reviewed at crash time but
// missing verdicts simply become the current unreviewed version again.
func (s *PGRunStore) LoadState(ctx context.Context, runID int64) (*model.RunState, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	versions, err := s.loadVersions(ctx, runID)
	if err != nil {
		return nil, err
	}

	verdicts, err := s.loadVerdicts(ctx, runID)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int][]model.Verdict)
	for _, v := range verdicts {
		byVersion[v.VersionNumber] = append(byVersion[v.VersionNumber], v)
	}

	state := &model.RunState{Run: *run}
	for _, version := range versions {
		state.Current = version
		if vs, ok := byVersion[version.Number]; ok {
			state.History = append(state.History, model.Cycle{Version: version, Verdicts: vs})
		}
	}

	return state, nil
}

func (s *PGRunStore) loadVersions(ctx context.Context, runID int64) ([]model.DocumentVersion, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, run_id, number, text, created_from, created_at
		FROM document_versions WHERE run_id = $1 ORDER BY number ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	defer rows.Close()

	var versions []model.DocumentVersion
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(&v.ID, &v.RunID, &v.Number, &v.Text, &v.CreatedFrom, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PGRunStore) loadVerdicts(ctx context.Context, runID int64) ([]model.Verdict, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT payload FROM verdicts
		WHERE run_id = $1 ORDER BY version_number ASC, created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []model.Verdict
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning verdict: %w", err)
		}
		var v model.Verdict
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("unmarshaling verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}
