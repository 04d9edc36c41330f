package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/domain/workflow"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqlite.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `project_id, region, current_stage, implementing_agency, nodal_agency,
	monitoring_agency, executing_agencies, version, created_at, updated_at`

// Create inserts a new record with its initial history at version 1
func (r *WorkflowRepository) Create(ctx context.Context, state *entity.WorkflowState) error {
	executing, err := json.Marshal(nonNil(state.ExecutingAgencies))
	if err != nil {
		return fmt.Errorf("failed to encode executing agencies: %w", err)
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`
	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		state.ProjectID,
		state.Region,
		string(state.CurrentStage),
		state.ImplementingAgency,
		state.NodalAgency,
		state.MonitoringAgency,
		string(executing),
		state.CreatedAt.UTC(),
		state.UpdatedAt.UTC(),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("project %s: %w", state.ProjectID, port.ErrWorkflowExists)
		}
		r.logger.Error("Failed to create workflow", zap.String("project_id", state.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	if err := r.insertHistory(ctx, state.ProjectID, 0, state.History); err != nil {
		return err
	}

	state.Version = 1
	return nil
}

// GetByProjectID loads a record with its full history
func (r *WorkflowRepository) GetByProjectID(ctx context.Context, projectID string) (*entity.WorkflowState, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE project_id = ?`

	state, err := scanWorkflow(r.db.Executor(ctx).QueryRowContext(ctx, query, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	history, err := r.loadHistory(ctx, `WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	state.History = history[projectID]
	return state, nil
}

// Save updates the record if nobody else has since it was loaded, then
// appends the new history rows.
func (r *WorkflowRepository) Save(ctx context.Context, state *entity.WorkflowState, appended []entity.HistoryEvent) error {
	executing, err := json.Marshal(nonNil(state.ExecutingAgencies))
	if err != nil {
		return fmt.Errorf("failed to encode executing agencies: %w", err)
	}

	query := `
		UPDATE workflows
		SET region = ?, current_stage = ?, implementing_agency = ?, nodal_agency = ?,
			monitoring_agency = ?, executing_agencies = ?, version = version + 1, updated_at = ?
		WHERE project_id = ? AND version = ?
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		state.Region,
		string(state.CurrentStage),
		state.ImplementingAgency,
		state.NodalAgency,
		state.MonitoringAgency,
		string(executing),
		state.UpdatedAt.UTC(),
		state.ProjectID,
		state.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("project_id", state.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project %s at version %d: %w", state.ProjectID, state.Version, port.ErrVersionConflict)
	}

	// appended is already part of state.History
	start := len(state.History) - len(appended)
	if start < 0 {
		return fmt.Errorf("appended history longer than state history")
	}
	if err := r.insertHistory(ctx, state.ProjectID, start, appended); err != nil {
		return err
	}

	state.Version++
	return nil
}

// List returns every workflow ordered by creation time
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.WorkflowState, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at, project_id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var states []*entity.WorkflowState
	for rows.Next() {
		state, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	history, err := r.loadHistory(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		s.History = history[s.ProjectID]
	}
	return states, nil
}

func (r *WorkflowRepository) insertHistory(ctx context.Context, projectID string, startSeq int, events []entity.HistoryEvent) error {
	query := `
		INSERT INTO workflow_history (
			project_id, seq, stage, actor, action, notes, metadata, recipients, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	exec := r.db.Executor(ctx)
	for i, e := range events {
		var metadata sql.NullString
		if e.Metadata != nil {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode history metadata: %w", err)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}
		recipients, err := json.Marshal(nonNil(e.Recipients))
		if err != nil {
			return fmt.Errorf("failed to encode history recipients: %w", err)
		}

		if _, err := exec.ExecContext(ctx, query,
			projectID,
			startSeq+i,
			string(e.Stage),
			e.Actor,
			e.Action,
			e.Notes,
			metadata,
			string(recipients),
			e.Timestamp.UTC(),
		); err != nil {
			r.logger.Error("Failed to insert history",
				zap.String("project_id", projectID),
				zap.Int("seq", startSeq+i),
				zap.Error(err))
			return fmt.Errorf("failed to insert history: %w", err)
		}
	}
	return nil
}

// loadHistory returns history rows grouped by project, in append order
func (r *WorkflowRepository) loadHistory(ctx context.Context, where string, args ...interface{}) (map[string][]entity.HistoryEvent, error) {
	query := `
		SELECT project_id, stage, actor, action, notes, metadata, recipients, timestamp
		FROM workflow_history ` + where + `
		ORDER BY project_id, seq
	`
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to load history", zap.Error(err))
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]entity.HistoryEvent)
	for rows.Next() {
		var (
			projectID  string
			stage      string
			e          entity.HistoryEvent
			metadata   sql.NullString
			recipients string
		)
		if err := rows.Scan(&projectID, &stage, &e.Actor, &e.Action, &e.Notes, &metadata, &recipients, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Stage = workflow.Stage(stage)
		if metadata.Valid {
			e.Metadata = &entity.EventMetadata{}
			if err := json.Unmarshal([]byte(metadata.String), e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode history metadata: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(recipients), &e.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode history recipients: %w", err)
		}
		if len(e.Recipients) == 0 {
			e.Recipients = nil
		}
		out[projectID] = append(out[projectID], e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*entity.WorkflowState, error) {
	var (
		state     entity.WorkflowState
		stage     string
		executing string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&state.ProjectID,
		&state.Region,
		&stage,
		&state.ImplementingAgency,
		&state.NodalAgency,
		&state.MonitoringAgency,
		&executing,
		&state.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	state.CurrentStage = workflow.Stage(stage)
	state.CreatedAt = createdAt
	state.UpdatedAt = updatedAt
	if err := json.Unmarshal([]byte(executing), &state.ExecutingAgencies); err != nil {
		return nil, fmt.Errorf("failed to decode executing agencies: %w", err)
	}
	return &state, nil
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
