package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrExecutionNotFound is returned when a requested execution does not exist.
var ErrExecutionNotFound = errors.New("execution not found")

// Store provides methods for reading and writing the execution tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over the given database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertExecution inserts or updates an execution record.
func (s *Store) UpsertExecution(row *ExecutionRow) error {
	query := `
		INSERT INTO executions (
			id, task, model, state, success, final_result, error_kind, error_message,
			prompt_tokens, completion_tokens, total_tokens, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			model = excluded.model,
			state = excluded.state,
			success = excluded.success,
			final_result = excluded.final_result,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens,
			ended_at = excluded.ended_at
	`

	_, err := s.db.Exec(query,
		row.ID, row.Task, row.Model, row.State, row.Success, row.FinalResult,
		row.ErrorKind, row.ErrorMessage, row.PromptTokens, row.CompletionTokens,
		row.TotalTokens, row.StartedAt, row.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert execution %s: %w", row.ID, err)
	}
	return nil
}

// UpsertStep inserts or updates a step record. Later attempts of a
// re-queued step land on the same (execution_id, number) row.
func (s *Store) UpsertStep(row *StepRow) error {
	query := `
		INSERT INTO steps (
			execution_id, number, id, state, response, reflection, retries,
			error_kind, error_message, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, number) DO UPDATE SET
			id = excluded.id,
			state = excluded.state,
			response = excluded.response,
			reflection = excluded.reflection,
			retries = excluded.retries,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`

	_, err := s.db.Exec(query,
		row.ExecutionID, row.Number, row.ID, row.State, row.Response,
		row.Reflection, row.Retries, row.ErrorKind, row.ErrorMessage,
		row.StartedAt, row.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert step %d of execution %s: %w", row.Number, row.ExecutionID, err)
	}
	return nil
}

// UpsertActionResult inserts or updates an action result record.
func (s *Store) UpsertActionResult(row *ActionResultRow) error {
	query := `
		INSERT INTO action_results (
			execution_id, step_number, call_id, position, tool, args,
			success, content, error_message, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, step_number, call_id) DO UPDATE SET
			position = excluded.position,
			tool = excluded.tool,
			args = excluded.args,
			success = excluded.success,
			content = excluded.content,
			error_message = excluded.error_message,
			duration_ms = excluded.duration_ms
	`

	_, err := s.db.Exec(query,
		row.ExecutionID, row.StepNumber, row.CallID, row.Position, row.Tool,
		row.Args, row.Success, row.Content, row.ErrorMessage, row.DurationMS,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert action result %s: %w", row.CallID, err)
	}
	return nil
}

// GetExecutionByID returns an execution by its ID.
func (s *Store) GetExecutionByID(executionID string) (*ExecutionRow, error) {
	query := `
		SELECT id, task, model, state, success, final_result, error_kind, error_message,
		       prompt_tokens, completion_tokens, total_tokens, started_at, ended_at
		FROM executions WHERE id = ?
	`

	row := &ExecutionRow{}
	err := s.db.QueryRow(query, executionID).Scan(
		&row.ID, &row.Task, &row.Model, &row.State, &row.Success,
		&row.FinalResult, &row.ErrorKind, &row.ErrorMessage,
		&row.PromptTokens, &row.CompletionTokens, &row.TotalTokens,
		&row.StartedAt, &row.EndedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", executionID, err)
	}

	return row, nil
}

// QueryExecutionsByFilter returns executions matching the given filter,
// most recent first.
func (s *Store) QueryExecutionsByFilter(filter *ExecutionFilter) ([]*ExecutionRow, error) {
	query := `
		SELECT id, task, model, state, success, final_result, error_kind, error_message,
		       prompt_tokens, completion_tokens, total_tokens, started_at, ended_at
		FROM executions WHERE 1=1
	`
	var args []interface{}

	if filter.State != nil {
		query += " AND state = ?"
		args = append(args, *filter.State)
	}
	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, *filter.Success)
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var executions []*ExecutionRow
	for rows.Next() {
		row := &ExecutionRow{}
		err := rows.Scan(
			&row.ID, &row.Task, &row.Model, &row.State, &row.Success,
			&row.FinalResult, &row.ErrorKind, &row.ErrorMessage,
			&row.PromptTokens, &row.CompletionTokens, &row.TotalTokens,
			&row.StartedAt, &row.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return executions, nil
}

// ListRecentExecutions returns the most recent executions, newest first.
func (s *Store) ListRecentExecutions(limit int) ([]*ExecutionRow, error) {
	return s.QueryExecutionsByFilter(&ExecutionFilter{Limit: limit})
}

// GetStepsByExecution returns all steps of an execution in step order.
func (s *Store) GetStepsByExecution(executionID string) ([]*StepRow, error) {
	query := `
		SELECT execution_id, number, id, state, response, reflection, retries,
		       error_kind, error_message, started_at, ended_at
		FROM steps
		WHERE execution_id = ?
		ORDER BY number ASC
	`

	rows, err := s.db.Query(query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps for execution %s: %w", executionID, err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var steps []*StepRow
	for rows.Next() {
		row := &StepRow{}
		err := rows.Scan(
			&row.ExecutionID, &row.Number, &row.ID, &row.State, &row.Response,
			&row.Reflection, &row.Retries, &row.ErrorKind, &row.ErrorMessage,
			&row.StartedAt, &row.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return steps, nil
}

// GetActionResultsByStep returns the action results of one step in
// request order.
func (s *Store) GetActionResultsByStep(executionID string, stepNumber int) ([]*ActionResultRow, error) {
	query := `
		SELECT execution_id, step_number, call_id, position, tool, args,
		       success, content, error_message, duration_ms, created_at
		FROM action_results
		WHERE execution_id = ? AND step_number = ?
		ORDER BY position ASC, created_at ASC
	`

	rows, err := s.db.Query(query, executionID, stepNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query action results for step %d of %s: %w", stepNumber, executionID, err)
	}
	defer func() {
		_ = rows.Close() // Ignore error - operation should not fail due to close error
	}()

	var results []*ActionResultRow
	for rows.Next() {
		row := &ActionResultRow{}
		err := rows.Scan(
			&row.ExecutionID, &row.StepNumber, &row.CallID, &row.Position,
			&row.Tool, &row.Args, &row.Success, &row.Content,
			&row.ErrorMessage, &row.DurationMS, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action result: %w", err)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// GetStoreSummary returns aggregated metrics across all stored executions.
func (s *Store) GetStoreSummary() (*StoreSummary, error) {
	query := `
		SELECT
			COUNT(*) as total_executions,
			SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END) as completed_executions,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			MAX(CASE WHEN state = 'completed' THEN ended_at END) as last_completed
		FROM executions
	`

	summary := &StoreSummary{}
	var completed sql.NullInt64
	err := s.db.QueryRow(query).Scan(
		&summary.TotalExecutions,
		&completed,
		&summary.TotalTokens,
		&summary.LastCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get store summary: %w", err)
	}
	summary.CompletedExecutions = int(completed.Int64)

	if err := s.db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&summary.TotalSteps); err != nil {
		return nil, fmt.Errorf("failed to count steps: %w", err)
	}

	return summary, nil
}

// DeleteExecution removes an execution and, via cascade, its steps and
// action results.
func (s *Store) DeleteExecution(executionID string) error {
	result, err := s.db.Exec("DELETE FROM executions WHERE id = ?", executionID)
	if err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", executionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return nil
}

// PruneExecutions deletes finished executions beyond the newest keep,
// returning how many were removed. Running executions are never pruned.
func (s *Store) PruneExecutions(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	query := `
		DELETE FROM executions
		WHERE state != 'running' AND id NOT IN (
			SELECT id FROM executions
			WHERE state != 'running'
			ORDER BY started_at DESC
			LIMIT ?
		)
	`

	result, err := s.db.Exec(query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}
