// internal/repository/command_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eload-service/internal/database"
	"eload-service/internal/model"
	"eload-service/internal/utils"
)

const commandColumns = `id, device_id, operation, parameters, status, error_code,
		error_message, duration_ms, request_id, started_at, created_at`

// commandRepository implements CommandRepository on PostgreSQL
type commandRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewCommandRepository creates a new command audit repository
func NewCommandRepository(db *database.DB, logger *zap.Logger) CommandRepository {
	return &commandRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "command-repository"),
	}
}

// Create stores one audit record
func (r *commandRepository) Create(ctx context.Context, record *model.CommandRecord) error {
	query := `
		INSERT INTO command_audit (
			id, device_id, operation, parameters, status, error_code,
			error_message, duration_ms, request_id, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	args := []interface{}{
		record.ID, record.DeviceID, record.Operation, record.Parameters,
		record.Status, record.ErrorCode, record.ErrorMessage,
		record.DurationMs, record.RequestID, record.StartedAt,
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, args...)
	r.logQuery(query, args, start, err)
	if err != nil {
		return fmt.Errorf("failed to create command record: %w", err)
	}

	return nil
}

// GetByID retrieves a record by ID
func (r *commandRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error) {
	query := `SELECT ` + commandColumns + ` FROM command_audit WHERE id = $1`

	start := time.Now()
	record, err := scanCommand(r.db.QueryRowContext(ctx, query, id))
	if !errors.Is(err, sql.ErrNoRows) {
		r.logQuery(query, []interface{}{id}, start, err)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get command record: %w", err)
	}

	return record, nil
}

// List retrieves records with filtering and pagination, newest first
func (r *commandRepository) List(ctx context.Context, filter *model.CommandFilter) ([]*model.CommandRecord, int, error) {
	whereClause, args := buildCommandWhere(filter)

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_audit %s", whereClause)
	var total int
	start := time.Now()
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	r.logQuery(countQuery, args, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count command records: %w", err)
	}

	limit, offset := pageOf(filter)
	query := fmt.Sprintf(`
		SELECT %s
		FROM command_audit %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, commandColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	start = time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logQuery(query, args, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list command records: %w", err)
	}
	defer rows.Close()

	records := []*model.CommandRecord{}
	for rows.Next() {
		record, err := scanCommand(rows)
		if err != nil {
			r.logger.Error("Failed to scan command row", zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	return records, total, rows.Err()
}

// GetStats aggregates the audit log
func (r *commandRepository) GetStats(ctx context.Context, since *time.Time) (*CommandStats, error) {
	whereClause := ""
	args := []interface{}{}
	if since != nil {
		whereClause = "WHERE created_at >= $1"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`
		SELECT operation, status, COUNT(*), COALESCE(AVG(duration_ms), 0)
		FROM command_audit %s
		GROUP BY operation, status
	`, whereClause)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logQuery(query, args, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get command stats: %w", err)
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var (
			operation string
			status    model.CommandStatus
			count     int
			avg       float64
		)
		if err := rows.Scan(&operation, &status, &count, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan command stats: %w", err)
		}
		acc.add(operation, status, count, avg*float64(count))
	}

	return acc.stats(), rows.Err()
}

// DeleteOlderThan removes records created before the cutoff
func (r *commandRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM command_audit WHERE created_at < $1`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query, olderThan)
	r.logQuery(query, []interface{}{olderThan}, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old command records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Old command records deleted", zap.Int64("count", deleted))
	return deleted, nil
}

// logQuery logs one statement on a single line
func (r *commandRepository) logQuery(query string, args []interface{}, start time.Time, err error) {
	r.logger.LogDatabaseQuery(strings.Join(strings.Fields(query), " "), args, time.Since(start), err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommand(row rowScanner) (*model.CommandRecord, error) {
	record := &model.CommandRecord{}
	err := row.Scan(
		&record.ID, &record.DeviceID, &record.Operation, &record.Parameters,
		&record.Status, &record.ErrorCode, &record.ErrorMessage,
		&record.DurationMs, &record.RequestID, &record.StartedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// buildCommandWhere renders the filter into a WHERE clause with positional args
func buildCommandWhere(filter *model.CommandFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	whereConditions := []string{}
	args := []interface{}{}

	if filter.Operation != "" {
		args = append(args, filter.Operation)
		whereConditions = append(whereConditions, fmt.Sprintf("operation = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	if len(whereConditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(whereConditions, " AND "), args
}

// pageOf returns the limit and offset of a filter, capping the page size
func pageOf(filter *model.CommandFilter) (int, int) {
	limit, offset := 50, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit, offset
}

type statsAccumulator struct {
	s           *CommandStats
	durationSum float64
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{s: &CommandStats{
		ByStatus:    map[model.CommandStatus]int{},
		ByOperation: map[string]int{},
	}}
}

func (a *statsAccumulator) add(operation string, status model.CommandStatus, count int, durationSum float64) {
	a.s.TotalCommands += count
	a.s.ByStatus[status] += count
	a.s.ByOperation[operation] += count
	a.durationSum += durationSum

	switch status {
	case model.CommandStatusSuccess:
		a.s.Successful += count
	case model.CommandStatusRejected:
		a.s.Rejected += count
	default:
		a.s.Failed += count
	}
}

func (a *statsAccumulator) stats() *CommandStats {
	if a.s.TotalCommands > 0 {
		a.s.AvgDurationMs = a.durationSum / float64(a.s.TotalCommands)
	}
	return a.s
}
