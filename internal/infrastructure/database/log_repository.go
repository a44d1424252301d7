package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mutugading/logquery/internal/domain/logrecord"
)

// DefaultTable is the table read when none is configured.
const DefaultTable = "logs"

const logColumns = "id, type, level, message, created_at, updated_at"

// likeEscaper escapes LIKE metacharacters so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Verify interface implementation at compile time.
var _ logrecord.Repository = (*LogRepository)(nil)

// LogRepository implements logrecord.Repository over a SQL table.
type LogRepository struct {
	db    *DB
	table string
}

// NewLogRepository creates a new LogRepository reading from table. The table
// name must already be validated.
func NewLogRepository(db *DB, table string) *LogRepository {
	if table == "" {
		table = DefaultTable
	}
	return &LogRepository{db: db, table: table}
}

// Count returns the number of records matching filter.
func (r *LogRepository) Count(ctx context.Context, filter logrecord.Filter) (int64, error) {
	whereClause, args, _ := buildLogFilters(r.db.Dialect(), filter)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", r.table, whereClause)

	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return total, nil
}

// Find returns one page of records matching filter, ordered by creation time
// and id.
func (r *LogRepository) Find(ctx context.Context, filter logrecord.Filter, page logrecord.PageRequest) ([]*logrecord.Log, error) {
	dialect := r.db.Dialect()
	whereClause, args, argPos := buildLogFilters(dialect, filter)

	direction := "ASC"
	if page.SortOrder == logrecord.SortDescending {
		direction = "DESC"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY created_at %s, id %s LIMIT %s OFFSET %s",
		logColumns, r.table, whereClause, direction, direction,
		dialect.Placeholder(argPos), dialect.Placeholder(argPos+1),
	)
	args = append(args, page.Limit, page.Skip())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := make([]*logrecord.Log, 0, page.Limit)
	for rows.Next() {
		var (
			id                   uuid.UUID
			logType, level, msg  string
			createdAt, updatedAt scanTime
		)
		if err := rows.Scan(&id, &logType, &level, &msg, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, logrecord.ReconstructLog(id, logType, level, msg, createdAt.Time, updatedAt.Time))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}

	return logs, nil
}

// buildLogFilters constructs the WHERE clause and arguments for filter. It
// returns the position of the next free placeholder.
func buildLogFilters(d Dialect, filter logrecord.Filter) (string, []interface{}, int) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Level != "" {
		conditions = append(conditions, d.Lower("level")+" = "+d.Placeholder(argPos))
		args = append(args, strings.ToLower(filter.Level))
		argPos++
	}
	if filter.Type != "" {
		conditions = append(conditions, d.Lower("type")+" = "+d.Placeholder(argPos))
		args = append(args, strings.ToLower(filter.Type))
		argPos++
	}
	if filter.Message != "" {
		conditions = append(conditions, d.Lower("message")+" LIKE "+d.Placeholder(argPos)+` ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.Message))+"%")
		argPos++
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, "created_at >= "+d.Placeholder(argPos))
		args = append(args, d.TimeArg(*filter.CreatedFrom))
		argPos++
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, "created_at <= "+d.Placeholder(argPos))
		args = append(args, d.TimeArg(*filter.CreatedTo))
		argPos++
	}

	whereClause := "1=1"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}
	return whereClause, args, argPos
}
