package query

import (
	"context"
	"fmt"
)

// DefaultValueLimit caps the number of distinct values returned for a field.
const DefaultValueLimit = 100

// DistinctValues returns the distinct non-null values of column in table,
// in ascending order.
func (e *Executor) DistinctValues(ctx context.Context, table, column string, limit int) ([]interface{}, error) {
	if limit <= 0 {
		limit = DefaultValueLimit
	}
	col := e.quote(column)

	rows, err := e.db.WithContext(ctx).Table(table).
		Select(fmt.Sprintf("DISTINCT %s", col)).
		Where(fmt.Sprintf("%s IS NOT NULL", col)).
		Order(col).
		Limit(limit).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to execute values query: %w", err)
	}
	defer rows.Close()

	values := make([]interface{}, 0, limit)
	for rows.Next() {
		var value interface{}
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}
	return values, nil
}
