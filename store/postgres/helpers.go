package postgres

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/asyncexec/job"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// utc normalizes an optional timestamp read from the database.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// whereClause renders the filters of q starting at placeholder argIdx.
func whereClause(q job.Query, argIdx int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, fmt.Sprintf(cond, argIdx))
		args = append(args, v)
		argIdx++
	}

	if q.State != "" {
		add("state = $%d", string(q.State))
	}
	if q.ProcessInstanceID != "" {
		add("process_instance_id = $%d", q.ProcessInstanceID)
	}
	if q.ExecutionID != "" {
		add("execution_id = $%d", q.ExecutionID)
	}
	if q.TenantID != "" {
		add("tenant_id = $%d", q.TenantID)
	}
	if q.HandlerType != "" {
		add("handler_type = $%d", q.HandlerType)
	}
	if q.DueBefore != nil {
		add("due_date <= $%d", *q.DueBefore)
	}
	if q.DueAfter != nil {
		add("due_date > $%d", *q.DueAfter)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
