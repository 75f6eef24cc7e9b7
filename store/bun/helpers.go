package bunstore

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/asyncexec/job"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey reports a unique_violation (23505) from pgdriver.
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// applyQuery adds the filters of q to sel. Paging is left to the caller
// because CountJobs must ignore it.
func applyQuery(sel *bun.SelectQuery, q job.Query) *bun.SelectQuery {
	eq := []struct {
		col, val string
	}{
		{"state", string(q.State)},
		{"process_instance_id", q.ProcessInstanceID},
		{"execution_id", q.ExecutionID},
		{"tenant_id", q.TenantID},
		{"handler_type", q.HandlerType},
	}
	for _, f := range eq {
		if f.val != "" {
			sel = sel.Where("? = ?", bun.Ident(f.col), f.val)
		}
	}
	if q.DueBefore != nil {
		sel = sel.Where("due_date <= ?", q.DueBefore.UTC())
	}
	if q.DueAfter != nil {
		sel = sel.Where("due_date > ?", q.DueAfter.UTC())
	}
	return sel
}
