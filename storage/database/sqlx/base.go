// Package sqlxrepos implements the repositories on top of jmoiron/sqlx, for both PostgreSQL and SQLite.
// Queries are written with `?` placeholders and rebound for the driver in use.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/trezcool/xpcamp/core"
)

// todo: + Masterminds/squirrel once filters outgrow whereClause

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func isPostgres(exec core.DBExecutor) bool {
	return exec.DriverName() == core.EnginePostgres
}

// lockClause returns the row lock suffix for SELECTs. SQLite has no row locks: its transactions hold the
// database write lock from BEGIN IMMEDIATE instead.
func lockClause(exec core.DBExecutor, forUpdate bool, tables ...string) string {
	if !forUpdate || !isPostgres(exec) {
		return ""
	}
	if len(tables) > 0 {
		return " FOR UPDATE OF " + strings.Join(tables, ", ")
	}
	return " FOR UPDATE"
}

// likeOp returns a case-insensitive LIKE operator. SQLite's LIKE already is for ASCII.
func likeOp(exec core.DBExecutor) string {
	if isPostgres(exec) {
		return "ILIKE"
	}
	return "LIKE"
}

func likeValue(s string) string {
	return "%" + s + "%"
}

// validID avoids sending malformed UUIDs to PostgreSQL, which rejects them with a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// orderBy builds an ORDER BY clause from the whitelisted `columns` ({field: column}); unknown fields are ignored.
// tieBreaker is always appended for a stable order.
func orderBy(ordering []core.DBOrdering, columns map[string]string, tieBreaker string) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	orderList = append(orderList, tieBreaker)
	return " ORDER BY " + strings.Join(orderList, ", ")
}

type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503" // foreign_key_violation
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514" // check_violation
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_CHECK {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "check constraint failed")
}

// writeError wraps err; a CHECK violation on a guarded write means the balances or stock
// went out of bounds, so it becomes a shutdown error.
func writeError(err error, msg string) error {
	if isCheckViolation(err) {
		return core.NewShutdownError(msg + ": integrity violated: " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }, msg string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return n, nil
}
