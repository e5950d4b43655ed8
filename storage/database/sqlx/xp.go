package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/xp"
)

const accountSelect = `SELECT a.student_id, a.total_xp, a.available_xp, a.created_at, a.updated_at,
	u.id AS "student.id", u.name AS "student.name", u.username AS "student.username", u.email AS "student.email"
	FROM student_accounts a
	JOIN users u ON u.id = a.student_id`

const grantColumns = "id, student_id, actor_id, amount, reason, created_at"

var accountOrderColumns = map[string]string{
	"name":         "u.name",
	"username":     "u.username",
	"total_xp":     "a.total_xp",
	"available_xp": "a.available_xp",
	"created_at":   "a.created_at",
}

type xpRepository struct {
	baseRepository
}

var _ xp.Repository = (*xpRepository)(nil) // interface compliance check

func NewXPRepository(exec core.DBExecutor) *xpRepository {
	return &xpRepository{baseRepository{exec: exec}}
}

func (repo xpRepository) CreateAccount(ctx context.Context, acct xp.Account, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO student_accounts (student_id, total_xp, available_xp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_id) DO NOTHING`)
	_, err := exe.ExecContext(ctx, q, acct.StudentID, acct.TotalXP, acct.AvailableXP, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return xp.ErrAccountNotFound
		}
		return errors.Wrap(err, "inserting account")
	}
	return nil
}

func (repo xpRepository) GetAccount(ctx context.Context, studentID string, forUpdate bool, exec ...core.DBExecutor) (xp.Account, error) {
	exe := repo.getExec(exec)
	if !validID(studentID) {
		return xp.Account{}, xp.ErrAccountNotFound
	}

	var acct xp.Account
	q := exe.Rebind(accountSelect + " WHERE a.student_id = ?" + lockClause(exe, forUpdate, "a"))
	if err := exe.GetContext(ctx, &acct, q, studentID); err != nil {
		if err == sql.ErrNoRows {
			return xp.Account{}, xp.ErrAccountNotFound
		}
		return xp.Account{}, errors.Wrap(err, "finding account")
	}
	return acct, nil
}

func (repo xpRepository) QueryAccounts(ctx context.Context, filter *xp.AccountFilter, ordering []core.DBOrdering, limit int, exec ...core.DBExecutor) ([]xp.Account, error) {
	exe := repo.getExec(exec)
	where := new(whereClause)

	if filter != nil && filter.Search != "" {
		op := likeOp(exe)
		val := likeValue(filter.Search)
		where.add("(u.name "+op+" ? OR u.username "+op+" ? OR u.email "+op+" ?)", val, val, val)
	}

	q := accountSelect + where.String() + orderBy(ordering, accountOrderColumns, "a.student_id ASC")
	args := where.args
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	accounts := make([]xp.Account, 0)
	if err := exe.SelectContext(ctx, &accounts, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	return accounts, nil
}

func (repo xpRepository) Credit(ctx context.Context, studentID string, amount int, at time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if !validID(studentID) {
		return xp.ErrAccountNotFound
	}
	q := exe.Rebind(`UPDATE student_accounts
		SET total_xp = total_xp + ?, available_xp = available_xp + ?, updated_at = ?
		WHERE student_id = ?`)
	res, err := exe.ExecContext(ctx, q, amount, amount, at.UTC(), studentID)
	if err != nil {
		return writeError(err, "crediting account")
	}
	n, err := rowsAffected(res, "crediting account")
	if err != nil {
		return err
	}
	if n == 0 {
		return xp.ErrAccountNotFound
	}
	return nil
}

func (repo xpRepository) Debit(ctx context.Context, studentID string, amount int, at time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if !validID(studentID) {
		return xp.ErrAccountNotFound
	}
	q := exe.Rebind(`UPDATE student_accounts
		SET available_xp = available_xp - ?, updated_at = ?
		WHERE student_id = ? AND available_xp >= ?`)
	res, err := exe.ExecContext(ctx, q, amount, at.UTC(), studentID, amount)
	if err != nil {
		return writeError(err, "debiting account")
	}
	n, err := rowsAffected(res, "debiting account")
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

func (repo xpRepository) CreateGrant(ctx context.Context, grant xp.Grant, exec ...core.DBExecutor) (xp.Grant, error) {
	exe := repo.getExec(exec)
	grant.ID = uuid.New().String()
	q := exe.Rebind("INSERT INTO xp_grants (" + grantColumns + ") VALUES (?, ?, ?, ?, ?, ?)")
	_, err := exe.ExecContext(ctx, q, grant.ID, grant.StudentID, grant.ActorID, grant.Amount, grant.Reason, grant.CreatedAt.UTC())
	if err != nil {
		return xp.Grant{}, errors.Wrap(err, "inserting grant")
	}
	return grant, nil
}

func (repo xpRepository) QueryGrants(ctx context.Context, filter xp.GrantFilter, exec ...core.DBExecutor) ([]xp.Grant, error) {
	exe := repo.getExec(exec)
	grants := make([]xp.Grant, 0)
	if !validID(filter.StudentID) {
		return grants, nil
	}

	where := new(whereClause)
	where.add("student_id = ?", filter.StudentID)
	if filter.ActorID != "" {
		if !validID(filter.ActorID) {
			return grants, nil
		}
		where.add("actor_id = ?", filter.ActorID)
	}
	if !filter.From.IsZero() {
		where.add("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where.add("created_at <= ?", filter.To.UTC())
	}

	q := "SELECT " + grantColumns + " FROM xp_grants" + where.String() + " ORDER BY created_at DESC, id DESC"
	if err := exe.SelectContext(ctx, &grants, exe.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying grants")
	}
	return grants, nil
}
