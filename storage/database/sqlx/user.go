package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/user"
)

const userColumns = "id, name, username, email, role, is_active, password_hash, created_at, updated_at, last_login"

var userOrderColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	var found struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := exe.Rebind("SELECT username, email FROM users WHERE username = ? OR (email <> '' AND email = ?) LIMIT 1")
	err := exe.GetContext(ctx, &found, q, username, email)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case found.Username == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	usr.ID = uuid.New().String()
	q := exe.Rebind("INSERT INTO users (" + userColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := exe.ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.Role.String(), usr.IsActive, usr.PasswordHash,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), usr.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewValidationError(user.ErrUsernameExists,
				core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()})
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := repo.getExec(exec)
	where := new(whereClause)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			op := likeOp(exe)
			val := likeValue(filter.Search)
			where.add("(name "+op+" ? OR username "+op+" ? OR email "+op+" ?)", val, val, val)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, r.String())
			}
			q, args, err := sqlx.In("role IN (?)", roles)
			if err != nil {
				return nil, errors.Wrap(err, "building role filter")
			}
			where.add(q, args...)
		}
		if filter.IsActive != nil {
			where.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	q := "SELECT " + userColumns + " FROM users" + where.String() + orderBy(ordering, userOrderColumns, "id ASC")

	users := make([]user.User, 0)
	if err := exe.SelectContext(ctx, &users, exe.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	where := new(whereClause)

	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		where.add("id = ?", filter.ID)
	case filter.Username != "":
		where.add("username = ?", filter.Username)
	case filter.Email != "":
		where.add("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		where.add("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	q := exe.Rebind("SELECT " + userColumns + " FROM users" + where.String() + " LIMIT 1")
	if err := exe.GetContext(ctx, &usr, q, where.args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return usr, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	q := exe.Rebind(`UPDATE users
		SET name = ?, username = ?, email = ?, role = ?, is_active = ?, password_hash = ?, updated_at = ?, last_login = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		usr.Name, usr.Username, usr.Email, usr.Role.String(), usr.IsActive, usr.PasswordHash, usr.UpdatedAt.UTC(), usr.LastLogin,
		usr.ID,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	n, err := rowsAffected(res, "updating user")
	if err != nil {
		return user.User{}, err
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	validIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			validIDs = append(validIDs, id)
		}
	}
	if len(validIDs) == 0 {
		return 0, nil
	}

	q, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", validIDs)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, user.ErrUserProtected
		}
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := rowsAffected(res, "deleting users")
	return int(n), err
}
