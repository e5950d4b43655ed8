package user

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrUserProtected  = &core.ProtectedError{Message: "this user has store transactions and cannot be deleted"}
	ErrWrongPassword  = errors.New("wrong password")
)

type (
	GetFilter struct {
		ID              string
		Username        string
		Email           string
		UsernameOrEmail string
	}

	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user already holds them.
		CheckUsernameUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	// AccountProvisioner opens the XP account of a newly created student.
	AccountProvisioner interface {
		OpenAccount(ctx context.Context, studentID string, exec ...core.DBExecutor) error
	}

	Service struct {
		db         core.DB
		repo       Repository
		accounts   AccountProvisioner
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(
	db core.DB,
	repo Repository,
	accounts AccountProvisioner,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(accounts, "accounts"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
	).CheckAndPanic()

	return &Service{
		db:         db,
		repo:       repo,
		accounts:   accounts,
		validate:   validate,
		translator: translator,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create validates and inserts a new User.
// Students get their XP account opened in the same transaction.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, nu); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "creating user")
		}
		switch usr.Role {
		case RoleStudent:
			return errors.Wrap(svc.accounts.OpenAccount(ctx, usr.ID, tx), "opening student account")
		case RoleTeacher:
			return nil
		}
		return errors.Errorf("unhandled role %q", usr.Role)
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	usr.LastLogin = &now
	return svc.repo.UpdateUser(ctx, usr)
}

// Update changes the name, email or active status of the user `id`.
func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	uu.Clean()
	if err = core.ValidateStruct(svc.validate, svc.translator, uu); err != nil {
		return User{}, err
	}
	if uu.Email != "" && uu.Email != usr.Email {
		// no user has an empty username, so only the email is checked
		if err = svc.checkUniqueness(ctx, "", uu.Email); err != nil {
			return User{}, err
		}
		usr.Email = uu.Email
	}
	if uu.Name != "" {
		usr.Name = uu.Name
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword applies the password policy to pwd and stores its hash.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	return svc.setPassword(ctx, usr, pwd, "password")
}

// ChangePassword replaces the password of usr once their current one is confirmed.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := core.ValidateStruct(svc.validate, svc.translator, cp); err != nil {
		return User{}, err
	}
	if usr.CheckPassword(cp.OldPassword) != nil {
		return User{}, core.NewValidationError(ErrWrongPassword,
			core.FieldError{Field: "old_password", Error: ErrWrongPassword.Error()})
	}
	return svc.setPassword(ctx, usr, cp.NewPassword, "new_password")
}

func (svc *Service) setPassword(ctx context.Context, usr User, pwd, field string) (User, error) {
	if tag := PasswordPolicyViolation(pwd, usr.Name, usr.Username, usr.Email); tag != "" {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: field, Error: PasswordPolicyText(tag)})
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Delete removes users by ID. XP granted by deleted teachers is kept with an unknown granter.
// Students who made purchases are protected.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}
