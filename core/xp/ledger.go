// Package xp implements the XP ledger: student accounts, grants and the debits made by store purchases.
package xp

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/xpcamp/core"
)

var (
	// errors
	ErrAccountNotFound = core.NewNotFoundError("student account")
	ErrInsufficientXP  = errors.New("student does not have enough available xp")
)

type (
	Repository interface {
		// CreateAccount inserts a zeroed account; it is a no-op if the student already has one.
		CreateAccount(ctx context.Context, acct Account, exec ...core.DBExecutor) error
		// GetAccount loads an account with its student info. forUpdate locks the row until the end of the transaction.
		GetAccount(ctx context.Context, studentID string, forUpdate bool, exec ...core.DBExecutor) (Account, error)
		QueryAccounts(ctx context.Context, filter *AccountFilter, ordering []core.DBOrdering, limit int, exec ...core.DBExecutor) ([]Account, error)
		// Credit adds amount to both balances. Returns ErrAccountNotFound if the account does not exist.
		Credit(ctx context.Context, studentID string, amount int, at time.Time, exec ...core.DBExecutor) error
		// Debit subtracts amount from the available balance only if it covers it. Returns core.ErrConflict otherwise.
		Debit(ctx context.Context, studentID string, amount int, at time.Time, exec ...core.DBExecutor) error
		CreateGrant(ctx context.Context, grant Grant, exec ...core.DBExecutor) (Grant, error)
		// QueryGrants returns grants newest first.
		QueryGrants(ctx context.Context, filter GrantFilter, exec ...core.DBExecutor) ([]Grant, error)
	}

	Ledger struct {
		db         core.DB
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
		mailSvc    core.EmailService
		metrics    core.Metrics
		logger     core.Logger
	}
)

func NewLedger(
	db core.DB,
	repo Repository,
	validate *validator.Validate,
	translator ut.Translator,
	mailSvc core.EmailService,
	metrics core.Metrics,
	logger core.Logger,
) *Ledger {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(metrics, "metrics"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Ledger{
		db:         db,
		repo:       repo,
		validate:   validate,
		translator: translator,
		mailSvc:    mailSvc,
		metrics:    metrics,
		logger:     logger,
	}
}

// OpenAccount creates the zeroed account of a student. Opening an existing account is a no-op.
func (l *Ledger) OpenAccount(ctx context.Context, studentID string, exec ...core.DBExecutor) error {
	now := time.Now().UTC()
	acct := Account{StudentID: studentID, CreatedAt: now, UpdatedAt: now}
	return errors.Wrap(l.repo.CreateAccount(ctx, acct, exec...), "creating account")
}

// Grant awards XP to a student: both balances grow by the amount and a Grant is appended, atomically.
// actorID is the granting user; an empty actorID records an unknown granter.
func (l *Ledger) Grant(ctx context.Context, in GrantXP, actorID string) (Account, error) {
	in.Clean()
	if err := core.ValidateStruct(l.validate, l.translator, in); err != nil {
		return Account{}, err
	}

	var acct Account
	err := core.RunInTx(ctx, l.db, func(tx core.DBExecutor) error {
		now := time.Now().UTC()
		if err := l.repo.Credit(ctx, in.StudentID, in.Amount, now, tx); err != nil {
			return err
		}
		grant := Grant{
			StudentID: in.StudentID,
			ActorID:   null.NewString(actorID, actorID != ""),
			Amount:    in.Amount,
			Reason:    in.Reason,
			CreatedAt: now,
		}
		if _, err := l.repo.CreateGrant(ctx, grant, tx); err != nil {
			return errors.Wrap(err, "appending grant")
		}

		var err error
		acct, err = l.repo.GetAccount(ctx, in.StudentID, false, tx)
		return err
	})
	if err != nil {
		return Account{}, err
	}

	l.metrics.ObserveGrant(in.Amount)
	l.sendGrantMail(acct, in)
	return acct, nil
}

// Debit takes amount from the available balance of a student. It must run inside the caller's transaction.
// Returns ErrInsufficientXP if the balance does not cover amount, core.ErrConflict if it changed concurrently.
func (l *Ledger) Debit(ctx context.Context, studentID string, amount int, tx core.DBExecutor) error {
	if amount < 0 {
		return core.NewValidationError(errors.New("cannot debit a negative amount"))
	}
	acct, err := l.repo.GetAccount(ctx, studentID, true, tx)
	if err != nil {
		return err
	}
	if acct.AvailableXP < amount {
		return ErrInsufficientXP
	}
	return l.repo.Debit(ctx, studentID, amount, time.Now().UTC(), tx)
}

func (l *Ledger) GetAccount(ctx context.Context, studentID string) (Account, error) {
	return l.repo.GetAccount(ctx, studentID, false)
}

func (l *Ledger) QueryAccounts(ctx context.Context, filter *AccountFilter, ordering []core.DBOrdering) ([]Account, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	return l.repo.QueryAccounts(ctx, filter, ordering, 0)
}

// Leaderboard returns the top `limit` accounts by lifetime XP, ties broken by name.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]Account, error) {
	ordering := []core.DBOrdering{
		{Field: "total_xp", Ascending: false},
		{Field: "name", Ascending: true},
	}
	return l.repo.QueryAccounts(ctx, nil, ordering, limit)
}

// History returns the grants of a student, newest first.
func (l *Ledger) History(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	if _, err := l.repo.GetAccount(ctx, filter.StudentID, false); err != nil {
		return nil, err
	}
	return l.repo.QueryGrants(ctx, filter)
}

type grantMailData struct {
	Name        string
	Amount      int
	Reason      string
	TotalXP     int
	AvailableXP int
}

func (l *Ledger) sendGrantMail(acct Account, in GrantXP) {
	if acct.Student == nil || acct.Student.Email == "" {
		return
	}
	l.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acct.Student.Name, Address: acct.Student.Email}},
		Subject:      fmt.Sprintf("You earned %d XP", in.Amount),
		TemplateName: "xp_granted",
		TemplateData: grantMailData{
			Name:        acct.Student.Name,
			Amount:      in.Amount,
			Reason:      in.Reason,
			TotalXP:     acct.TotalXP,
			AvailableXP: acct.AvailableXP,
		},
	})
}
