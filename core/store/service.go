// Package store implements the item catalog and the purchase transaction engine.
package store

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/user"
	"github.com/trezcool/xpcamp/core/xp"
)

var (
	// errors
	ErrItemNotFound        = core.NewNotFoundError("store item")
	ErrTransactionNotFound = core.NewNotFoundError("transaction")
	ErrItemUnavailable     = errors.New("item is no longer available")
	ErrItemProtected       = &core.ProtectedError{Message: "this item has been purchased and cannot be deleted, deactivate it instead"}
)

type (
	Repository interface {
		CreateItem(ctx context.Context, it Item, exec ...core.DBExecutor) (Item, error)
		// GetItem loads an item. forUpdate locks the row until the end of the transaction.
		GetItem(ctx context.Context, id string, forUpdate bool, exec ...core.DBExecutor) (Item, error)
		QueryItems(ctx context.Context, filter *ItemFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Item, error)
		UpdateItem(ctx context.Context, it Item, exec ...core.DBExecutor) (Item, error)
		// DeleteItem returns ErrItemProtected while transactions reference the item.
		DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error
		// DecrementStock takes one unit from an active, in-stock item. Returns core.ErrConflict otherwise.
		DecrementStock(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error

		CreateTransaction(ctx context.Context, tr Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (Transaction, error)
		QueryTransactions(ctx context.Context, filter *TransactionFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Transaction, error)
	}

	// Ledger is the part of the XP ledger purchases need.
	Ledger interface {
		Debit(ctx context.Context, studentID string, amount int, tx core.DBExecutor) error
		GetAccount(ctx context.Context, studentID string) (xp.Account, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		ledger     Ledger
		validate   *validator.Validate
		translator ut.Translator
		mailSvc    core.EmailService
		metrics    core.Metrics
		logger     core.Logger
	}
)

func NewService(
	db core.DB,
	repo Repository,
	ledger Ledger,
	validate *validator.Validate,
	translator ut.Translator,
	mailSvc core.EmailService,
	metrics core.Metrics,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(ledger, "ledger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(metrics, "metrics"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		db:         db,
		repo:       repo,
		ledger:     ledger,
		validate:   validate,
		translator: translator,
		mailSvc:    mailSvc,
		metrics:    metrics,
		logger:     logger,
	}
}

// Catalog

func (svc *Service) CreateItem(ctx context.Context, ni NewItem) (Item, error) {
	ni.Clean()
	if err := core.ValidateStruct(svc.validate, svc.translator, ni); err != nil {
		return Item{}, err
	}

	now := time.Now().UTC()
	it := Item{
		Name:          ni.Name,
		Description:   ni.Description,
		XPCost:        ni.XPCost,
		StockQuantity: 1,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ni.StockQuantity != nil {
		it.StockQuantity = *ni.StockQuantity
	}
	if ni.IsActive != nil {
		it.IsActive = *ni.IsActive
	}
	return svc.repo.CreateItem(ctx, it)
}

// UpdateItem applies a partial update. Transactions already recorded keep their cost snapshot.
func (svc *Service) UpdateItem(ctx context.Context, id string, ui UpdateItem) (Item, error) {
	ui.Clean()
	if ui.Name != nil && *ui.Name == "" {
		return Item{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	if err := core.ValidateStruct(svc.validate, svc.translator, ui); err != nil {
		return Item{}, err
	}

	var it Item
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetItem(ctx, id, true, tx)
		if err != nil {
			return err
		}
		upd := ui.apply(orig)
		upd.UpdatedAt = time.Now().UTC()
		it, err = svc.repo.UpdateItem(ctx, upd, tx)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (svc *Service) DeleteItem(ctx context.Context, id string) error {
	return svc.repo.DeleteItem(ctx, id)
}

// GetItem returns an item if `role` may see it: students only see active, in-stock items.
func (svc *Service) GetItem(ctx context.Context, id string, role user.Role) (Item, error) {
	it, err := svc.repo.GetItem(ctx, id, false)
	if err != nil {
		return Item{}, err
	}
	if !role.SeesHiddenItems() && !it.Available() {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (svc *Service) QueryItems(ctx context.Context, filter *ItemFilter, ordering []core.DBOrdering, role user.Role) ([]Item, error) {
	if filter == nil {
		filter = new(ItemFilter)
	}
	filter.OnlyAvailable = !role.SeesHiddenItems()
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "xp_cost", Ascending: true}, {Field: "name", Ascending: true}}
	}
	return svc.repo.QueryItems(ctx, filter, ordering)
}

// Transactions

func (svc *Service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, id)
}

func (svc *Service) QueryTransactions(ctx context.Context, filter *TransactionFilter, ordering []core.DBOrdering) ([]Transaction, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "timestamp", Ascending: false}}
	}
	return svc.repo.QueryTransactions(ctx, filter, ordering)
}

// Purchase buys one unit of an item for a student.
//
// Preconditions are checked in order before anything changes:
// the item is active and in stock (ErrItemUnavailable), the student has an account (xp.ErrAccountNotFound)
// and enough available XP (xp.ErrInsufficientXP).
// The XP debit, the stock decrement and the transaction record commit together or not at all.
// A write that lost a race to a concurrent purchase rolls everything back and the purchase is retried once.
func (svc *Service) Purchase(ctx context.Context, studentID, itemID string) (Transaction, error) {
	var tr Transaction
	attempt := func() error {
		var err error
		tr, err = svc.purchase(ctx, studentID, itemID)
		return err
	}
	onRetry := func(err error) {
		svc.metrics.ObserveConflict("purchase", core.ConflictRetried)
		svc.logger.Warn(
			fmt.Sprintf("purchase conflict, retrying: %v", err),
			map[string]interface{}{"student_id": studentID, "item_id": itemID},
		)
	}

	if err := core.RetryOnConflict(attempt, onRetry); err != nil {
		switch errors.Cause(err) {
		case ErrItemUnavailable:
			svc.metrics.ObservePurchaseRejected("item_unavailable")
		case xp.ErrInsufficientXP:
			svc.metrics.ObservePurchaseRejected("insufficient_xp")
		case core.ErrConflict:
			svc.metrics.ObserveConflict("purchase", core.ConflictFailed)
		}
		return Transaction{}, err
	}

	svc.metrics.ObservePurchase(tr.XPCostAtPurchase)
	svc.sendReceipt(ctx, tr)
	return tr, nil
}

func (svc *Service) purchase(ctx context.Context, studentID, itemID string) (Transaction, error) {
	var tr Transaction
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		// lock order: item, then account
		it, err := svc.repo.GetItem(ctx, itemID, true, tx)
		if err != nil {
			if errors.Cause(err) == ErrItemNotFound {
				return ErrItemUnavailable
			}
			return err
		}
		if !it.Available() {
			return ErrItemUnavailable
		}

		if err = svc.ledger.Debit(ctx, studentID, it.XPCost, tx); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err = svc.repo.DecrementStock(ctx, it.ID, now, tx); err != nil {
			return err
		}

		tr, err = svc.repo.CreateTransaction(ctx, Transaction{
			StudentID:        studentID,
			ItemID:           it.ID,
			XPCostAtPurchase: it.XPCost,
			Timestamp:        now,
		}, tx)
		if err != nil {
			return errors.Wrap(err, "recording transaction")
		}
		return nil
	})
	return tr, err
}

type receiptMailData struct {
	Name          string
	ItemName      string
	XPCost        int
	AvailableXP   int
	TransactionID string
	Timestamp     string
}

func (svc *Service) sendReceipt(ctx context.Context, tr Transaction) {
	acct, err := svc.ledger.GetAccount(ctx, tr.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading account for receipt: %v", err), err)
		return
	}
	if acct.Student == nil || acct.Student.Email == "" {
		return
	}

	var itemName string
	if tr.Item != nil {
		itemName = tr.Item.Name
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acct.Student.Name, Address: acct.Student.Email}},
		Subject:      "Purchase receipt",
		TemplateName: "purchase_receipt",
		TemplateData: receiptMailData{
			Name:          acct.Student.Name,
			ItemName:      itemName,
			XPCost:        tr.XPCostAtPurchase,
			AvailableXP:   acct.AvailableXP,
			TransactionID: tr.ID,
			Timestamp:     tr.Timestamp.Format(time.RFC1123),
		},
	})
}
