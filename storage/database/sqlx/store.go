package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core"
	"github.com/trezcool/xpcamp/core/store"
)

const itemColumns = "id, name, description, xp_cost, stock_quantity, is_active, created_at, updated_at"

const transactionSelect = `SELECT t.id, t.student_id, t.item_id, t.xp_cost_at_purchase, t.purchased_at,
	u.id AS "student.id", u.name AS "student.name", u.username AS "student.username",
	i.id AS "item.id", i.name AS "item.name"
	FROM store_transactions t
	JOIN users u ON u.id = t.student_id
	JOIN store_items i ON i.id = t.item_id`

var (
	itemOrderColumns = map[string]string{
		"name":           "name",
		"xp_cost":        "xp_cost",
		"stock_quantity": "stock_quantity",
		"created_at":     "created_at",
	}

	transactionOrderColumns = map[string]string{
		"timestamp":           "t.purchased_at",
		"xp_cost_at_purchase": "t.xp_cost_at_purchase",
		"student":             "u.username",
		"item":                "i.name",
	}
)

type storeRepository struct {
	baseRepository
}

var _ store.Repository = (*storeRepository)(nil) // interface compliance check

func NewStoreRepository(exec core.DBExecutor) *storeRepository {
	return &storeRepository{baseRepository{exec: exec}}
}

// Items

func (repo storeRepository) CreateItem(ctx context.Context, it store.Item, exec ...core.DBExecutor) (store.Item, error) {
	exe := repo.getExec(exec)
	it.ID = uuid.New().String()
	q := exe.Rebind("INSERT INTO store_items (" + itemColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := exe.ExecContext(ctx, q,
		it.ID, it.Name, it.Description, it.XPCost, it.StockQuantity, it.IsActive, it.CreatedAt.UTC(), it.UpdatedAt.UTC(),
	)
	if err != nil {
		return store.Item{}, errors.Wrap(err, "inserting item")
	}
	return it, nil
}

func (repo storeRepository) GetItem(ctx context.Context, id string, forUpdate bool, exec ...core.DBExecutor) (store.Item, error) {
	exe := repo.getExec(exec)
	if !validID(id) {
		return store.Item{}, store.ErrItemNotFound
	}

	var it store.Item
	q := exe.Rebind("SELECT " + itemColumns + " FROM store_items WHERE id = ?" + lockClause(exe, forUpdate))
	if err := exe.GetContext(ctx, &it, q, id); err != nil {
		if err == sql.ErrNoRows {
			return store.Item{}, store.ErrItemNotFound
		}
		return store.Item{}, errors.Wrap(err, "finding item")
	}
	return it, nil
}

func (repo storeRepository) QueryItems(ctx context.Context, filter *store.ItemFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]store.Item, error) {
	exe := repo.getExec(exec)
	where := new(whereClause)

	if filter != nil {
		if filter.Search != "" {
			op := likeOp(exe)
			val := likeValue(filter.Search)
			where.add("(name "+op+" ? OR description "+op+" ?)", val, val)
		}
		if filter.IsActive != nil {
			where.add("is_active = ?", *filter.IsActive)
		}
		if filter.InStock != nil {
			if *filter.InStock {
				where.add("stock_quantity > 0")
			} else {
				where.add("stock_quantity = 0")
			}
		}
		if filter.OnlyAvailable {
			where.add("is_active = ? AND stock_quantity > 0", true)
		}
	}

	q := "SELECT " + itemColumns + " FROM store_items" + where.String() + orderBy(ordering, itemOrderColumns, "id ASC")
	items := make([]store.Item, 0)
	if err := exe.SelectContext(ctx, &items, exe.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	return items, nil
}

func (repo storeRepository) UpdateItem(ctx context.Context, it store.Item, exec ...core.DBExecutor) (store.Item, error) {
	exe := repo.getExec(exec)
	if !validID(it.ID) {
		return store.Item{}, store.ErrItemNotFound
	}
	q := exe.Rebind(`UPDATE store_items
		SET name = ?, description = ?, xp_cost = ?, stock_quantity = ?, is_active = ?, updated_at = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		it.Name, it.Description, it.XPCost, it.StockQuantity, it.IsActive, it.UpdatedAt.UTC(), it.ID,
	)
	if err != nil {
		return store.Item{}, errors.Wrap(err, "updating item")
	}
	n, err := rowsAffected(res, "updating item")
	if err != nil {
		return store.Item{}, err
	}
	if n == 0 {
		return store.Item{}, store.ErrItemNotFound
	}
	return it, nil
}

func (repo storeRepository) DeleteItem(ctx context.Context, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if !validID(id) {
		return store.ErrItemNotFound
	}
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM store_items WHERE id = ?"), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrItemProtected
		}
		return errors.Wrap(err, "deleting item")
	}
	n, err := rowsAffected(res, "deleting item")
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

func (repo storeRepository) DecrementStock(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if !validID(id) {
		return store.ErrItemNotFound
	}
	q := exe.Rebind(`UPDATE store_items
		SET stock_quantity = stock_quantity - 1, updated_at = ?
		WHERE id = ? AND is_active = ? AND stock_quantity > 0`)
	res, err := exe.ExecContext(ctx, q, at.UTC(), id, true)
	if err != nil {
		return writeError(err, "decrementing stock")
	}
	n, err := rowsAffected(res, "decrementing stock")
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

// Transactions

func (repo storeRepository) CreateTransaction(ctx context.Context, tr store.Transaction, exec ...core.DBExecutor) (store.Transaction, error) {
	exe := repo.getExec(exec)
	tr.ID = uuid.New().String()
	q := exe.Rebind(`INSERT INTO store_transactions (id, student_id, item_id, xp_cost_at_purchase, purchased_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := exe.ExecContext(ctx, q, tr.ID, tr.StudentID, tr.ItemID, tr.XPCostAtPurchase, tr.Timestamp.UTC()); err != nil {
		return store.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return repo.GetTransaction(ctx, tr.ID, exe)
}

func (repo storeRepository) GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (store.Transaction, error) {
	exe := repo.getExec(exec)
	if !validID(id) {
		return store.Transaction{}, store.ErrTransactionNotFound
	}

	var tr store.Transaction
	if err := exe.GetContext(ctx, &tr, exe.Rebind(transactionSelect+" WHERE t.id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return store.Transaction{}, store.ErrTransactionNotFound
		}
		return store.Transaction{}, errors.Wrap(err, "finding transaction")
	}
	return tr, nil
}

func (repo storeRepository) QueryTransactions(ctx context.Context, filter *store.TransactionFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]store.Transaction, error) {
	exe := repo.getExec(exec)
	transactions := make([]store.Transaction, 0)
	where := new(whereClause)

	if filter != nil {
		if filter.StudentID != "" {
			if !validID(filter.StudentID) {
				return transactions, nil
			}
			where.add("t.student_id = ?", filter.StudentID)
		}
		if filter.ItemID != "" {
			if !validID(filter.ItemID) {
				return transactions, nil
			}
			where.add("t.item_id = ?", filter.ItemID)
		}
		if !filter.From.IsZero() {
			where.add("t.purchased_at >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			where.add("t.purchased_at <= ?", filter.To.UTC())
		}
		if filter.Search != "" {
			op := likeOp(exe)
			val := likeValue(filter.Search)
			where.add("(u.username "+op+" ? OR i.name "+op+" ?)", val, val)
		}
	}

	q := transactionSelect + where.String() + orderBy(ordering, transactionOrderColumns, "t.id ASC")
	if err := exe.SelectContext(ctx, &transactions, exe.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	return transactions, nil
}
