package store

import (
	"time"

	"github.com/trezcool/xpcamp/core"
)

type Item struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	XPCost        int       `json:"xp_cost" db:"xp_cost"`
	StockQuantity int       `json:"stock_quantity" db:"stock_quantity"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Available reports whether the item can currently be purchased.
func (it Item) Available() bool {
	return it.IsActive && it.StockQuantity > 0
}

type StudentInfo struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Username string `json:"username" db:"username"`
}

type ItemInfo struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Transaction is the write-once record of a purchase.
// XPCostAtPurchase is the item cost when the purchase committed; later price edits never change it.
type Transaction struct {
	ID               string       `json:"id" db:"id"`
	StudentID        string       `json:"student_id" db:"student_id"`
	ItemID           string       `json:"item_id" db:"item_id"`
	XPCostAtPurchase int          `json:"xp_cost_at_purchase" db:"xp_cost_at_purchase"`
	Timestamp        time.Time    `json:"timestamp" db:"purchased_at"`
	Student          *StudentInfo `json:"student,omitempty" db:"student"`
	Item             *ItemInfo    `json:"item,omitempty" db:"item"`
}

// NewItem contains information needed to create a new Item.
type NewItem struct {
	Name          string `json:"name" validate:"required,max=255"`
	Description   string `json:"description"`
	XPCost        int    `json:"xp_cost" validate:"min=0,max=1000000"`
	StockQuantity *int   `json:"stock_quantity" validate:"omitempty,min=0,max=1000000"`
	IsActive      *bool  `json:"is_active"`
}

func (ni *NewItem) Clean() {
	ni.Name = core.CleanString(ni.Name)
	ni.Description = core.CleanString(ni.Description)
}

// UpdateItem defines what information may be provided to modify an existing Item. Nil fields are left untouched.
type UpdateItem struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description   *string `json:"description"`
	XPCost        *int    `json:"xp_cost" validate:"omitempty,min=0,max=1000000"`
	StockQuantity *int    `json:"stock_quantity" validate:"omitempty,min=0,max=1000000"`
	IsActive      *bool   `json:"is_active"`
}

func (ui *UpdateItem) Clean() {
	if ui.Name != nil {
		name := core.CleanString(*ui.Name)
		ui.Name = &name
	}
	if ui.Description != nil {
		desc := core.CleanString(*ui.Description)
		ui.Description = &desc
	}
}

func (ui UpdateItem) apply(it Item) Item {
	if ui.Name != nil {
		it.Name = *ui.Name
	}
	if ui.Description != nil {
		it.Description = *ui.Description
	}
	if ui.XPCost != nil {
		it.XPCost = *ui.XPCost
	}
	if ui.StockQuantity != nil {
		it.StockQuantity = *ui.StockQuantity
	}
	if ui.IsActive != nil {
		it.IsActive = *ui.IsActive
	}
	return it
}

type ItemFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"is_active"`
	InStock  *bool  `query:"in_stock"`

	// OnlyAvailable restricts results to active, in-stock items. Set from the caller's role, never from the request.
	OnlyAvailable bool `query:"-"`
}

func (f *ItemFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}

type TransactionFilter struct {
	StudentID string    `query:"student_id"`
	ItemID    string    `query:"item_id"`
	From      time.Time `query:"-"`      // timestamp_from
	To        time.Time `query:"-"`      // timestamp_to
	Search    string    `query:"search"` // student username or item name
}

func (f *TransactionFilter) Clean() {
	f.StudentID = core.CleanString(f.StudentID)
	f.ItemID = core.CleanString(f.ItemID)
	f.Search = core.CleanString(f.Search)
}
