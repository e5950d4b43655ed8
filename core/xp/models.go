package xp

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/xpcamp/core"
)

// StudentInfo is the public part of the student an account belongs to.
type StudentInfo struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
}

// Account holds a student's lifetime (TotalXP) and spendable (AvailableXP) experience points.
// 0 <= AvailableXP <= TotalXP always holds.
type Account struct {
	StudentID   string       `json:"student_id" db:"student_id"`
	TotalXP     int          `json:"total_xp" db:"total_xp"`
	AvailableXP int          `json:"available_xp" db:"available_xp"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
	Student     *StudentInfo `json:"student,omitempty" db:"student"`
}

// Grant is an append-only record of XP awarded to a student.
// ActorID is null when the granter is unknown or was deleted.
type Grant struct {
	ID        string      `json:"id" db:"id"`
	StudentID string      `json:"student_id" db:"student_id"`
	ActorID   null.String `json:"actor_id" db:"actor_id"`
	Amount    int         `json:"amount" db:"amount"`
	Reason    string      `json:"reason" db:"reason"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// GrantXP is the input of Ledger.Grant.
type GrantXP struct {
	StudentID string `json:"-"`
	Amount    int    `json:"xp_points" validate:"xpamount"`
	Reason    string `json:"reason" validate:"max=255"`
}

func (g *GrantXP) Clean() {
	g.Reason = core.CleanString(g.Reason)
}

type AccountFilter struct {
	Search string `query:"search"`
}

func (af *AccountFilter) Clean() {
	af.Search = core.CleanString(af.Search)
}

type GrantFilter struct {
	StudentID string    `query:"-"`
	ActorID   string    `query:"actor_id"`
	From      time.Time `query:"-"` // from
	To        time.Time `query:"-"` // to
}
