package user

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/xpcamp/core"
)

// Role is the closed set of user kinds. Every switch over a Role must handle all of them.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

var Roles = []Role{RoleStudent, RoleTeacher}

func ParseRole(s string) (Role, error) {
	switch r := Role(core.CleanString(s, true /* lower */)); r {
	case RoleStudent, RoleTeacher:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

func (r Role) Validate() error {
	_, err := ParseRole(string(r))
	return err
}

func (r Role) String() string { return string(r) }

func (r Role) Label() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleTeacher:
		return "Teacher"
	}
	return ""
}

// CanManageStore reports whether the role may create, edit and delete store items.
func (r Role) CanManageStore() bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

// CanManageUsers reports whether the role may create, list and delete users and see every student account.
func (r Role) CanManageUsers() bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

// CanGrantXP reports whether the role may grant XP to students.
func (r Role) CanGrantXP() bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

// CanActFor reports whether a user with this role and id may act on behalf of the student `studentID`.
func (r Role) CanActFor(actorID, studentID string) bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return actorID == studentID
	}
	return false
}

// SeesHiddenItems reports whether inactive and out-of-stock store items are visible to the role.
func (r Role) SeesHiddenItems() bool {
	switch r {
	case RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

type User struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	Role         Role       `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	PasswordHash []byte     `json:"-" db:"password_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    *time.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=255"`
	Username        string `json:"username" validate:"required,min=3,max=150,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email,max=254"`
	Role            Role   `json:"role" validate:"required,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"-"` // created_from
	CreatedTo   time.Time `query:"-"` // created_to
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// UpdateUser defines what may be changed on an existing User. Empty fields keep their current value.
// Role and username are immutable: a student's XP account and history follow them.
type UpdateUser struct {
	Name     string `json:"name" validate:"omitempty,max=255"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	IsActive *bool  `json:"is_active"`
}

func (uu *UpdateUser) Clean() {
	uu.Name = core.CleanString(uu.Name)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
}

// ChangePassword is what a user provides to replace their own password.
type ChangePassword struct {
	OldPassword        string `json:"old_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}
