package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

// Account is a console user as stored by the server.
type Account struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	Username     string      `db:"username" json:"username"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Name         string      `db:"name" json:"name"`
	Email        string      `db:"email" json:"email"`
	Role         access.Role `db:"role" json:"role"`
	Avatar       *string     `db:"avatar" json:"avatar,omitempty"`
	Active       bool        `db:"active" json:"active"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// ToUser returns the public identity carried in sessions and tokens.
func (a *Account) ToUser() hisapi.User {
	u := hisapi.User{
		ID:    a.ID.String(),
		Name:  a.Name,
		Email: a.Email,
		Role:  a.Role,
	}
	if a.Avatar != nil {
		u.Avatar = *a.Avatar
	}
	return u
}

// AccountView is the user-management representation of an account.
type AccountView struct {
	hisapi.User
	Username  string    `json:"username"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Account) View() AccountView {
	return AccountView{
		User:      a.ToUser(),
		Username:  a.Username,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}
