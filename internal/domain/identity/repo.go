package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/his/his/pkg/access"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	UpdateRole(ctx context.Context, id uuid.UUID, role access.Role) error
	List(ctx context.Context, limit, offset int) ([]*Account, int, error)
}
