package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// PermissionError reports an action the actor's role may not perform.
type PermissionError struct {
	Action access.Action
	Role   access.Role
}

func (e *PermissionError) Error() string {
	role := string(e.Role)
	if role == "" {
		role = "(none)"
	}
	return fmt.Sprintf("action %s is not permitted for role %s", e.Action, role)
}

// UserRevoker invalidates every token issued to a user before a point in time.
type UserRevoker interface {
	RevokeUser(ctx context.Context, userID string, at time.Time) error
}

// TxRunner runs fn inside a single database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	accounts AccountRepository
	revoker  UserRevoker
	runTx    TxRunner
	hashCost int
	now      func() time.Time
}

func NewService(accounts AccountRepository, revoker UserRevoker) *Service {
	return &Service{
		accounts: accounts,
		revoker:  revoker,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// WithTxRunner makes multi-row operations such as seeding atomic.
func (s *Service) WithTxRunner(run TxRunner) *Service {
	if run != nil {
		s.runTx = run
	}
	return s
}

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3sEX5NK9.6OiiE3pMSxZzY6")

func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !acct.Active {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	return s.accounts.List(ctx, limit, offset)
}

// Invite creates an account on behalf of actor.
func (s *Service) Invite(ctx context.Context, actor access.Role, req hisapi.InviteRequest) (*Account, error) {
	if !access.CanPerform(actor, access.ActionInviteUser) {
		return nil, &PermissionError{Action: access.ActionInviteUser, Role: actor}
	}
	if err := hisapi.ValidateCreate(&req); err != nil {
		return nil, err
	}
	if req.Role == access.RoleSuperAdmin && !access.CanPerform(actor, access.ActionGrantSuperAdmin) {
		return nil, &PermissionError{Action: access.ActionGrantSuperAdmin, Role: actor}
	}
	return s.CreateAccount(ctx, req)
}

// CreateAccount stores a new active account without any actor check. It
// backs Invite and the operator CLI.
func (s *Service) CreateAccount(ctx context.Context, req hisapi.InviteRequest) (*Account, error) {
	if err := hisapi.ValidateCreate(&req); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := &Account{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Active:       true,
	}
	if req.Avatar != "" {
		avatar := req.Avatar
		acct.Avatar = &avatar
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// ChangeRole moves a user to another role and revokes every token issued to
// them, so the new role takes effect on their next request.
func (s *Service) ChangeRole(ctx context.Context, actor access.Role, id uuid.UUID, role access.Role) (*Account, error) {
	if !access.CanPerform(actor, access.ActionChangeRole) {
		return nil, &PermissionError{Action: access.ActionChangeRole, Role: actor}
	}
	if err := hisapi.ValidateCreate(&hisapi.RoleChangeRequest{Role: role}); err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if (role == access.RoleSuperAdmin || acct.Role == access.RoleSuperAdmin) &&
		!access.CanPerform(actor, access.ActionGrantSuperAdmin) {
		return nil, &PermissionError{Action: access.ActionGrantSuperAdmin, Role: actor}
	}
	if acct.Role == role {
		return acct, nil
	}

	// Old tokens are dead before the new role is stored.
	if err := s.revoker.RevokeUser(ctx, id.String(), s.now()); err != nil {
		return nil, fmt.Errorf("revoke tokens for %s: %w", id, err)
	}
	if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	acct.Role = role
	return acct, nil
}

type seedFile struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Role     string `yaml:"role"`
		Avatar   string `yaml:"avatar"`
	} `yaml:"users"`
}

// SeedFromFile creates the users listed in a YAML file. Usernames that
// already exist are left untouched. It returns the number of users created.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	created := 0
	err = s.runTx(ctx, func(ctx context.Context) error {
		for i, u := range sf.Users {
			role, ok := access.ParseRole(u.Role)
			if !ok {
				return fmt.Errorf("user %d (%s): unknown role %q", i+1, u.Username, u.Role)
			}
			if _, err := s.accounts.GetByUsername(ctx, u.Username); err == nil {
				continue
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
			_, err := s.CreateAccount(ctx, hisapi.InviteRequest{
				Username: u.Username,
				Password: u.Password,
				Name:     u.Name,
				Email:    u.Email,
				Role:     role,
				Avatar:   u.Avatar,
			})
			if err != nil {
				return fmt.Errorf("user %d (%s): %w", i+1, u.Username, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
