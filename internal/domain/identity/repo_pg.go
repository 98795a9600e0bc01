package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/db"
	"github.com/his/his/pkg/access"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountColumns = `id, username, password_hash, name, email, role, avatar, active, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_account (id, username, password_hash, name, email, role, avatar, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.Username, a.PasswordHash, a.Name, a.Email, a.Role, a.Avatar, a.Active,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user_account: %w", err)
	}
	return nil
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM user_account WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM user_account WHERE username = $1`, username))
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_account SET
			name=$2, email=$3, avatar=$4, active=$5, password_hash=$6, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Name, a.Email, a.Avatar, a.Active, a.PasswordHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) UpdateRole(ctx context.Context, id uuid.UUID, role access.Role) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE user_account SET role=$2, updated_at=NOW() WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM user_account`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+accountColumns+` FROM user_account ORDER BY username LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

func (r *accountRepoPG) scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Name, &a.Email,
		&a.Role, &a.Avatar, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
