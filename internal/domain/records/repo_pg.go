package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/db"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type docRepoPG struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) DocumentRepository {
	return &docRepoPG{pool: pool}
}

func (r *docRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const docColumns = `id, kind, body, created_by, version, created_at, updated_at`

func (r *docRepoPG) Insert(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO resource_document (id, kind, body, created_by)
		VALUES ($1, $2, $3::jsonb, $4)
		RETURNING version, created_at, updated_at`,
		d.ID, d.Kind, string(d.Body), d.CreatedBy,
	).Scan(&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", d.Kind, err)
	}
	return nil
}

func (r *docRepoPG) Get(ctx context.Context, kind string, id uuid.UUID) (*Document, error) {
	return r.scanDoc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+docColumns+` FROM resource_document WHERE kind = $1 AND id = $2`, kind, id))
}

func (r *docRepoPG) List(ctx context.Context, kind string, limit, offset int) ([]*Document, int, error) {
	total, err := r.Count(ctx, kind)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+docColumns+` FROM resource_document
		WHERE kind = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := r.scanDoc(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

func (r *docRepoPG) Merge(ctx context.Context, kind string, id uuid.UUID, patch json.RawMessage) (*Document, error) {
	return r.scanDoc(r.conn(ctx).QueryRow(ctx, `
		UPDATE resource_document SET
			body = body || $3::jsonb, version = version + 1, updated_at = NOW()
		WHERE kind = $1 AND id = $2
		RETURNING `+docColumns, kind, id, string(patch)))
}

func (r *docRepoPG) Delete(ctx context.Context, kind string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM resource_document WHERE kind = $1 AND id = $2`, kind, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *docRepoPG) Count(ctx context.Context, kind string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM resource_document WHERE kind = $1`, kind).Scan(&n)
	return n, err
}

func (r *docRepoPG) scanDoc(row pgx.Row) (*Document, error) {
	var (
		d    Document
		body []byte
	)
	err := row.Scan(&d.ID, &d.Kind, &body, &d.CreatedBy, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Body = body
	return &d, nil
}
