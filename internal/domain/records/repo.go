package records

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

type DocumentRepository interface {
	Insert(ctx context.Context, d *Document) error
	Get(ctx context.Context, kind string, id uuid.UUID) (*Document, error)
	List(ctx context.Context, kind string, limit, offset int) ([]*Document, int, error)
	// Merge overlays patch (a JSON object) onto the stored body and bumps the
	// version.
	Merge(ctx context.Context, kind string, id uuid.UUID, patch json.RawMessage) (*Document, error)
	Delete(ctx context.Context, kind string, id uuid.UUID) error
	Count(ctx context.Context, kind string) (int, error)
}
