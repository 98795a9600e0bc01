package records

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Document is one stored resource. Body holds the resource fields exactly as
// validated; the server-owned fields live beside it.
type Document struct {
	ID        uuid.UUID
	Kind      string
	Body      json.RawMessage
	CreatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// MarshalJSON flattens the body and adds id, created_at, updated_at and
// version, which is the shape the console decodes into its typed payloads.
func (d *Document) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(d.Body) > 0 {
		if err := json.Unmarshal(d.Body, &fields); err != nil {
			return nil, fmt.Errorf("document %s: body is not an object: %w", d.ID, err)
		}
	}

	meta := map[string]any{
		"id":         d.ID.String(),
		"created_at": d.CreatedAt.UTC(),
		"updated_at": d.UpdatedAt.UTC(),
		"version":    d.Version,
	}
	for k, v := range meta {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
