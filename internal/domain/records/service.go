package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/events"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

var ErrInvalidBody = errors.New("invalid request body")

// Actor is the authenticated user behind a mutation.
type Actor struct {
	ID   string
	Role access.Role
}

type Service struct {
	docs      DocumentRepository
	kinds     *Registry
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(docs DocumentRepository, kinds *Registry, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{docs: docs, kinds: kinds, publisher: publisher, logger: logger, now: time.Now}
}

func (s *Service) Kinds() *Registry {
	return s.kinds
}

func (s *Service) List(ctx context.Context, kind string, limit, offset int) ([]*Document, int, error) {
	if _, err := s.kinds.Lookup(kind); err != nil {
		return nil, 0, err
	}
	return s.docs.List(ctx, kind, limit, offset)
}

func (s *Service) Get(ctx context.Context, kind string, id uuid.UUID) (*Document, error) {
	if _, err := s.kinds.Lookup(kind); err != nil {
		return nil, err
	}
	return s.docs.Get(ctx, kind, id)
}

// Create decodes raw into the kind's payload, validates it as a complete
// record and stores the normalized fields.
func (s *Service) Create(ctx context.Context, actor Actor, kind string, raw []byte) (*Document, error) {
	k, err := s.kinds.Lookup(kind)
	if err != nil {
		return nil, err
	}
	payload := k.New()
	keys, err := decode(raw, payload)
	if err != nil {
		return nil, err
	}
	if err := hisapi.CheckKeys(payload, keys); err != nil {
		return nil, err
	}
	if err := hisapi.ValidateCreate(payload); err != nil {
		return nil, err
	}
	body, err := normalize(payload)
	if err != nil {
		return nil, err
	}

	doc := &Document{Kind: kind, Body: body}
	if id, err := uuid.Parse(actor.ID); err == nil {
		doc.CreatedBy = &id
	}
	if err := s.docs.Insert(ctx, doc); err != nil {
		return nil, err
	}
	s.publish(ctx, actor, doc, events.OpCreated)
	return doc, nil
}

// Patch applies the fields present in raw. Only those fields are validated,
// so required fields may be omitted but not cleared.
func (s *Service) Patch(ctx context.Context, actor Actor, kind string, id uuid.UUID, raw []byte) (*Document, error) {
	k, err := s.kinds.Lookup(kind)
	if err != nil {
		return nil, err
	}
	payload := k.New()
	keys, err := decode(raw, payload)
	if err != nil {
		return nil, err
	}
	if err := hisapi.ValidatePatch(payload, keys); err != nil {
		return nil, err
	}
	patch, err := subset(raw, keys)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.Merge(ctx, kind, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, actor, doc, events.OpUpdated)
	return doc, nil
}

func (s *Service) Delete(ctx context.Context, actor Actor, kind string, id uuid.UUID) error {
	k, err := s.kinds.Lookup(kind)
	if err != nil {
		return err
	}
	if !k.Deletable() {
		return ErrNotDeletable
	}
	if err := s.docs.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.publish(ctx, actor, &Document{ID: id, Kind: kind}, events.OpDeleted)
	return nil
}

// Summary counts the records of every collection the role can open.
func (s *Service) Summary(ctx context.Context, role access.Role) (*hisapi.DashboardSummary, error) {
	out := &hisapi.DashboardSummary{Modules: []hisapi.ModuleRef{}, Counts: map[string]int{}}
	for _, m := range access.VisibleModules(role) {
		out.Modules = append(out.Modules, hisapi.ModuleRef{ID: m.ID, Label: m.Label})
	}
	for _, k := range s.kinds.All() {
		if !access.IsModuleAllowed(role, k.Module) {
			continue
		}
		n, err := s.docs.Count(ctx, k.Name)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", k.Name, err)
		}
		out.Counts[k.Name] = n
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, actor Actor, doc *Document, op events.Op) {
	evt := events.Event{
		ID:         uuid.NewString(),
		Kind:       doc.Kind,
		Op:         op,
		ResourceID: doc.ID.String(),
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("routing_key", evt.RoutingKey()).Str("resource_id", evt.ResourceID).
			Msg("publish event failed")
	}
}

// decode unmarshals raw into payload and returns its top-level keys.
func decode(raw []byte, payload any) ([]string, error) {
	keys, err := hisapi.PresentKeys(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return keys, nil
}

// normalize re-encodes a validated payload without the server-owned fields.
func normalize(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k := range hisapi.MetaKeys {
		delete(fields, k)
	}
	return json.Marshal(fields)
}

// subset keeps only keys from the JSON object raw.
func subset(raw []byte, keys []string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		out[k] = fields[k]
	}
	return json.Marshal(out)
}
