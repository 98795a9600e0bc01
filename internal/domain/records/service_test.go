package records

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/events"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

// -- Mock Repository --

type mockDocRepo struct {
	store map[uuid.UUID]*Document
	err   error
}

func newMockDocRepo() *mockDocRepo {
	return &mockDocRepo{store: make(map[uuid.UUID]*Document)}
}

func (m *mockDocRepo) Insert(_ context.Context, d *Document) error {
	if m.err != nil {
		return m.err
	}
	d.ID = uuid.New()
	d.Version = 1
	d.CreatedAt = time.Now().Add(time.Duration(len(m.store)) * time.Millisecond)
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDocRepo) Get(_ context.Context, kind string, id uuid.UUID) (*Document, error) {
	d, ok := m.store[id]
	if !ok || d.Kind != kind {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocRepo) List(_ context.Context, kind string, limit, offset int) ([]*Document, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	all := []*Document{}
	for _, d := range m.store {
		if d.Kind == kind {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*Document{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockDocRepo) Merge(_ context.Context, kind string, id uuid.UUID, patch json.RawMessage) (*Document, error) {
	d, ok := m.store[id]
	if !ok || d.Kind != kind {
		return nil, ErrNotFound
	}
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil, err
	}
	var p map[string]json.RawMessage
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, err
	}
	for k, v := range p {
		body[k] = v
	}
	merged, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	d.Body = merged
	d.Version++
	d.UpdatedAt = time.Now()
	cp := *d
	return &cp, nil
}

func (m *mockDocRepo) Delete(_ context.Context, kind string, id uuid.UUID) error {
	d, ok := m.store[id]
	if !ok || d.Kind != kind {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockDocRepo) Count(_ context.Context, kind string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, d := range m.store {
		if d.Kind == kind {
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService() (*Service, *mockDocRepo, *recordingPublisher) {
	repo := newMockDocRepo()
	pub := &recordingPublisher{}
	return NewService(repo, DefaultRegistry(), pub, zerolog.Nop()), repo, pub
}

var testActor = Actor{ID: uuid.NewString(), Role: access.RoleAdmin}

const validPatient = `{"name":"Jane Doe","phone":"+15550100","gender":"female","date_of_birth":"1990-04-12"}`

func bodyFields(t *testing.T, d *Document) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(d.Body, &m); err != nil {
		t.Fatalf("body is not an object: %v", err)
	}
	return m
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	for _, k := range reg.All() {
		if k.Module == "" {
			t.Errorf("kind %s has no module", k.Name)
		}
		if _, ok := k.New().(hisapi.Identified); !ok {
			t.Errorf("kind %s has no typed payload", k.Name)
		}
	}
	if _, err := reg.Lookup(access.ResourceUsers); !errors.Is(err, ErrUnknownKind) {
		t.Error("users are served by the identity handler, not the document store")
	}

	inv, _ := reg.Lookup(access.ResourceInvoices)
	if inv.CreateAction != access.ActionIssueInvoice || inv.Deletable() {
		t.Errorf("unexpected invoice kind: %+v", inv)
	}
	ann, _ := reg.Lookup(access.ResourceAnnouncements)
	if ann.DeleteAction != access.ActionDeleteAnnouncement || !ann.Deletable() {
		t.Errorf("unexpected announcement kind: %+v", ann)
	}
	if ann.Module != access.ModuleComms {
		t.Errorf("expected announcements under %s, got %s", access.ModuleComms, ann.Module)
	}
}

func TestCreate(t *testing.T) {
	svc, repo, pub := newTestService()

	doc, err := svc.Create(context.Background(), testActor, access.ResourcePatients,
		[]byte(`{"id":"client-id","version":9,"name":"Jane Doe","phone":"+15550100","gender":"female","date_of_birth":"1990-04-12"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID == uuid.Nil || doc.Version != 1 {
		t.Errorf("expected server-assigned id and version, got %s/%d", doc.ID, doc.Version)
	}
	if doc.CreatedBy == nil || doc.CreatedBy.String() != testActor.ID {
		t.Error("expected created_by to be the actor")
	}
	body := bodyFields(t, repo.store[doc.ID])
	if _, ok := body["id"]; ok {
		t.Error("client id should not be stored in the body")
	}
	if _, ok := body["version"]; ok {
		t.Error("client version should not be stored in the body")
	}
	if body["name"] != "Jane Doe" {
		t.Errorf("expected name to be stored, got %v", body["name"])
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	evt := pub.events[0]
	if evt.RoutingKey() != "patients.created" || evt.ResourceID != doc.ID.String() || evt.ActorRole != "admin" {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestCreate_Rejected(t *testing.T) {
	svc, repo, pub := newTestService()

	tests := []struct {
		name    string
		kind    string
		body    string
		wantErr error
		fields  []string
	}{
		{"unknown kind", "spaceships", validPatient, ErrUnknownKind, nil},
		{"not json", access.ResourcePatients, `{"name":`, ErrInvalidBody, nil},
		{"wrong type", access.ResourcePatients, `{"name":42}`, ErrInvalidBody, nil},
		{"missing required", access.ResourcePatients, `{"name":"Jane"}`, nil, []string{"phone", "gender", "date_of_birth"}},
		{"unknown field", access.ResourcePatients, `{"name":"Jane","shoe_size":44}`, nil, []string{"shoe_size"}},
		{"nested item", access.ResourceInvoices,
			`{"patient_id":"5f2b6a3c-8d3e-4c1a-9b2d-1e0f3a4b5c6d","items":[{"description":"","quantity":1,"unit_price":5}]}`,
			nil, []string{"items[0].description"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), testActor, tt.kind, []byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.fields != nil {
				var verr *hisapi.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				got := map[string]bool{}
				for _, f := range verr.Fields {
					got[f.Field] = true
				}
				for _, f := range tt.fields {
					if !got[f] {
						t.Errorf("expected problem for %s, got %v", f, verr.Fields)
					}
				}
			}
		})
	}
	if len(repo.store) != 0 || len(pub.events) != 0 {
		t.Error("rejected creates must not store or publish anything")
	}
}

func TestPatch_PresentFieldsOnly(t *testing.T) {
	svc, _, pub := newTestService()
	doc, err := svc.Create(context.Background(), testActor, access.ResourcePatients, []byte(validPatient))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Patch(context.Background(), testActor, access.ResourcePatients, doc.ID,
		[]byte(`{"phone":"+15550199","address":"","version":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
	body := bodyFields(t, updated)
	if body["phone"] != "+15550199" || body["name"] != "Jane Doe" {
		t.Errorf("unexpected merged body: %v", body)
	}
	if v, ok := body["address"]; !ok || v != "" {
		t.Errorf("explicitly cleared optional field should be stored empty, got %v", v)
	}
	if len(pub.events) != 2 || pub.events[1].Op != events.OpUpdated {
		t.Errorf("expected an update event, got %+v", pub.events)
	}
}

func TestPatch_Rejected(t *testing.T) {
	svc, _, _ := newTestService()
	doc, err := svc.Create(context.Background(), testActor, access.ResourcePatients, []byte(validPatient))
	if err != nil {
		t.Fatal(err)
	}

	var verr *hisapi.ValidationError
	if _, err := svc.Patch(context.Background(), testActor, access.ResourcePatients, doc.ID, []byte(`{"name":""}`)); !errors.As(err, &verr) {
		t.Errorf("clearing a required field should fail validation, got %v", err)
	}
	if _, err := svc.Patch(context.Background(), testActor, access.ResourcePatients, doc.ID, []byte(`{"id":"x"}`)); !errors.As(err, &verr) {
		t.Errorf("patch with no updatable fields should fail validation, got %v", err)
	}
	if _, err := svc.Patch(context.Background(), testActor, access.ResourcePatients, uuid.New(), []byte(`{"phone":"+15550199"}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Patch(context.Background(), testActor, access.ResourceDoctors, doc.ID, []byte(`{"department":"ER"}`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("a patient must not be reachable as a doctor, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, repo, pub := newTestService()
	ann, err := svc.Create(context.Background(), testActor, access.ResourceAnnouncements,
		[]byte(`{"title":"Drill","message":"Fire drill at noon","audience":["nurse","doctor"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), testActor, access.ResourceAnnouncements, ann.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.store[ann.ID]; ok {
		t.Error("expected announcement to be removed")
	}
	if last := pub.events[len(pub.events)-1]; last.RoutingKey() != "announcements.deleted" {
		t.Errorf("expected delete event, got %s", last.RoutingKey())
	}
	if err := svc.Delete(context.Background(), testActor, access.ResourceAnnouncements, ann.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	patient, err := svc.Create(context.Background(), testActor, access.ResourcePatients, []byte(validPatient))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), testActor, access.ResourcePatients, patient.ID); !errors.Is(err, ErrNotDeletable) {
		t.Errorf("expected ErrNotDeletable, got %v", err)
	}
}

func TestList_EmptyCollection(t *testing.T) {
	svc, _, _ := newTestService()
	docs, total, err := svc.List(context.Background(), access.ResourceLeaveRequests, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs == nil || len(docs) != 0 || total != 0 {
		t.Errorf("expected empty non-nil list, got %v (%d)", docs, total)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	svc, repo, pub := newTestService()
	pub.err = errors.New("broker unavailable")
	doc, err := svc.Create(context.Background(), testActor, access.ResourcePatients, []byte(validPatient))
	if err != nil {
		t.Fatalf("publish failure should be best-effort, got %v", err)
	}
	if _, ok := repo.store[doc.ID]; !ok {
		t.Error("expected document to be stored")
	}
}

func TestSummary(t *testing.T) {
	svc, repo, _ := newTestService()
	for i := 0; i < 2; i++ {
		if _, err := svc.Create(context.Background(), testActor, access.ResourcePatients, []byte(validPatient)); err != nil {
			t.Fatal(err)
		}
	}
	_, err := svc.Create(context.Background(), testActor, access.ResourceInsurancePanels,
		[]byte(`{"name":"Acme Health","coverage_percent":80}`))
	if err != nil {
		t.Fatal(err)
	}

	sum, err := svc.Summary(context.Background(), access.RoleAccountant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sum.Counts[access.ResourcePatients]; ok {
		t.Error("accountant should not see patient counts")
	}
	if sum.Counts[access.ResourceInsurancePanels] != 1 {
		t.Errorf("expected 1 insurance panel, got %d", sum.Counts[access.ResourceInsurancePanels])
	}
	if _, ok := sum.Counts[access.ResourceInvoices]; !ok {
		t.Error("empty visible collections should be reported as 0")
	}

	sum, err = svc.Summary(context.Background(), access.RoleNurse)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Counts[access.ResourcePatients] != 2 {
		t.Errorf("expected 2 patients, got %d", sum.Counts[access.ResourcePatients])
	}

	sum, err = svc.Summary(context.Background(), "janitor")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Modules) != 0 || len(sum.Counts) != 0 {
		t.Errorf("unknown role should see nothing, got %+v", sum)
	}

	repo.err = errors.New("db down")
	if _, err := svc.Summary(context.Background(), access.RoleNurse); err == nil {
		t.Error("expected count failure to be reported")
	}
}

func TestDocument_MarshalJSON(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := &Document{
		ID:        uuid.MustParse("5f2b6a3c-8d3e-4c1a-9b2d-1e0f3a4b5c6d"),
		Kind:      access.ResourceSettings,
		Body:      json.RawMessage(`{"key":"currency","value":"USD"}`),
		CreatedAt: created,
		UpdatedAt: created,
		Version:   3,
	}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var s hisapi.Setting
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.ID != d.ID.String() || s.Version != 3 || s.Key != "currency" || s.Value != "USD" {
		t.Errorf("unexpected decoded setting: %+v", s)
	}
	if s.CreatedAt == nil || !s.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, s.CreatedAt)
	}
}
