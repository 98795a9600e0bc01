// Package workspace holds the console's per-resource views. Each view owns
// its load lifecycle; responses from a superseded load are discarded.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/his/his/internal/console/client"
	"github.com/his/his/pkg/hisapi"
)

type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Empty
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

const NoRecordsMessage = "No records found."

// ErrStale is returned by a load whose response arrived after a newer load
// or a reset. Its result was not applied.
var ErrStale = errors.New("response discarded: view was reloaded or reset")

// Backend is the synchronization client as seen by a view.
type Backend = client.Records

// View mirrors one server collection. T is a payload struct type such as
// hisapi.Patient.
type View[T hisapi.Identified] struct {
	resource string
	backend  Backend
	logger   zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	epoch  uint64
	cancel context.CancelFunc
	status Status
	items  []T
	err    error
}

func NewView[T hisapi.Identified](resource string, backend Backend, logger zerolog.Logger) *View[T] {
	return &View[T]{
		resource: resource,
		backend:  backend,
		logger:   logger.With().Str("resource", resource).Logger(),
	}
}

func (v *View[T]) Resource() string { return v.resource }

// Load fetches the collection, cancelling any load still in flight.
func (v *View[T]) Load(ctx context.Context) error {
	return v.load(ctx, false)
}

// Refresh reloads in the background sense: a failure is logged and the
// current items and status are kept.
func (v *View[T]) Refresh(ctx context.Context) {
	if err := v.load(ctx, true); err != nil && !errors.Is(err, ErrStale) {
		v.logger.Warn().Err(err).Msg("background refresh failed")
	}
}

func (v *View[T]) load(ctx context.Context, bestEffort bool) error {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	lctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	if !bestEffort {
		v.status = Loading
		v.err = nil
	}
	v.mu.Unlock()
	defer cancel()

	items, err := v.fetch(lctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return ErrStale
	}
	v.cancel = nil

	if err != nil {
		if !bestEffort {
			v.status = Failed
			v.err = err
		}
		return err
	}
	v.items = items
	v.err = nil
	if len(items) == 0 {
		v.status = Empty
	} else {
		v.status = Ready
	}
	return nil
}

func (v *View[T]) fetch(ctx context.Context) ([]T, error) {
	return client.Load[T](ctx, v.backend, v.resource)
}

// Create posts payload and appends the stored entity. On error the view is
// unchanged and the caller still holds its input.
func (v *View[T]) Create(ctx context.Context, payload T) (T, error) {
	epoch := v.currentEpoch()
	created, err := client.Create(ctx, v.backend, v.resource, payload)
	if err != nil {
		return created, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch == v.epoch {
		v.items = append(v.items, created)
		v.status = Ready
	}
	return created, nil
}

// Get fetches one record and refreshes the local copy.
func (v *View[T]) Get(ctx context.Context, id string) (T, error) {
	epoch := v.currentEpoch()
	item, err := client.Get[T](ctx, v.backend, v.resource, id)
	if err != nil {
		return item, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch == v.epoch {
		v.upsert(id, item)
	}
	return item, nil
}

// Update sends the non-empty fields of patch and replaces the local copy.
func (v *View[T]) Update(ctx context.Context, id string, patch T) (T, error) {
	epoch := v.currentEpoch()
	updated, err := client.Update(ctx, v.backend, v.resource, id, patch)
	if err != nil {
		return updated, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch == v.epoch {
		v.upsert(id, updated)
	}
	return updated, nil
}

// upsert replaces the item with the given id or appends it. v.mu is held.
func (v *View[T]) upsert(id string, item T) {
	for i := range v.items {
		if v.items[i].GetID() == id {
			v.items[i] = item
			return
		}
	}
	v.items = append(v.items, item)
	v.status = Ready
}

// Delete removes a record on the server and locally. It reports false when
// the server no longer had it.
func (v *View[T]) Delete(ctx context.Context, id string) (bool, error) {
	epoch := v.currentEpoch()
	deleted, err := v.backend.Delete(ctx, v.resource, id)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch != v.epoch {
		return deleted, nil
	}
	for i := range v.items {
		if v.items[i].GetID() == id {
			v.items = append(v.items[:i:i], v.items[i+1:]...)
			break
		}
	}
	if len(v.items) == 0 && (v.status == Ready || v.status == Empty) {
		v.status = Empty
	}
	return deleted, nil
}

// Reset drops every item and abandons in-flight work.
func (v *View[T]) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.gen++
	v.epoch++
	v.items = nil
	v.err = nil
	v.status = Idle
}

func (v *View[T]) currentEpoch() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch
}

func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View[T]) Find(id string) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, item := range v.items {
		if item.GetID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (v *View[T]) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *View[T]) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Message is the neutral text a view shows instead of its items.
func (v *View[T]) Message() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.status {
	case Loading:
		return "Loading..."
	case Empty:
		return NoRecordsMessage
	case Failed:
		if v.err != nil {
			return v.err.Error()
		}
	}
	return ""
}
