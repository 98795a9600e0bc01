package workspace

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/his/his/internal/console/session"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

type resettable interface {
	Resource() string
	Reset()
}

// Session is the part of the session store the workspace listens to.
type Session interface {
	Subscribe(func(session.Event)) (unsubscribe func())
}

// Workspace owns the views of one console session. Every view is reset when
// the session ends, starts or loses access to the view's module.
type Workspace struct {
	backend     Backend
	logger      zerolog.Logger
	unsubscribe func()

	mu    sync.Mutex
	views map[string]resettable
}

func New(backend Backend, sess Session, logger zerolog.Logger) *Workspace {
	w := &Workspace{
		backend: backend,
		logger:  logger,
		views:   make(map[string]resettable),
	}
	w.unsubscribe = sess.Subscribe(w.onSession)
	return w
}

func (w *Workspace) Close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
}

// ViewFor returns the view of a resource, creating it on first use. Asking
// for the same resource with a different payload type panics.
func ViewFor[T hisapi.Identified](w *Workspace, resource string) *View[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.views[resource]; ok {
		v, ok := existing.(*View[T])
		if !ok {
			panic(fmt.Sprintf("workspace: resource %s already has a view of type %T", resource, existing))
		}
		return v
	}
	v := NewView[T](resource, w.backend, w.logger)
	w.views[resource] = v
	return v
}

// ResetAll clears every view.
func (w *Workspace) ResetAll() {
	for _, v := range w.snapshot() {
		v.Reset()
	}
}

func (w *Workspace) snapshot() []resettable {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]resettable, 0, len(w.views))
	for _, v := range w.views {
		out = append(out, v)
	}
	return out
}

func (w *Workspace) onSession(evt session.Event) {
	switch evt.Type {
	case session.EventLoggedIn, session.EventLoggedOut, session.EventExpired:
		w.ResetAll()
		w.logger.Debug().Str("event", string(evt.Type)).Msg("workspace cleared")
	case session.EventRoleChanged:
		for _, v := range w.snapshot() {
			if !access.CanAccessResource(evt.User.Role, v.Resource()) {
				v.Reset()
			}
		}
	}
}
