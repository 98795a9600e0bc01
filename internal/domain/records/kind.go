package records

import (
	"errors"

	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

var (
	ErrUnknownKind  = errors.New("unknown resource kind")
	ErrNotDeletable = errors.New("resource kind cannot be deleted")
)

// Kind is a document collection served under /api/v1/<Name>. Empty actions
// mean module visibility alone is enough.
type Kind struct {
	Name         string
	Module       access.ModuleID
	CreateAction access.Action
	UpdateAction access.Action
	DeleteAction access.Action
}

// New returns an empty typed payload for the kind.
func (k Kind) New() any {
	p, _ := hisapi.NewPayload(k.Name)
	return p
}

// Deletable reports whether documents of this kind may be removed at all.
func (k Kind) Deletable() bool {
	return k.DeleteAction != ""
}

// Registry holds the served kinds in menu order.
type Registry struct {
	kinds  []Kind
	byName map[string]Kind
}

func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{byName: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		r.kinds = append(r.kinds, k)
		r.byName[k.Name] = k
	}
	return r
}

func (r *Registry) Lookup(name string) (Kind, error) {
	k, ok := r.byName[name]
	if !ok {
		return Kind{}, ErrUnknownKind
	}
	return k, nil
}

func (r *Registry) All() []Kind {
	out := make([]Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// DefaultRegistry returns every document-backed collection of the console.
// Users are served by the identity package.
func DefaultRegistry() *Registry {
	var kinds []Kind
	for _, m := range access.Modules() {
		for _, name := range access.ResourcesIn(m.ID) {
			if name == access.ResourceUsers {
				continue
			}
			k := Kind{Name: name, Module: m.ID}
			k.CreateAction, _ = access.ResourceAction(name, access.OpCreate)
			k.UpdateAction, _ = access.ResourceAction(name, access.OpUpdate)
			k.DeleteAction, _ = access.ResourceAction(name, access.OpDelete)
			kinds = append(kinds, k)
		}
	}
	return NewRegistry(kinds...)
}
