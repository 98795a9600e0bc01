// Package nav builds the console menu and guards every module switch
// against the session role.
package nav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/his/his/internal/console/session"
	"github.com/his/his/pkg/access"
)

var (
	// ErrRedirected is matched by every *RedirectError.
	ErrRedirected      = errors.New("module not available")
	ErrNoAccess        = errors.New("no modules are available for this role")
	ErrUnknownResource = errors.New("unknown resource")
)

// RedirectError reports that a requested module was denied and the default
// module was opened instead.
type RedirectError struct {
	Requested access.ModuleID
	Role      access.Role
	Target    access.ModuleID
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("module %s is not available for role %s; opened %s instead", e.Requested, e.Role, e.Target)
}

func (e *RedirectError) Is(target error) bool { return target == ErrRedirected }

// Session is the part of the session store the navigator reads.
type Session interface {
	Role() access.Role
	Subscribe(func(session.Event)) (unsubscribe func())
}

type Navigator struct {
	sess        Session
	unsubscribe func()

	mu           sync.Mutex
	active       access.ModuleID
	lastRedirect *RedirectError
}

func New(sess Session) *Navigator {
	n := &Navigator{sess: sess}
	n.active = access.GuardModule(sess.Role(), access.DefaultModule)
	n.unsubscribe = sess.Subscribe(n.onSession)
	return n
}

// Close detaches the navigator from the session.
func (n *Navigator) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

func (n *Navigator) Menu() []access.Module {
	return access.VisibleModules(n.sess.Role())
}

func (n *Navigator) Active() access.ModuleID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// LastRedirect returns the most recent forced redirect, whether caused by
// Open or by a role change.
func (n *Navigator) LastRedirect() (*RedirectError, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastRedirect, n.lastRedirect != nil
}

// Open activates a module. A module the role cannot see opens the default
// module instead and returns a *RedirectError.
func (n *Navigator) Open(id access.ModuleID) (access.ModuleID, error) {
	role := n.sess.Role()

	n.mu.Lock()
	defer n.mu.Unlock()

	target := access.GuardModule(role, id)
	n.active = target
	if target == "" {
		return "", ErrNoAccess
	}
	if target != id {
		n.lastRedirect = &RedirectError{Requested: id, Role: role, Target: target}
		return target, n.lastRedirect
	}
	return target, nil
}

// OpenResource opens the module that owns a resource collection.
func (n *Navigator) OpenResource(resource string) (access.ModuleID, error) {
	id, ok := access.ResourceModule(resource)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return n.Open(id)
}

func (n *Navigator) onSession(evt session.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch evt.Type {
	case session.EventLoggedOut, session.EventExpired:
		n.active = ""
		n.lastRedirect = nil
	case session.EventLoggedIn:
		n.active = access.GuardModule(evt.User.Role, access.DefaultModule)
		n.lastRedirect = nil
	case session.EventRoleChanged:
		if n.active == "" {
			n.active = access.GuardModule(evt.User.Role, access.DefaultModule)
			return
		}
		target := access.GuardModule(evt.User.Role, n.active)
		if target != n.active {
			n.lastRedirect = &RedirectError{Requested: n.active, Role: evt.User.Role, Target: target}
		}
		n.active = target
	}
}
