// Package session holds the console's authenticated identity. A Store is
// built once at the application root and handed to everything that needs
// the token or the role.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/his/his/internal/console/client"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	AuthenticationFailed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AuthenticationFailed:
		return "authentication-failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonUnreachable        Reason = "unreachable"
	ReasonOther              Reason = "other"
)

const (
	MessageInvalidCredentials = "Invalid username or password."
	MessageUnreachable        = "Cannot connect to the server. Check that the backend is running and try again."
)

// Failure explains the last failed login.
type Failure struct {
	Reason  Reason
	Message string
}

func (f *Failure) Error() string { return f.Message }

var (
	ErrLoginInProgress      = errors.New("a login is already in progress")
	ErrAlreadyAuthenticated = errors.New("already logged in; log out first")
	ErrNotAuthenticated     = errors.New("not logged in")
)

type EventType string

const (
	EventLoggedIn    EventType = "logged-in"
	EventLoggedOut   EventType = "logged-out"
	EventExpired     EventType = "expired"
	EventRoleChanged EventType = "role-changed"
)

type Event struct {
	Type         EventType
	User         hisapi.User
	PreviousRole access.Role
}

// Authenticator is the server side of a login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*hisapi.LoginResponse, error)
	Logout(ctx context.Context) error
}

type subscriber struct {
	id int
	fn func(Event)
}

// Store is the single writer of session state.
type Store struct {
	auth    Authenticator
	persist Persister
	logger  zerolog.Logger

	mu         sync.RWMutex
	state      State
	session    *Session
	failure    *Failure
	loggingOut bool
	subs       []subscriber
	nextID     int
}

func NewStore(auth Authenticator, persist Persister, logger zerolog.Logger) *Store {
	if persist == nil {
		persist = NewMemoryPersister()
	}
	return &Store{auth: auth, persist: persist, logger: logger}
}

// Subscribe registers fn for session events. Handlers run synchronously on
// the goroutine that caused the transition, after the store is unlocked.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) emit(evt Event) {
	s.mu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(evt)
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the bearer token, or "" without a session.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

func (s *Store) User() (hisapi.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return hisapi.User{}, false
	}
	return s.session.User, true
}

// Role returns the session role, or "" without a session.
func (s *Store) Role() access.Role {
	u, _ := s.User()
	return u.Role
}

// Failure returns the reason of the last failed login.
func (s *Store) Failure() (Failure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure == nil {
		return Failure{}, false
	}
	return *s.failure, true
}

// Login submits credentials. On failure the store moves to
// AuthenticationFailed and the returned error is a *Failure.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	switch s.state {
	case Authenticating:
		s.mu.Unlock()
		return ErrLoginInProgress
	case Authenticated:
		s.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	s.state = Authenticating
	s.failure = nil
	s.mu.Unlock()

	resp, err := s.auth.Login(ctx, username, password)
	if err != nil {
		f := classify(err)
		s.mu.Lock()
		s.state = AuthenticationFailed
		s.failure = f
		s.mu.Unlock()
		s.logger.Debug().Err(err).Str("reason", string(f.Reason)).Msg("login failed")
		return f
	}

	sess := &Session{Token: resp.Token, User: resp.User}
	s.mu.Lock()
	s.state = Authenticated
	s.session = sess
	s.mu.Unlock()

	saveErr := s.persist.Save(sess)
	s.emit(Event{Type: EventLoggedIn, User: sess.User})
	if saveErr != nil {
		return fmt.Errorf("logged in but could not persist session: %w", saveErr)
	}
	return nil
}

func classify(err error) *Failure {
	switch {
	case client.IsKind(err, client.KindUnauthorized):
		return &Failure{Reason: ReasonInvalidCredentials, Message: MessageInvalidCredentials}
	case client.IsKind(err, client.KindNetwork):
		return &Failure{Reason: ReasonUnreachable, Message: MessageUnreachable}
	}
	return &Failure{Reason: ReasonOther, Message: err.Error()}
}

// Restore adopts a persisted session without contacting the server.
func (s *Store) Restore() bool {
	sess, err := s.persist.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable session")
		_ = s.persist.Clear()
		return false
	}
	if !sess.valid() {
		return false
	}

	s.mu.Lock()
	if s.state == Authenticated || s.state == Authenticating {
		s.mu.Unlock()
		return false
	}
	s.state = Authenticated
	s.session = sess
	s.failure = nil
	s.mu.Unlock()

	s.emit(Event{Type: EventLoggedIn, User: sess.User})
	return true
}

// Logout ends the session. The server call is best-effort; local state is
// always cleared.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	authed := s.state == Authenticated
	if authed {
		s.loggingOut = true
	}
	s.mu.Unlock()

	if authed {
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("server logout failed")
		}
	}
	return s.end(EventLoggedOut)
}

// Invalidate ends the session after the server rejected its token.
func (s *Store) Invalidate() {
	s.mu.RLock()
	skip := s.state != Authenticated || s.loggingOut
	s.mu.RUnlock()
	if skip {
		return
	}
	if err := s.end(EventExpired); err != nil {
		s.logger.Warn().Err(err).Msg("clear expired session")
	}
}

func (s *Store) end(typ EventType) error {
	s.mu.Lock()
	var user hisapi.User
	if s.session != nil {
		user = s.session.User
	}
	s.state = Unauthenticated
	s.session = nil
	s.failure = nil
	s.loggingOut = false
	s.mu.Unlock()

	err := s.persist.Clear()
	s.emit(Event{Type: typ, User: user})
	return err
}

// UpdateUser replaces the session identity, typically with a fresh copy
// from the server.
func (s *Store) UpdateUser(u hisapi.User) error {
	s.mu.Lock()
	if s.state != Authenticated || s.session == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	prev := s.session.User.Role
	sess := &Session{Token: s.session.Token, User: u}
	s.session = sess
	s.mu.Unlock()

	err := s.persist.Save(sess)
	if prev != u.Role {
		s.emit(Event{Type: EventRoleChanged, User: u, PreviousRole: prev})
	}
	return err
}
