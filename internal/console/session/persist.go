package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/his/his/pkg/hisapi"
)

// Session pairs the bearer token with the identity it was issued for.
type Session struct {
	Token string      `yaml:"token"`
	User  hisapi.User `yaml:"user"`
}

func (s *Session) valid() bool {
	return s != nil && s.Token != "" && s.User.ID != ""
}

// Persister keeps a session across process restarts. Load returns nil, nil
// when nothing is stored.
type Persister interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// FilePersister stores the session as YAML readable only by the owner.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Load() (*Session, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", p.path, err)
	}
	return &s, nil
}

func (p *FilePersister) Save(s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (p *FilePersister) Clear() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// MemoryPersister keeps the session in process memory.
type MemoryPersister struct {
	mu      sync.Mutex
	session *Session
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	cp := *p.session
	return &cp, nil
}

func (p *MemoryPersister) Save(s *Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *s
	p.session = &cp
	return nil
}

func (p *MemoryPersister) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = nil
	return nil
}
