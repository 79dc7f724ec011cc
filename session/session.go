// Package session holds the upstream session token on behalf of the portal client.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Provider supplies and stores the opaque upstream session token.
// Readers take a snapshot per call; the provider is the single writer.
type Provider interface {
	Token() (string, bool)
	SetToken(token string) error
	ClearToken() error
}

type state struct {
	Token     string    `yaml:"phpsessid"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// FileStore persists the token in a small YAML file.
// The file is re-read whenever its modification time changes, so a token
// written by another process is picked up on the next call.
type FileStore struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current state
	modTime time.Time
}

func NewFileStore(path string, logger *zerolog.Logger) (*FileStore, error) {
	if logger == nil {
		l := zerolog.New(zerolog.NewConsoleWriter())
		logger = &l
	}
	s := &FileStore{
		path:   path,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the session file regardless of its modification time.
// A missing file is an empty session.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.current = state{}
		s.modTime = time.Time{}
		return nil
	} else if err != nil {
		return fmt.Errorf("session: stat %s: %w", s.path, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("session: parse %s: %w", s.path, err)
	}
	s.current = st
	s.modTime = info.ModTime()
	s.logger.Trace().Str("path", s.path).Bool("present", st.Token != "").Msg("Session loaded")
	return nil
}

func (s *FileStore) stale() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return !s.modTime.IsZero()
	}
	return !info.ModTime().Equal(s.modTime)
}

func (s *FileStore) Token() (string, bool) {
	s.mu.RLock()
	if !s.stale() {
		defer s.mu.RUnlock()
		return s.current.Token, s.current.Token != ""
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale() {
		if err := s.load(); err != nil {
			s.logger.Warn().Err(err).Msg("Could not reload session, using last known token")
		}
	}
	return s.current.Token, s.current.Token != ""
}

func (s *FileStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(state{Token: token, UpdatedAt: s.now().UTC()})
}

func (s *FileStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(state{UpdatedAt: s.now().UTC()})
}

// write replaces the session file atomically.
func (s *FileStore) write(st state) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	s.current = st
	s.logger.Debug().Bool("present", st.Token != "").Msg("Session saved")
	return nil
}

// MemoryStore keeps the token in memory only.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) ClearToken() error {
	return m.SetToken("")
}
