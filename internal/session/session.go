// Package session persists the remembered login between client runs. The
// session file is advisory; a missing or unreadable file just means nobody is
// remembered.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session is the remembered identity.
type Session struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
}

// Store reads and writes the session file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the session, creating parent directories as needed.
func (s *Store) Save(sess Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Load returns the remembered session, or nil when none exists. A corrupt
// file is treated as absent, not as an error.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, nil
	}
	if sess.AccountID == uuid.Nil || sess.Email == "" {
		return nil, nil
	}
	return &sess, nil
}

// Clear forgets the remembered session. Clearing an absent session is not an
// error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
