package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileStore persists accounts as a single JSON document. Store is called
// after any change to encrypted secrets or cookies that must survive a
// process restart.
type FileStore struct {
	mu       sync.Mutex
	path     string
	accounts []*Account
}

// accountsFile is the on-disk shape of the store.
type accountsFile struct {
	Accounts []*Account `json:"accounts"`
}

// NewFileStore creates a store backed by the given path. The file is loaded
// lazily on first use; a missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read accounts file: %w", err)
	}
	var f accountsFile
	if err = json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse accounts file: %w", err)
	}
	s.accounts = f.Accounts
	return nil
}

// Find returns the account with the given username, or nil.
func (s *FileStore) Find(username string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

// All returns the loaded accounts.
func (s *FileStore) All() []*Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Remove disposes the named account and drops it from storage.
func (s *FileStore) Remove(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.accounts {
		if a.Username == username {
			a.Dispose()
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			return s.save()
		}
	}
	return nil
}

// Store inserts or updates the account and writes the file.
func (s *FileStore) Store(a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i, existing := range s.accounts {
		if existing.Username == a.Username {
			s.accounts[i] = a
			found = true
			break
		}
	}
	if !found {
		s.accounts = append(s.accounts, a)
	}
	return s.save()
}

func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}
	data, err := json.MarshalIndent(accountsFile{Accounts: s.accounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize accounts: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	log.Debugf("saved %d account(s) to %s", len(s.accounts), s.path)
	return nil
}
