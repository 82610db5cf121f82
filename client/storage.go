// Package client is the Go SDK for the ElimuConnect API. It keeps a local
// session, guards route access by role and follows conversations through
// polling with an optional push channel.
package client

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// fixed storage keys; stable across releases so sessions survive upgrades
const (
	tokenKey = "elimu_token"
	userKey  = "elimu_user"
)

// Storage persists session state between runs.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string)
}

// FileStorage keeps each key in its own file under dir.
type FileStorage struct {
	dir string
}

var _ Storage = (*FileStorage)(nil)

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating storage dir")
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *FileStorage) Get(key string) (string, bool) {
	data, err := ioutil.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *FileStorage) Set(key, value string) error {
	return errors.Wrap(ioutil.WriteFile(s.path(key), []byte(value), 0o600), "writing "+key)
}

func (s *FileStorage) Delete(key string) {
	_ = os.Remove(s.path(key))
}

// MemStorage is an in-memory Storage for tests.
type MemStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ Storage = (*MemStorage)(nil)

func NewMemStorage() *MemStorage {
	return &MemStorage{items: make(map[string]string)}
}

func (s *MemStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *MemStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}
