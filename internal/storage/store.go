// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grayphite/polaris-frontend-sub000/internal/config"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a persistent string key/value map.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources held by the store.
	Close() error
}

// ErrStoreClosed is returned by operations on a closed store.
// Use errors.Is(err, ErrStoreClosed) to check for this error.
var ErrStoreClosed = &StoreError{Message: "store closed"}

// StoreError represents a scratch store error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return "storage: " + e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// Open opens the backend selected by cfg. A relative or empty path is
// resolved inside dir.
func Open(cfg config.StorageConfig, dir string) (Store, error) {
	backend := strings.ToLower(cfg.Backend)

	path := cfg.Path
	if path == "" {
		switch backend {
		case "sqlite":
			path = "scratch.db"
		default:
			path = "scratch.json"
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	switch backend {
	case "sqlite":
		return NewSQLiteStore(path)
	case "", "file":
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.data[key] = value
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.data, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
