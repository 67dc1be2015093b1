// Package memory is an in-memory DocumentStore.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

type object struct {
	data      []byte
	updatedAt time.Time
	revision  int64
}

// Store is an in-memory implementation of the publishedcontent.DocumentStore interface
type Store struct {
	mu       sync.RWMutex
	objects  map[string]*object
	revision int64
}

// New creates a new in-memory document store
func New() *Store {
	return &Store{
		objects: make(map[string]*object),
	}
}

// Stat retrieves metadata for a document. The ETag is a revision that changes on every Put.
func (s *Store) Stat(ctx context.Context, key string) (*publishedcontent.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, fmt.Errorf("stat %s: %w", key, publishedcontent.ErrObjectNotFound)
	}

	return &publishedcontent.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: "application/xml",
		UpdatedAt:   obj.updatedAt,
		ETag:        strconv.FormatInt(obj.revision, 10),
		Metadata:    map[string]string{},
	}, nil
}

// Put stores a document
func (s *Store) Put(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	s.objects[key] = &object{data: data, updatedAt: time.Now().UTC(), revision: s.revision}
	return nil
}

// Get opens a document for reading
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, fmt.Errorf("get %s: %w", key, publishedcontent.ErrObjectNotFound)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return fmt.Errorf("delete %s: %w", key, publishedcontent.ErrObjectNotFound)
	}

	delete(s.objects, key)
	return nil
}
