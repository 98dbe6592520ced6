package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	neturl "net/url"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/movegate/service/dao"
)

// Store persists entities as one JSON document per key under baseURL. Any
// scheme supported by viant/afs works (file://, mem://, gs://, s3:// ...).
type Store[T any] struct {
	baseURL     string
	fs          afs.Service
	keySelector func(*T) string
	mu          sync.RWMutex
}

// Ensure Store implements dao.Service
var _ dao.Service[string, struct{}] = (*Store[struct{}])(nil)

// Save persists an entity.
func (s *Store[T]) Save(ctx context.Context, entity *T) error {
	if entity == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(entity)
	if key == "" {
		return dao.ErrInvalidID
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(key)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", location, err)
	}
	return nil
}

// Load retrieves an entity or dao.ErrNotFound.
func (s *Store[T]) Load(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	location := s.location(key)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", location, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	var ret T
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", location, err)
	}
	return &ret, nil
}

// Delete removes an entity; deleting an absent key is not an error.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	location := s.location(key)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", location, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete %s: %w", location, err)
	}
	return nil
}

// List returns every stored entity. Unreadable documents are logged and skipped.
func (s *Store[T]) List(ctx context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.baseURL, err)
	}

	var ret []*T
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("movegate: failed to read %s: %v", object.URL(), err)
			continue
		}
		var entity T
		if err := json.Unmarshal(data, &entity); err != nil {
			log.Printf("movegate: failed to unmarshal %s: %v", object.URL(), err)
			continue
		}
		ret = append(ret, &entity)
	}
	return ret, nil
}

func (s *Store[T]) location(key string) string {
	return url.Join(s.baseURL, neturl.PathEscape(key)+".json")
}

// New creates a store rooted at baseURL, creating the folder when missing.
func New[T any](baseURL string, keySelector func(*T) string) (*Store[T], error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if keySelector == nil {
		return nil, fmt.Errorf("key selector cannot be nil")
	}
	fs := afs.New()
	ctx := context.Background()
	baseURL = url.Normalize(baseURL, file.Scheme)
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", baseURL, err)
		}
	}
	return &Store[T]{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		fs:          fs,
		keySelector: keySelector,
	}, nil
}

