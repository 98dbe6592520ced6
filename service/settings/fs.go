package settings

import (
	"bytes"
	"context"
	"fmt"
	neturl "net/url"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// FS keeps one YAML document per scope under a base URL (file://, mem://, or
// any scheme afs supports).
type FS struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

// NewFS creates a store rooted at baseURL.
func NewFS(baseURL string) *FS {
	return &FS{
		baseURL: url.Normalize(baseURL, file.Scheme),
		fs:      afs.New(),
	}
}

func (s *FS) Get(ctx context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(ctx, scope)
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *FS) Set(ctx context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load(ctx, scope)
	if err != nil {
		return err
	}
	values[key] = value
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode settings %s: %w", scope, err)
	}
	if err = s.fs.Upload(ctx, s.location(scope), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store settings %s: %w", scope, err)
	}
	return nil
}

func (s *FS) load(ctx context.Context, scope string) (map[string]string, error) {
	values := make(map[string]string)
	location := s.location(scope)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check settings %s: %w", scope, err)
	}
	if !exists {
		return values, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings %s: %w", scope, err)
	}
	if err = yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode settings %s: %w", scope, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (s *FS) location(scope string) string {
	return url.Join(s.baseURL, neturl.PathEscape(scope)+".yaml")
}
