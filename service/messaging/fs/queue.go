package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/movegate/internal/clock"
	"github.com/viant/movegate/internal/idgen"
	"github.com/viant/movegate/service/messaging"
)

// State is the lifecycle stage of a stored message; each state maps to a folder.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDead       State = "dlq"
)

// Message is a queue entry persisted as one JSON file.
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Retries   int       `json:"retries"`

	name      string
	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack moves the message to the completed folder, which doubles as a journal.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	return m.queue.settle(context.Background(), m, StateCompleted)
}

// Nack moves the message to the failed folder for a later retry, or to the
// dead letter folder once MaxRetries is exceeded.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	target := StateFailed
	if m.Retries > m.queue.config.MaxRetries {
		target = StateDead
	}
	return m.queue.settle(context.Background(), m, target)
}

// Config holds configuration for the file queue.
type Config struct {
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a default queue configuration rooted at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Queue is a messaging.Queue persisted through afs. Consume does not block:
// it returns (nil, nil) when nothing is ready.
type Queue[T any] struct {
	fs     afs.Service
	config Config
	mu     sync.Mutex
}

// NewQueue creates the queue folders under config.BaseURL.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	config.BaseURL = url.Normalize(config.BaseURL, file.Scheme)
	ret := &Queue[T]{fs: fs, config: config}
	ctx := context.Background()
	for _, state := range []State{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead} {
		dir := ret.dir(state)
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return ret, nil
}

// Publish stores t in the pending folder.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("payload was nil")
	}
	now := clock.Now()
	msg := &Message[T]{
		ID:        idgen.New(),
		Data:      *t,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// names sort in publish order
	msg.name = fmt.Sprintf("%020d-%s.json", now.UnixNano(), msg.ID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.write(ctx, StatePending, msg)
}

// Consume claims the oldest retryable failed message, else the oldest pending one.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failed, err := q.list(ctx, StateFailed)
	if err != nil {
		return nil, err
	}
	for _, object := range failed {
		msg, err := q.read(ctx, object)
		if err != nil {
			return nil, err
		}
		if clock.Since(msg.UpdatedAt) < q.config.RetryDelay {
			continue
		}
		return q.claim(ctx, object, msg)
	}

	pending, err := q.list(ctx, StatePending)
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	msg, err := q.read(ctx, pending[0])
	if err != nil {
		_ = q.fs.Move(ctx, pending[0].URL(), url.Join(q.dir(StateDead), "invalid-"+pending[0].Name()))
		return nil, err
	}
	return q.claim(ctx, pending[0], msg)
}

// Size returns the number of messages in the given state.
func (q *Queue[T]) Size(ctx context.Context, state State) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	objects, err := q.list(ctx, state)
	if err != nil {
		return 0
	}
	return len(objects)
}

func (q *Queue[T]) claim(ctx context.Context, object storage.Object, msg *Message[T]) (*Message[T], error) {
	msg.State = StateProcessing
	msg.UpdatedAt = clock.Now()
	if err := q.write(ctx, StateProcessing, msg); err != nil {
		return nil, fmt.Errorf("failed to claim message %s: %w", msg.ID, err)
	}
	if err := q.fs.Delete(ctx, object.URL()); err != nil {
		return nil, fmt.Errorf("failed to release message %s: %w", msg.ID, err)
	}
	return msg, nil
}

func (q *Queue[T]) settle(ctx context.Context, msg *Message[T], state State) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg.State = state
	msg.UpdatedAt = clock.Now()
	if err := q.write(ctx, state, msg); err != nil {
		return err
	}
	processing := url.Join(q.dir(StateProcessing), msg.name)
	if exists, _ := q.fs.Exists(ctx, processing); exists {
		return q.fs.Delete(ctx, processing)
	}
	return nil
}

func (q *Queue[T]) write(ctx context.Context, state State, msg *Message[T]) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}
	location := url.Join(q.dir(state), msg.name)
	if err = q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message %s: %w", msg.ID, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, object storage.Object) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, object.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", object.Name(), err)
	}
	msg := &Message[T]{}
	if err = json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", object.Name(), err)
	}
	msg.name = object.Name()
	msg.queue = q
	return msg, nil
}

func (q *Queue[T]) list(ctx context.Context, state State) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, q.dir(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", state, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

func (q *Queue[T]) dir(state State) string {
	return url.Join(q.config.BaseURL, string(state))
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
