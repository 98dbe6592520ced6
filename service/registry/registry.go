package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sort"
	"sync"

	"github.com/viant/movegate/internal/idgen"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/dao"
	"github.com/viant/movegate/service/dao/store"
)

var (
	// ErrAuthoritative is returned when folding remote deltas into the authoritative registry.
	ErrAuthoritative = errors.New("registry: authoritative registry does not accept remote deltas")
	// ErrNotAuthoritative is returned when a mirror is asked for a replication snapshot.
	ErrNotAuthoritative = errors.New("registry: mirror cannot author snapshots")
)

// Replicator broadcasts registry changes.
type Replicator func(ctx context.Context, updates *model.Updates) error

// Filter parameter names.
const (
	ParamRequesterID = "RequesterID"
	ParamContainerID = "ContainerID"
)

// Change describes how one entity changed while applying a delta.
type Change struct {
	EntityID string
	Previous *model.MovementRequest
	Current  *model.MovementRequest
}

// Added reports whether the entity was not pending before.
func (c Change) Added() bool { return c.Previous == nil && c.Current != nil }

// Removed reports whether the entity is no longer pending.
func (c Change) Removed() bool { return c.Current == nil }

// Registry maps entity IDs to pending movement requests.
type Registry struct {
	mu            sync.Mutex
	store         dao.Service[string, model.MovementRequest]
	replicate     Replicator
	authoritative bool
	epoch         string
	revision      uint64

	// mirror watermark
	appliedEpoch    string
	appliedRevision uint64
	retired         map[string]bool
}

// New creates a registry; without WithReplicator it is a mirror.
func New(options ...Option) *Registry {
	ret := &Registry{}
	for _, option := range options {
		option(ret)
	}
	if ret.store == nil {
		ret.store = store.NewCloningStore[string, model.MovementRequest](entityKey, (*model.MovementRequest).Clone)
	}
	if ret.epoch == "" {
		ret.epoch = idgen.New()
	}
	return ret
}

func entityKey(r *model.MovementRequest) string { return r.EntityID }

// Authoritative reports whether this registry is the replicated source of truth.
func (r *Registry) Authoritative() bool { return r.authoritative }

// Epoch returns the replication epoch.
func (r *Registry) Epoch() string { return r.epoch }

// Put inserts or replaces the request for its entity.
func (r *Registry) Put(ctx context.Context, request *model.MovementRequest) error {
	if request == nil {
		return fmt.Errorf("registry: %w", dao.ErrNilEntity)
	}
	if err := request.Validate(); err != nil {
		return err
	}
	entry := request.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("registry: failed to save %s: %w", entry.EntityID, err)
	}
	r.publish(ctx, map[string]*model.MovementRequest{entry.EntityID: entry.Clone()})
	return nil
}

// Remove deletes the entity's request and returns it; absent entities yield nil.
func (r *Registry) Remove(ctx context.Context, entityID string) (*model.MovementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, err := r.load(ctx, entityID)
	if err != nil || previous == nil {
		return nil, err
	}
	if err = r.store.Delete(ctx, entityID); err != nil {
		return nil, fmt.Errorf("registry: failed to delete %s: %w", entityID, err)
	}
	r.publish(ctx, map[string]*model.MovementRequest{entityID: nil})
	return previous, nil
}

// Get returns a copy of the entity's request, or nil.
func (r *Registry) Get(ctx context.Context, entityID string) (*model.MovementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, entityID)
}

// Has reports whether the entity has a pending request.
func (r *Registry) Has(ctx context.Context, entityID string) bool {
	entry, err := r.Get(ctx, entityID)
	return err == nil && entry != nil
}

// All returns copies of every pending request ordered by entity ID.
func (r *Registry) All(ctx context.Context) ([]*model.MovementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(ctx)
}

// Filter narrows All by the RequesterID and ContainerID parameters.
func (r *Registry) Filter(ctx context.Context, parameters ...*dao.Parameter) ([]*model.MovementRequest, error) {
	all, err := r.All(ctx)
	if err != nil || len(parameters) == 0 {
		return all, err
	}
	var ret []*model.MovementRequest
	for _, entry := range all {
		if dao.Match(ParamRequesterID, entry.RequesterID, parameters) && dao.Match(ParamContainerID, entry.ContainerID, parameters) {
			ret = append(ret, entry)
		}
	}
	return ret, nil
}

// Len returns the number of pending requests.
func (r *Registry) Len(ctx context.Context) int {
	all, err := r.All(ctx)
	if err != nil {
		return 0
	}
	return len(all)
}

// Snapshot returns the full authoritative state as a replication message.
func (r *Registry) Snapshot(ctx context.Context) (*model.Updates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authoritative {
		return nil, ErrNotAuthoritative
	}
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	r.revision++
	ret := &model.Updates{Epoch: r.epoch, Revision: r.revision, Snapshot: true, Entries: make(map[string]*model.MovementRequest, len(all))}
	for _, entry := range all {
		ret.Entries[entry.EntityID] = entry
	}
	return ret, nil
}

// Clear drops every entry without replicating and returns what was removed.
func (r *Registry) Clear(ctx context.Context) ([]*model.MovementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range all {
		if err = r.store.Delete(ctx, entry.EntityID); err != nil {
			return nil, fmt.Errorf("registry: failed to delete %s: %w", entry.EntityID, err)
		}
	}
	return all, nil
}

// ApplyRemoteDelta folds a replication message into the mirror. A nil entry
// removes the entity; a snapshot replaces the mirror. Updates that are not
// newer than the last applied one within the same epoch are dropped, so
// replays and reordered duplicates are no-ops. Once a newer epoch has been
// applied, updates from the epochs it replaced are dropped too.
func (r *Registry) ApplyRemoteDelta(ctx context.Context, updates *model.Updates) ([]Change, error) {
	if r.authoritative {
		return nil, ErrAuthoritative
	}
	if updates == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accept(updates) {
		return nil, nil
	}
	var changes []Change
	if updates.Snapshot {
		current, err := r.list(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range current {
			if updates.Entries[entry.EntityID] != nil {
				continue
			}
			if err = r.store.Delete(ctx, entry.EntityID); err != nil {
				return changes, err
			}
			changes = append(changes, Change{EntityID: entry.EntityID, Previous: entry})
		}
	}
	for _, entityID := range sortedKeys(updates.Entries) {
		change, err := r.apply(ctx, entityID, updates.Entries[entityID])
		if err != nil {
			return changes, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}

// Accepts reports whether ApplyRemoteDelta would fold updates in rather
// than drop them as stale.
func (r *Registry) Accepts(updates *model.Updates) bool {
	if updates == nil || r.authoritative {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fresh(updates)
}

func (r *Registry) fresh(updates *model.Updates) bool {
	switch {
	case updates.Epoch == "":
		return true
	case r.retired[updates.Epoch]:
		return false
	case updates.Epoch == r.appliedEpoch:
		return updates.Revision > r.appliedRevision
	}
	return true
}

func (r *Registry) accept(updates *model.Updates) bool {
	if !r.fresh(updates) {
		return false
	}
	if updates.Epoch == "" {
		return true
	}
	if r.appliedEpoch != "" && r.appliedEpoch != updates.Epoch {
		if r.retired == nil {
			r.retired = make(map[string]bool)
		}
		r.retired[r.appliedEpoch] = true
	}
	r.appliedEpoch = updates.Epoch
	r.appliedRevision = updates.Revision
	return true
}

func (r *Registry) apply(ctx context.Context, entityID string, entry *model.MovementRequest) (*Change, error) {
	previous, err := r.load(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if previous == nil {
			return nil, nil
		}
		if err = r.store.Delete(ctx, entityID); err != nil {
			return nil, err
		}
		return &Change{EntityID: entityID, Previous: previous}, nil
	}
	entry = entry.Clone()
	entry.EntityID = entityID
	if previous != nil && reflect.DeepEqual(previous, entry) {
		return nil, nil
	}
	if err = r.store.Save(ctx, entry); err != nil {
		return nil, err
	}
	return &Change{EntityID: entityID, Previous: previous, Current: entry.Clone()}, nil
}

// publish replicates entries when authoritative; callers hold r.mu so that
// revisions go out in order.
func (r *Registry) publish(ctx context.Context, entries map[string]*model.MovementRequest) {
	if !r.authoritative || r.replicate == nil {
		return
	}
	r.revision++
	updates := &model.Updates{Epoch: r.epoch, Revision: r.revision, Entries: entries}
	if err := r.replicate(ctx, updates); err != nil {
		log.Printf("movegate: failed to replicate registry revision %d: %v", r.revision, err)
	}
}

func (r *Registry) load(ctx context.Context, entityID string) (*model.MovementRequest, error) {
	entry, err := r.store.Load(ctx, entityID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: failed to load %s: %w", entityID, err)
	}
	return entry.Clone(), nil
}

func (r *Registry) list(ctx context.Context) ([]*model.MovementRequest, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list: %w", err)
	}
	ret := make([]*model.MovementRequest, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, entry.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].EntityID < ret[j].EntityID })
	return ret, nil
}

func sortedKeys(entries map[string]*model.MovementRequest) []string {
	ret := make([]string, 0, len(entries))
	for k := range entries {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
