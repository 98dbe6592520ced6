package registry

import (
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/dao"
)

// Option customises a Registry.
type Option func(r *Registry)

// WithStore sets the backing store, e.g. a file store for registries that
// survive restarts.
func WithStore(store dao.Service[string, model.MovementRequest]) Option {
	return func(r *Registry) { r.store = store }
}

// WithReplicator makes the registry authoritative: every Put and Remove is
// replicated through fn.
func WithReplicator(fn Replicator) Option {
	return func(r *Registry) {
		r.replicate = fn
		r.authoritative = true
	}
}

// WithEpoch sets the replication epoch; a fresh one is generated otherwise.
func WithEpoch(epoch string) Option {
	return func(r *Registry) { r.epoch = epoch }
}
