package dao

import (
	"context"
)

// Service is a generic keyed storage abstraction. Load returns (nil, nil) or
// ErrNotFound for a missing key depending on the backend; callers handle both.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
