package metadata

import (
	"context"
)

// Repository is a small key/value store for sync bookkeeping that must
// survive restarts: the pull cursor and the instance identity.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known metadata keys.
const (
	KeyPullCursor = "pull_cursor"
	KeyInstanceID = "instance_id"
)
