package mailstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an ID the store does not know.
var ErrNotFound = errors.New("message not found")

// Store is the narrow mail index surface required by mailtagger.
//
// AddTag and RemoveTag must be idempotent: adding a tag that is already
// present or removing one that is absent is not an error.
type Store interface {
	Search(ctx context.Context, q Query) ([]MessageID, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	AddTag(ctx context.Context, id MessageID, tag string) error
	RemoveTag(ctx context.Context, id MessageID, tag string) error
}
