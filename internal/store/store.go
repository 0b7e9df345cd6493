// Package store defines the persistence boundary: a snapshot in, a snapshot
// out. Implementations must not interpret the social state beyond encoding it.
package store

import (
	"context"

	"tribo.social/internal/social"
)

// Store loads and saves whole-registry snapshots.
type Store interface {
	Load(ctx context.Context) (social.Snapshot, error)
	Save(ctx context.Context, snap social.Snapshot) error
}
