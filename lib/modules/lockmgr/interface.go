package lockmgr

import (
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
)

// ILockManager defines the interface for a lock provider. All methods must be
// called with the store lock held.
type ILockManager interface {
	// AcquireLock acquires the lock for key. A ttl of zero means the lock never
	// expires. Returns whether the lock was acquired and the owner id.
	AcquireLock(ctx *module.Context, key string, ttl time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lock for key if ownerID holds it. Also returns
	// true if the lock did not exist.
	ReleaseLock(ctx *module.Context, key string, ownerID string) (ok bool, err error)

	// Owner returns the current owner of the lock
	Owner(ctx *module.Context, key string) (ownerID string, found bool, err error)
}
