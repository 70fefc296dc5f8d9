package lockmgr

import (
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("modules")

// lease is the auto release timer of an acquired lock
type lease struct {
	key   string
	owner string
}

type lockMgrImpl struct {
	// pending auto release timers by lock key
	leases *module.GILGuard[map[string]raw.TimerID]
}

// NewLockManager creates a lock manager. Locks are stored in the keyspace,
// the manager only tracks the timers of locks with a ttl.
func NewLockManager() ILockManager {
	return &lockMgrImpl{
		leases: module.NewGILGuard(make(map[string]raw.TimerID)),
	}
}

func (lm *lockMgrImpl) AcquireLock(ctx *module.Context, key string, ttl time.Duration) (bool, string, error) {
	ownerID := uuid.NewString()

	// set the value only if the key does not exist
	if _, err := ctx.Call("SET", key, ownerID, "NX"); err != nil {
		return false, "", err
	}

	// check if the lock was acquired BY US
	current, found, err := lm.Owner(ctx, key)
	if err != nil || !found || current != ownerID {
		return false, "", err
	}

	if ttl > 0 {
		id := module.CreateTimer(ctx, ttl, lm.expire, lease{key: key, owner: ownerID})
		(*lm.leases.Lock(ctx))[key] = id
	}
	return true, ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(ctx *module.Context, key string, ownerID string) (bool, error) {
	current, found, err := lm.Owner(ctx, key)
	if err != nil || !found {
		return err == nil, err
	}

	// check if the lock is owned by the caller
	if current != ownerID {
		return false, nil
	}

	if _, err := ctx.Call("DEL", key); err != nil {
		return false, err
	}
	lm.stopLease(ctx, key)
	return true, nil
}

func (lm *lockMgrImpl) Owner(ctx *module.Context, key string) (string, bool, error) {
	v, err := ctx.Call("GET", key)
	if err != nil {
		return "", false, err
	}
	switch v := v.(type) {
	case module.BulkString:
		return string(v), true, nil
	case module.StringBuffer:
		return string(v), true, nil
	default:
		return "", false, nil
	}
}

// stopLease cancels the auto release timer of key, if any
func (lm *lockMgrImpl) stopLease(ctx *module.Context, key string) {
	leases := lm.leases.Lock(ctx)
	id, ok := (*leases)[key]
	if !ok {
		return
	}
	delete(*leases, key)
	if _, err := module.StopTimer[lease](ctx, id); err != nil {
		Logger.Debugf("lease of %s already gone: %v", key, err)
	}
}

// expire releases a lock whose ttl elapsed
func (lm *lockMgrImpl) expire(ctx *module.Context, l lease) {
	delete(*lm.leases.Lock(ctx), l.key)

	released, err := lm.ReleaseLock(ctx, l.key, l.owner)
	switch {
	case err != nil:
		ctx.LogWarning("failed to expire lock %s: %v", l.key, err)
	case released:
		ctx.LogDebug("lock %s expired", l.key)
	}
}
