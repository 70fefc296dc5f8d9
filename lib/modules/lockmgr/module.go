package lockmgr

import (
	"strconv"
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
)

// New creates the lockmgr module
func New() *module.Module {
	lm := NewLockManager()

	return &module.Module{
		Name:    "lockmgr",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "LOCK.ACQUIRE", Flags: "write", Handler: acquireHandler(lm)},
			{Name: "LOCK.RELEASE", Flags: "write", Handler: releaseHandler(lm)},
			{Name: "LOCK.OWNER", Flags: "readonly", Handler: ownerHandler(lm)},
		},
	}
}

func acquireHandler(lm ILockManager) module.Handler {
	return func(ctx *module.Context, args []string) (module.Value, error) {
		if len(args) != 2 && len(args) != 3 {
			return nil, module.ErrWrongArity
		}

		var ttl time.Duration
		if len(args) == 3 {
			secs, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				return nil, module.Errorf("ttl is not a positive integer")
			}
			ttl = time.Duration(secs) * time.Second
		}

		ok, ownerID, err := lm.AcquireLock(ctx, args[1], ttl)
		if err != nil {
			return nil, err
		}
		if !ok {
			return module.Null{}, nil
		}
		return module.BulkString(ownerID), nil
	}
}

func releaseHandler(lm ILockManager) module.Handler {
	return func(ctx *module.Context, args []string) (module.Value, error) {
		if len(args) != 3 {
			return nil, module.ErrWrongArity
		}

		ok, err := lm.ReleaseLock(ctx, args[1], args[2])
		if err != nil {
			return nil, err
		}
		if ok {
			return module.Integer(1), nil
		}
		return module.Integer(0), nil
	}
}

func ownerHandler(lm ILockManager) module.Handler {
	return func(ctx *module.Context, args []string) (module.Value, error) {
		if len(args) != 2 {
			return nil, module.ErrWrongArity
		}

		ownerID, found, err := lm.Owner(ctx, args[1])
		if err != nil || !found {
			return module.Null{}, err
		}
		return module.BulkString(ownerID), nil
	}
}
