// Package blocking shows the ways a command can finish after it returned:
// replying from a goroutine, waiting for a blocking call and incrementing a
// key from several goroutines.
//
// Commands:
//
//	BLOCK.SLEEP ms          -> OK after ms milliseconds
//	BLOCK.POP key [timeout] -> [key, element] once the list has an element, null on timeout
//	BLOCK.DROP              -> null, the token is closed without a reply
//	THREADS.INCR key n      -> value of key after n goroutines incremented it once each
package blocking

import (
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
)

// New creates the blocking module
func New() *module.Module {
	return &module.Module{
		Name:    "blocking",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "BLOCK.SLEEP", Flags: "readonly", Handler: sleep},
			{Name: "BLOCK.POP", Flags: "write", Handler: pop},
			{Name: "BLOCK.DROP", Flags: "readonly", Handler: drop},
			{Name: "THREADS.INCR", Flags: "write", Handler: threadsIncr},
		},
	}
}

func sleep(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	ms, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, module.Errorf("value is not an integer or out of range")
	}

	bc := ctx.BlockClient()
	detached := ctx.Module().Detached()
	go func() {
		time.Sleep(time.Duration(ms) * time.Millisecond)

		guard := detached.Lock()
		defer guard.Release()
		if err := bc.Reply(guard, module.SimpleString("OK"), nil); err != nil {
			detached.LogWarning("BLOCK.SLEEP: %v", err)
		}
	}()
	return module.NoReply{}, nil
}

func pop(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	timeout := "0"
	if len(args) == 3 {
		timeout = args[2]
	}

	opts := module.NewCallOptions().Resp(module.RespAuto).BuildBlocking()
	switch p := ctx.CallBlocking(opts, "BLPOP", args[1], timeout).(type) {
	case module.Resolved:
		defer p.Reply.Free()
		return p.Reply.Value()

	case *module.FutureCallReply:
		bc := ctx.BlockClient()
		handler := p.SetUnblockHandler(func(c *module.Context, reply *module.RootReply) {
			v, err := reply.Value()
			if replyErr := bc.Reply(c, v, err); replyErr != nil {
				c.LogWarning("BLOCK.POP: %v", replyErr)
			}
		})
		handler.Dispose(ctx)
		return module.NoReply{}, nil

	default:
		return nil, module.Errorf("unexpected blocking call result %T", p)
	}
}

func drop(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 1 {
		return nil, module.ErrWrongArity
	}
	ctx.BlockClient().Close()
	return module.NoReply{}, nil
}

func threadsIncr(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 || n > 1024 {
		return nil, module.Errorf("number of threads must be between 1 and 1024")
	}

	key := args[1]
	bc := ctx.BlockClient()
	detached := ctx.Module().Detached()

	go func() {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error

		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				guard := detached.Lock()
				defer guard.Release()
				if _, err := guard.Call("INCR", key); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		guard := detached.Lock()
		defer guard.Release()
		if firstErr != nil {
			bc.Reply(guard, nil, firstErr)
			return
		}
		v, err := guard.Call("GET", key)
		if err == nil {
			v, err = toInteger(v)
		}
		bc.Reply(guard, v, err)
	}()
	return module.NoReply{}, nil
}

func toInteger(v module.Value) (module.Value, error) {
	i, err := strconv.ParseInt(v.String(), 10, 64)
	if err != nil {
		return nil, module.Errorf("value is not an integer")
	}
	return module.Integer(i), nil
}
