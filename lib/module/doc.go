// Package module is the SDK for writing store modules.
//
// A module is a set of commands. Every command runs with the store lock held
// and gets a *Context, which can call other commands, reply to the client,
// block the client, schedule timers and scan the keyspace:
//
//	var Hello = &module.Module{
//		Name: "hello",
//		Commands: []module.Command{{
//			Name:  "HELLO.GET",
//			Flags: "readonly",
//			Handler: func(ctx *module.Context, args []string) (module.Value, error) {
//				if len(args) != 2 {
//					return nil, module.ErrWrongArity
//				}
//				return ctx.Call("GET", args[1])
//			},
//		}},
//	}
//
// Replies of calls are owned by a RootReply and decoded lazily. Project
// copies them into the Value model, which is also used to send replies.
//
// Code running on other goroutines takes the lock through a
// ThreadSafeContext or the DetachedContext of the module. Functions that
// require the lock take a LockIndicator, which only *Context and
// *ContextGuard implement.
//
// OpenKey and OpenKeyWritable give direct access to a single key without
// going through commands. Modules may also subscribe to keyspace
// notifications; a handler that needs to write schedules a post notification
// job, which runs before the lock is released.
package module
