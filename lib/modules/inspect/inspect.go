// Package inspect exposes the reply decoder and the keyspace scan as
// commands.
//
// Commands:
//
//	CALL.PROJECT cmd [arg ...]   -> reply of cmd, decoded, projected and written back
//	CALL.TYPE cmd [arg ...]      -> map of the RESP2 and RESP3 reply type of cmd
//	KEYS.SCAN [pattern]          -> all keys matching the glob pattern
package inspect

import (
	"path"

	"github.com/ValentinKolb/kvmod/lib/module"
)

// New creates the inspect module
func New() *module.Module {
	return &module.Module{
		Name:    "inspect",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "CALL.PROJECT", Flags: "write", Handler: project},
			{Name: "CALL.TYPE", Flags: "readonly", Handler: replyType},
			{Name: "KEYS.SCAN", Flags: "readonly", Handler: scan},
		},
	}
}

func project(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) < 2 {
		return nil, module.ErrWrongArity
	}
	return ctx.Call(args[1], args[2:]...)
}

// replyType runs cmd twice, the command should not modify the keyspace
func replyType(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) < 2 {
		return nil, module.ErrWrongArity
	}

	out := module.NewMap()
	for _, resp := range []struct {
		name string
		r    module.Resp
	}{{"resp2", module.Resp2}, {"resp3", module.Resp3}} {
		opts := module.NewCallOptions().NoWrites().ErrorsAsReplies().Resp(resp.r).Build()
		root := ctx.CallExt(opts, args[1], args[2:]...)
		out.Set(module.BulkString(resp.name), module.SimpleString(root.Reply().Type().String()))
		root.Free()
	}
	return out, nil
}

func scan(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) > 2 {
		return nil, module.ErrWrongArity
	}
	pattern := "*"
	if len(args) == 2 {
		pattern = args[1]
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, module.Errorf("invalid pattern %q", pattern)
	}

	cursor := ctx.ScanKeys()
	defer cursor.Close()

	keys := module.Array{}
	for key := range cursor.All() {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, module.BulkString(key))
		}
	}
	return keys, nil
}
