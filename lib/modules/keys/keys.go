// Package keys exposes the low level key API as commands. Every command opens
// its key once and closes it before replying.
//
// Commands:
//
//	KEY.GET key                  -> string value or null
//	KEY.SET key value [PX ms]    -> OK
//	KEY.DEL key                  -> 1 if the key existed, else 0
//	KEY.TYPE key                 -> empty, string, list, hash or set
//	KEY.PUSH key HEAD|TAIL v ... -> length of the list
//	KEY.POP key HEAD|TAIL        -> popped element or null
//	KEY.HGET key field           -> field value or null
//	KEY.HSET key field value     -> OK
//	KEY.HDEL key field           -> OK
//	KEY.TTL key                  -> remaining ms, -1 without ttl, -2 if missing
//	KEY.PERSIST key              -> OK
//	KEY.FIELDS key               -> flat [name, value, ...] of a hash or set
package keys

import (
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// New creates the keys module
func New() *module.Module {
	return &module.Module{
		Name:    "keys",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "KEY.GET", Flags: "readonly", Handler: get},
			{Name: "KEY.SET", Flags: "write", Handler: set},
			{Name: "KEY.DEL", Flags: "write", Handler: del},
			{Name: "KEY.TYPE", Flags: "readonly", Handler: keyType},
			{Name: "KEY.PUSH", Flags: "write", Handler: push},
			{Name: "KEY.POP", Flags: "write", Handler: pop},
			{Name: "KEY.HGET", Flags: "readonly", Handler: hget},
			{Name: "KEY.HSET", Flags: "write", Handler: hset},
			{Name: "KEY.HDEL", Flags: "write", Handler: hdel},
			{Name: "KEY.TTL", Flags: "readonly", Handler: ttl},
			{Name: "KEY.PERSIST", Flags: "write", Handler: persist},
			{Name: "KEY.FIELDS", Flags: "readonly", Handler: fields},
		},
	}
}

func parseWhere(s string) (raw.ListWhere, error) {
	switch strings.ToUpper(s) {
	case "HEAD":
		return raw.ListHead, nil
	case "TAIL":
		return raw.ListTail, nil
	default:
		return 0, module.Errorf("list end must be HEAD or TAIL")
	}
}

func get(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKey(args[1])
	defer k.Close()

	if k.IsEmpty() {
		return module.Null{}, nil
	}
	v, err := k.Read()
	if err != nil {
		return nil, err
	}
	return module.BulkString(v), nil
}

func set(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 && len(args) != 5 {
		return nil, module.ErrWrongArity
	}

	var expire time.Duration
	if len(args) == 5 {
		ms, err := strconv.ParseInt(args[4], 10, 64)
		if !strings.EqualFold(args[3], "PX") || err != nil || ms <= 0 {
			return nil, module.Errorf("syntax error")
		}
		expire = time.Duration(ms) * time.Millisecond
	}

	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if err := k.Write(args[2]); err != nil {
		return nil, err
	}
	if expire > 0 {
		if err := k.SetExpire(expire); err != nil {
			return nil, err
		}
	}
	return module.SimpleString("OK"), nil
}

func del(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if k.IsEmpty() {
		return module.Integer(0), nil
	}
	if err := k.Delete(); err != nil {
		return nil, err
	}
	return module.Integer(1), nil
}

func keyType(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKey(args[1])
	defer k.Close()
	return module.SimpleString(k.Type().String()), nil
}

func push(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) < 4 {
		return nil, module.ErrWrongArity
	}
	where, err := parseWhere(args[2])
	if err != nil {
		return nil, err
	}

	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if err := k.ListPush(where, args[3:]...); err != nil {
		return nil, err
	}
	return module.Integer(int64(k.Len())), nil
}

func pop(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	where, err := parseWhere(args[2])
	if err != nil {
		return nil, err
	}

	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	v, ok, err := k.ListPop(where)
	if err != nil || !ok {
		return module.Null{}, err
	}
	return module.BulkString(v), nil
}

func hget(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKey(args[1])
	defer k.Close()

	v, ok, err := k.HashGet(args[2])
	if err != nil || !ok {
		return module.Null{}, err
	}
	return module.BulkString(v), nil
}

func hset(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 4 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if err := k.HashSet(args[2], args[3]); err != nil {
		return nil, err
	}
	return module.SimpleString("OK"), nil
}

func hdel(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if err := k.HashDel(args[2]); err != nil {
		return nil, err
	}
	return module.SimpleString("OK"), nil
}

func ttl(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKey(args[1])
	defer k.Close()

	if k.IsEmpty() {
		return module.Integer(-2), nil
	}
	d, ok := k.Expire()
	if !ok {
		return module.Integer(-1), nil
	}
	return module.Integer(d.Milliseconds()), nil
}

func persist(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKeyWritable(args[1])
	defer k.Close()

	if err := k.RemoveExpire(); err != nil {
		return nil, err
	}
	return module.SimpleString("OK"), nil
}

func fields(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	k := ctx.OpenKey(args[1])
	defer k.Close()

	switch t := k.Type(); t {
	case raw.KeyTypeEmpty, raw.KeyTypeHash, raw.KeyTypeSet:
	default:
		return nil, module.NewError(module.CodeWrongType, "key "+args[1]+" holds a "+t.String())
	}

	cursor := k.ScanFields()
	defer cursor.Close()

	out := module.Array{}
	for f := range cursor.All() {
		out = append(out, module.BulkString(f.Name), module.BulkString(f.Value))
	}
	return out, nil
}
