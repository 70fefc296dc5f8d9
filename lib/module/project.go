package module

import (
	"fmt"
	"unicode/utf8"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Reply -> Value
// --------------------------------------------------------------------------

// Project converts a decoded reply tree into the owned value model. Strings
// holding valid UTF-8 become BulkString, all other strings StringBuffer.
// Map keys and set members must be integers, strings or booleans, any other
// kind fails with a CodeUnhashable error.
func Project(r Reply) (Value, error) {
	switch r := r.(type) {
	case IntegerReply:
		return Integer(r.Int()), nil
	case StringReply:
		b := r.Bytes()
		if utf8.Valid(b) {
			return BulkString(b), nil
		}
		return StringBuffer(b), nil
	case ErrorReply:
		return ErrorValue(r.String()), nil
	case NullReply, UnknownReply:
		return Null{}, nil
	case BoolReply:
		return Bool(r.Bool()), nil
	case DoubleReply:
		return Float(r.Float()), nil
	case BigNumberReply:
		return BigNumber(r.Number()), nil
	case VerbatimStringReply:
		format, data := r.Parts()
		return VerbatimString{Format: format, Data: data}, nil
	case ArrayReply:
		arr := make(Array, 0, r.Len())
		for _, e := range r.All() {
			v, err := Project(e)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case MapReply:
		m := NewMap()
		for k, v := range r.All() {
			key, err := ProjectKey(k)
			if err != nil {
				return nil, err
			}
			val, err := Project(v)
			if err != nil {
				return nil, err
			}
			m.Set(key, val)
		}
		return m, nil
	case SetReply:
		s := NewSet()
		for _, e := range r.All() {
			key, err := ProjectKey(e)
			if err != nil {
				return nil, err
			}
			s.Add(key)
		}
		return s, nil
	default:
		return nil, NewError(CodeProtocol, fmt.Sprintf("cannot project reply %T", r))
	}
}

// ProjectKey converts a reply into a map key or set member
func ProjectKey(r Reply) (Key, error) {
	switch r := r.(type) {
	case IntegerReply:
		return Integer(r.Int()), nil
	case StringReply:
		b := r.Bytes()
		if utf8.Valid(b) {
			return BulkString(b), nil
		}
		return BytesKey(b), nil
	case BoolReply:
		return Bool(r.Bool()), nil
	default:
		return nil, NewError(CodeUnhashable, fmt.Sprintf("%s reply cannot be used as a map key or set member", r.Type()))
	}
}

// --------------------------------------------------------------------------
// Value -> Reply
// --------------------------------------------------------------------------

// writeValue serializes v through the ReplyWith* functions of ctx
func writeValue(api raw.API, ctx raw.CtxHandle, v Value) raw.Status {
	switch v := v.(type) {
	case nil, Null:
		return api.ReplyWithNull(ctx)
	case NoReply:
		return raw.StatusOK
	case SimpleString:
		return api.ReplyWithSimpleString(ctx, string(v))
	case BulkString:
		return api.ReplyWithStringBuffer(ctx, []byte(v))
	case StringBuffer:
		return api.ReplyWithStringBuffer(ctx, v)
	case BytesKey:
		return api.ReplyWithStringBuffer(ctx, []byte(v))
	case Integer:
		return api.ReplyWithLongLong(ctx, int64(v))
	case Float:
		return api.ReplyWithDouble(ctx, float64(v))
	case Bool:
		return api.ReplyWithBool(ctx, bool(v))
	case BigNumber:
		return api.ReplyWithBigNumber(ctx, string(v))
	case VerbatimString:
		return api.ReplyWithVerbatimString(ctx, v.Data, v.Format)
	case ErrorValue:
		return api.ReplyWithError(ctx, string(v))
	case Array:
		api.ReplyWithArray(ctx, len(v))
		for _, e := range v {
			writeElem(api, ctx, e)
		}
		return raw.StatusOK
	case *Map:
		api.ReplyWithMap(ctx, v.Len())
		for k, e := range v.All() {
			writeValue(api, ctx, k)
			writeElem(api, ctx, e)
		}
		return raw.StatusOK
	case *Set:
		api.ReplyWithSet(ctx, v.Len())
		for m := range v.All() {
			writeValue(api, ctx, m)
		}
		return raw.StatusOK
	default:
		protocolViolation("cannot reply with value %T", v)
		return raw.StatusErr
	}
}

// writeElem writes an aggregate element. NoReply has no meaning inside an
// aggregate whose length was already announced, it becomes null.
func writeElem(api raw.API, ctx raw.CtxHandle, v Value) raw.Status {
	if _, ok := v.(NoReply); ok {
		return api.ReplyWithNull(ctx)
	}
	return writeValue(api, ctx, v)
}
