package host

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// Pair is a single key/value entry of a map reply
type Pair struct {
	Key   *Reply
	Value *Reply
}

// Reply is a fully materialized reply as seen by a client
type Reply struct {
	Type   raw.ReplyType
	Str    []byte  // string, error, big number and verbatim data
	Format string  // verbatim format tag
	Int    int64   // integer
	Bool   bool    // bool
	Double float64 // double
	Elems  []*Reply
	Map    []Pair
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func NewString(s string) *Reply       { return &Reply{Type: raw.ReplyString, Str: []byte(s)} }
func NewBytes(b []byte) *Reply        { return &Reply{Type: raw.ReplyString, Str: b} }
func NewErrorReply(msg string) *Reply { return &Reply{Type: raw.ReplyError, Str: []byte(msg)} }
func NewInteger(v int64) *Reply       { return &Reply{Type: raw.ReplyInteger, Int: v} }
func NewNull() *Reply                 { return &Reply{Type: raw.ReplyNull} }
func NewBool(v bool) *Reply           { return &Reply{Type: raw.ReplyBool, Bool: v} }
func NewDouble(v float64) *Reply      { return &Reply{Type: raw.ReplyDouble, Double: v} }
func NewBigNumber(d string) *Reply    { return &Reply{Type: raw.ReplyBigNumber, Str: []byte(d)} }
func NewArray(elems ...*Reply) *Reply { return &Reply{Type: raw.ReplyArray, Elems: elems} }
func NewSet(elems ...*Reply) *Reply   { return &Reply{Type: raw.ReplySet, Elems: elems} }
func NewMap(pairs ...Pair) *Reply     { return &Reply{Type: raw.ReplyMap, Map: pairs} }

func NewVerbatim(format string, data []byte) *Reply {
	return &Reply{Type: raw.ReplyVerbatimString, Format: format, Str: data}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// ReplyError is returned by Reply.Err for error replies
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string { return e.Msg }

// Err returns the error of an error reply and nil for every other reply
func (r *Reply) Err() error {
	if r == nil || r.Type != raw.ReplyError {
		return nil
	}
	return &ReplyError{Msg: string(r.Str)}
}

// Len returns the number of elements of an aggregate reply
func (r *Reply) Len() int {
	switch r.Type {
	case raw.ReplyMap:
		return len(r.Map)
	case raw.ReplyArray, raw.ReplySet:
		return len(r.Elems)
	default:
		return len(r.Str)
	}
}

// Text returns the string payload of string like replies and a formatted
// value for scalars
func (r *Reply) Text() string {
	switch r.Type {
	case raw.ReplyInteger:
		return strconv.FormatInt(r.Int, 10)
	case raw.ReplyDouble:
		return formatDouble(r.Double)
	case raw.ReplyBool:
		return strconv.FormatBool(r.Bool)
	default:
		return string(r.Str)
	}
}

func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// flatten converts a reply to the RESP2 shapes: maps and sets become arrays,
// booleans become integers and doubles, big numbers and verbatim strings
// become bulk strings
func flatten(r *Reply) *Reply {
	switch r.Type {
	case raw.ReplyMap:
		elems := make([]*Reply, 0, 2*len(r.Map))
		for _, p := range r.Map {
			elems = append(elems, flatten(p.Key), flatten(p.Value))
		}
		return NewArray(elems...)
	case raw.ReplySet, raw.ReplyArray:
		elems := make([]*Reply, len(r.Elems))
		for i, e := range r.Elems {
			elems[i] = flatten(e)
		}
		return NewArray(elems...)
	case raw.ReplyBool:
		if r.Bool {
			return NewInteger(1)
		}
		return NewInteger(0)
	case raw.ReplyDouble:
		return NewString(formatDouble(r.Double))
	case raw.ReplyBigNumber:
		return NewBytes(r.Str)
	case raw.ReplyVerbatimString:
		return NewBytes(r.Str)
	default:
		return r
	}
}

// shape returns the reply in the shape of the given protocol version
func shape(r *Reply, protocol int) *Reply {
	if protocol == 2 {
		return flatten(r)
	}
	return r
}

// --------------------------------------------------------------------------
// Formatting
// --------------------------------------------------------------------------

// String renders the reply similar to an interactive store client
func (r *Reply) String() string {
	var sb strings.Builder
	r.write(&sb, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Reply) write(sb *strings.Builder, indent int) {
	if r == nil {
		sb.WriteString("(nil)\n")
		return
	}

	pad := strings.Repeat(" ", indent)
	switch r.Type {
	case raw.ReplyString:
		sb.WriteString(strconv.Quote(string(r.Str)) + "\n")
	case raw.ReplyError:
		sb.WriteString("(error) " + string(r.Str) + "\n")
	case raw.ReplyInteger:
		sb.WriteString("(integer) " + strconv.FormatInt(r.Int, 10) + "\n")
	case raw.ReplyNull:
		sb.WriteString("(nil)\n")
	case raw.ReplyBool:
		sb.WriteString(fmt.Sprintf("(%t)\n", r.Bool))
	case raw.ReplyDouble:
		sb.WriteString("(double) " + formatDouble(r.Double) + "\n")
	case raw.ReplyBigNumber:
		sb.WriteString("(big number) " + string(r.Str) + "\n")
	case raw.ReplyVerbatimString:
		sb.WriteString(r.Format + ":" + strconv.Quote(string(r.Str)) + "\n")
	case raw.ReplyPromise:
		sb.WriteString("(promise)\n")
	case raw.ReplyArray, raw.ReplySet:
		if len(r.Elems) == 0 {
			sb.WriteString("(empty " + r.Type.String() + ")\n")
			return
		}
		for i, e := range r.Elems {
			if i > 0 {
				sb.WriteString(pad)
			}
			prefix := fmt.Sprintf("%d) ", i+1)
			sb.WriteString(prefix)
			e.write(sb, indent+len(prefix))
		}
	case raw.ReplyMap:
		if len(r.Map) == 0 {
			sb.WriteString("(empty map)\n")
			return
		}
		for i, p := range r.Map {
			if i > 0 {
				sb.WriteString(pad)
			}
			prefix := fmt.Sprintf("%d# ", i+1)
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimRight(p.Key.String(), "\n") + " => ")
			p.Value.write(sb, indent+len(prefix)+4)
		}
	default:
		sb.WriteString("(unknown)\n")
	}
}
