package module

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Value Model
// --------------------------------------------------------------------------

// Value is the owned, application level representation of a reply. Values
// never reference store memory and may cross goroutines.
type Value interface {
	fmt.Stringer
	isValue()
}

// Key is a Value that can be used as a map key or set member. Only integers,
// strings, byte buffers and booleans are keys.
type Key interface {
	Value
	isKey()
}

type (
	// SimpleString is a status reply such as OK
	SimpleString string
	// BulkString is a binary safe string holding valid UTF-8
	BulkString string
	// StringBuffer is a binary safe string of arbitrary bytes
	StringBuffer []byte
	// BytesKey is a byte buffer usable as a key
	BytesKey string
	// Integer is a signed 64 bit integer
	Integer int64
	// Float is a double
	Float float64
	// Bool is a boolean
	Bool bool
	// BigNumber is an arbitrary precision integer in decimal notation
	BigNumber string
	// Array is an ordered sequence of values
	Array []Value
	// Null is the null reply
	Null struct{}
	// NoReply tells the dispatcher that the reply is sent later or was
	// already sent through another channel
	NoReply struct{}
	// ErrorValue is an error element nested inside an aggregate
	ErrorValue string
)

// VerbatimString is a string with a three character format tag
type VerbatimString struct {
	Format string
	Data   []byte
}

func (SimpleString) isValue()   {}
func (BulkString) isValue()     {}
func (StringBuffer) isValue()   {}
func (BytesKey) isValue()       {}
func (Integer) isValue()        {}
func (Float) isValue()          {}
func (Bool) isValue()           {}
func (BigNumber) isValue()      {}
func (VerbatimString) isValue() {}
func (Array) isValue()          {}
func (*Map) isValue()           {}
func (*Set) isValue()           {}
func (Null) isValue()           {}
func (NoReply) isValue()        {}
func (ErrorValue) isValue()     {}

func (BulkString) isKey() {}
func (BytesKey) isKey()   {}
func (Integer) isKey()    {}
func (Bool) isKey()       {}

func (v SimpleString) String() string { return string(v) }
func (v BulkString) String() string   { return string(v) }
func (v StringBuffer) String() string { return string(v) }
func (v BytesKey) String() string     { return string(v) }
func (v Integer) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string        { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Bool) String() string         { return strconv.FormatBool(bool(v)) }
func (v BigNumber) String() string    { return string(v) }
func (Null) String() string           { return "null" }
func (NoReply) String() string        { return "no reply" }
func (v ErrorValue) String() string   { return string(v) }

func (v VerbatimString) String() string {
	return v.Format + ":" + string(v.Data)
}

func (v Array) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// --------------------------------------------------------------------------
// Map
// --------------------------------------------------------------------------

// MapEntry is a single key value pair of a Map
type MapEntry struct {
	Key   Key
	Value Value
}

// Map is an ordered map keyed by Key. Iteration follows insertion order.
type Map struct {
	entries []MapEntry
	index   map[Key]int
}

// NewMap creates an empty map
func NewMap() *Map {
	return &Map{index: make(map[Key]int)}
}

// Set inserts or replaces a value, an existing key keeps its position
func (m *Map) Set(k Key, v Value) {
	if i, ok := m.index[k]; ok {
		m.entries[i].Value = v
		return
	}
	m.index[k] = len(m.entries)
	m.entries = append(m.entries, MapEntry{Key: k, Value: v})
}

// Get returns the value stored for k
func (m *Map) Get(k Key) (Value, bool) {
	i, ok := m.index[k]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// Len returns the number of entries
func (m *Map) Len() int { return len(m.entries) }

// All iterates the entries in insertion order
func (m *Map) All() iter.Seq2[Key, Value] {
	return func(yield func(Key, Value) bool) {
		for _, e := range m.entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

func (m *Map) String() string {
	parts := make([]string, len(m.entries))
	for i, e := range m.entries {
		parts[i] = e.Key.String() + ": " + e.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// --------------------------------------------------------------------------
// Set
// --------------------------------------------------------------------------

// Set is an ordered set of keys. Iteration follows insertion order.
type Set struct {
	members []Key
	index   map[Key]struct{}
}

// NewSet creates a set holding the given members
func NewSet(members ...Key) *Set {
	s := &Set{index: make(map[Key]struct{})}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add inserts k and reports whether it was missing
func (s *Set) Add(k Key) bool {
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.members = append(s.members, k)
	return true
}

// Contains reports whether k is a member
func (s *Set) Contains(k Key) bool {
	_, ok := s.index[k]
	return ok
}

// Len returns the number of members
func (s *Set) Len() int { return len(s.members) }

// All iterates the members in insertion order
func (s *Set) All() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		for _, m := range s.members {
			if !yield(m) {
				return
			}
		}
	}
}

func (s *Set) String() string {
	parts := make([]string, len(s.members))
	for i, m := range s.members {
		parts[i] = m.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
