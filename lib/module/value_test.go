package module

import (
	"testing"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

func TestMapKeepsInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set(BulkString("b"), Integer(1))
	m.Set(Integer(7), Bool(true))
	m.Set(BulkString("a"), Null{})
	m.Set(BulkString("b"), Integer(2))

	if m.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", m.Len())
	}

	want := []Key{BulkString("b"), Integer(7), BulkString("a")}
	i := 0
	for k := range m.All() {
		if k != want[i] {
			t.Errorf("Expected key %v at %d, got %v", want[i], i, k)
		}
		i++
	}

	v, ok := m.Get(BulkString("b"))
	if !ok || v != Integer(2) {
		t.Errorf("Expected overwritten value 2, got %v (%v)", v, ok)
	}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet(BulkString("a"), Integer(1), BulkString("a"))

	if s.Len() != 2 {
		t.Errorf("Expected 2 members, got %d", s.Len())
	}
	if s.Add(Integer(1)) {
		t.Errorf("Expected duplicate add to report false")
	}
	if !s.Add(Bool(false)) {
		t.Errorf("Expected new member to be added")
	}
	if !s.Contains(BulkString("a")) || s.Contains(BulkString("b")) {
		t.Errorf("Unexpected membership: %v", s)
	}

	// bytes and strings with the same content are different keys
	if s.Contains(BytesKey("a")) {
		t.Errorf("Expected BytesKey to differ from BulkString")
	}
}

func TestCallOptions(t *testing.T) {
	opts := NewCallOptions().NoWrites().ErrorsAsReplies().Resp(Resp3).Build()
	if !opts.Flags().Has(raw.CallNoWrites | raw.CallErrorsAsReplies | raw.CallResp3) {
		t.Errorf("Expected all flags, got %b", opts.Flags())
	}

	opts = NewCallOptions().Resp(Resp3).Resp(RespAuto).Build()
	if opts.Flags().Has(raw.CallResp3) || !opts.Flags().Has(raw.CallRespAuto) {
		t.Errorf("Expected only RespAuto, got %b", opts.Flags())
	}

	blocking := NewCallOptions().BuildBlocking()
	if !blocking.Flags().Has(raw.CallBlocking) {
		t.Errorf("Expected blocking flag, got %b", blocking.Flags())
	}
}
