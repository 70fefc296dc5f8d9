package util

import (
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if _, _, ok := mh.Peek(); ok {
		t.Errorf("Peek on empty heap should fail")
	}
}

// TestMapHeapOrder tests that items are popped by ascending priority
func TestMapHeapOrder(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.Add(1, 100, "a")
	mh.Add(2, 200, "b")
	mh.Add(3, 50, "c")

	key, priority, ok := mh.Peek()
	if !ok || key != 3 || priority != 50 {
		t.Errorf("Expected min item to be (3,50), got (%d,%d)", key, priority)
	}

	expected := []string{"c", "a", "b"}
	for _, want := range expected {
		_, _, value, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Expected item %s, heap was empty", want)
		}
		if value != want {
			t.Errorf("Expected %s, got %s", want, value)
		}
	}

	if _, _, _, ok := mh.PopMin(); ok {
		t.Errorf("Heap should be empty")
	}
}

// TestMapHeapUpdate tests that adding an existing key updates it in place
func TestMapHeapUpdate(t *testing.T) {
	mh := NewMapHeap[int]()
	mh.Add(1, 100, 1)
	mh.Add(2, 200, 2)
	mh.Add(2, 10, 22)

	if mh.Len() != 2 {
		t.Errorf("Expected 2 items, got %d", mh.Len())
	}

	key, priority, ok := mh.Peek()
	if !ok || key != 2 || priority != 10 {
		t.Errorf("Expected min item to be (2,10), got (%d,%d)", key, priority)
	}

	_, value, ok := mh.GetByKey(2)
	if !ok || value != 22 {
		t.Errorf("Expected value 22, got %d", value)
	}
}

// TestMapHeapRemove tests removing by key
func TestMapHeapRemove(t *testing.T) {
	mh := NewMapHeap[string]()
	for i := uint64(1); i <= 10; i++ {
		mh.Add(i, 100-i, "v")
	}

	if _, ok := mh.RemoveByKey(5); !ok {
		t.Errorf("Expected key 5 to be removed")
	}
	if mh.Contains(5) {
		t.Errorf("Heap should not contain key 5")
	}
	if _, ok := mh.RemoveByKey(5); ok {
		t.Errorf("Removing a missing key should fail")
	}

	var last uint64
	for mh.Len() > 0 {
		_, priority, _, _ := mh.PopMin()
		if priority < last {
			t.Errorf("Heap order violated: %d after %d", priority, last)
		}
		last = priority
	}
}
