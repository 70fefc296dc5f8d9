// Package util
//
// This file provides a priority queue with key based access.
//
// The implementation combines a binary heap with a hash map, so that the host
// can always find the next timer to fire and still cancel or inspect any timer
// by its id:
//
//   - O(log n) for priority operations (Add, PopMin, RemoveByKey)
//   - O(1) for key based lookups and existence checks
//
// Note: This implementation is not thread-safe. The host only touches it while
// holding its timer mutex.
//
// Example usage:
//
//	h := NewMapHeap[string]()
//	h.Add(1001, deadline1, "first")
//	h.Add(1002, deadline2, "second")
//
//	key, deadline, ok := h.Peek()
//	value, ok := h.RemoveByKey(1001)
package util

import (
	"container/heap"
	"strconv"
)

// item is a single heap entry
type item[V any] struct {
	Key      uint64 // Unique identifier for the item
	Priority uint64 // Smaller priorities are popped first
	Value    V      // Payload attached to the key
	index    int    // Index in the heap, maintained by heap package
}

func (i *item[V]) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// itemHeap implements heap.Interface on top of the MapHeap storage
type itemHeap[V any] struct {
	items    []*item[V]
	itemsMap map[uint64]*item[V]
}

func (h *itemHeap[V]) Len() int { return len(h.items) }

func (h *itemHeap[V]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

func (h *itemHeap[V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *itemHeap[V]) Push(x any) {
	it := x.(*item[V])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

func (h *itemHeap[V]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	it.index = -1  // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// MapHeap is a min-heap of keyed values ordered by priority
type MapHeap[V any] struct {
	h itemHeap[V]
}

// NewMapHeap creates a new empty MapHeap
func NewMapHeap[V any]() *MapHeap[V] {
	return &MapHeap[V]{
		h: itemHeap[V]{
			items:    make([]*item[V], 0),
			itemsMap: make(map[uint64]*item[V]),
		},
	}
}

// Len returns the number of items in the heap
func (m *MapHeap[V]) Len() int { return m.h.Len() }

// Add inserts a new item or updates the priority and value of an existing one
func (m *MapHeap[V]) Add(key, priority uint64, value V) {
	if it, exists := m.h.itemsMap[key]; exists {
		it.Priority = priority
		it.Value = value
		heap.Fix(&m.h, it.index)
		return
	}

	heap.Push(&m.h, &item[V]{
		Key:      key,
		Priority: priority,
		Value:    value,
	})
}

// RemoveByKey removes an item by its key and returns its value
func (m *MapHeap[V]) RemoveByKey(key uint64) (V, bool) {
	it, exists := m.h.itemsMap[key]
	if !exists {
		var zero V
		return zero, false
	}

	heap.Remove(&m.h, it.index)
	return it.Value, true
}

// Peek returns the key and priority of the minimum item without removing it
func (m *MapHeap[V]) Peek() (key, priority uint64, ok bool) {
	if len(m.h.items) == 0 {
		return 0, 0, false
	}
	it := m.h.items[0]
	return it.Key, it.Priority, true
}

// PopMin removes and returns the minimum item
func (m *MapHeap[V]) PopMin() (key, priority uint64, value V, ok bool) {
	if len(m.h.items) == 0 {
		return 0, 0, value, false
	}
	it := heap.Pop(&m.h).(*item[V])
	return it.Key, it.Priority, it.Value, true
}

// Contains checks if a key exists in the heap
func (m *MapHeap[V]) Contains(key uint64) bool {
	_, exists := m.h.itemsMap[key]
	return exists
}

// GetByKey returns the priority and value of an item without removing it
func (m *MapHeap[V]) GetByKey(key uint64) (priority uint64, value V, ok bool) {
	it, exists := m.h.itemsMap[key]
	if !exists {
		return 0, value, false
	}
	return it.Priority, it.Value, true
}
