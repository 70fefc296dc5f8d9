package host

import (
	"sort"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// scanCursor walks a sorted snapshot of the keyspace, taken at the first step
type scanCursor struct {
	keys    []string
	pos     int
	started bool
}

func (h *Host) ScanCursorCreate() raw.ScanCursorHandle {
	h.require(raw.FeatureScan, "ScanCursorCreate")
	id := raw.ScanCursorHandle(h.newHandle())
	h.cursors.Store(id, &scanCursor{})
	return id
}

func (h *Host) ScanCursorRestart(cursor raw.ScanCursorHandle) {
	cur := h.cursor(cursor)
	cur.keys, cur.pos, cur.started = nil, 0, false
}

func (h *Host) ScanCursorDestroy(cursor raw.ScanCursorHandle) {
	h.cursor(cursor)
	h.cursors.Delete(cursor)
}

func (h *Host) cursor(id raw.ScanCursorHandle) *scanCursor {
	h.require(raw.FeatureScan, "ScanCursor")
	cur, ok := h.cursors.Load(id)
	if !ok {
		protocolViolation("unknown scan cursor %d", id)
	}
	return cur
}

// Scan visits up to ScanBatchSize keys. Keys deleted since the snapshot are
// skipped, keys created since are not visited.
func (h *Host) Scan(ctx raw.CtxHandle, cursor raw.ScanCursorHandle, fn raw.ScanFunc) bool {
	h.ctx(ctx)
	cur := h.cursor(cursor)

	if !cur.started {
		cur.keys = make([]string, 0, len(h.keyspace))
		for k := range h.keyspace {
			cur.keys = append(cur.keys, k)
		}
		sort.Strings(cur.keys)
		cur.started = true
	}

	end := min(cur.pos+h.cfg.ScanBatchSize, len(cur.keys))
	for _, k := range cur.keys[cur.pos:end] {
		if _, ok := h.get(k); ok {
			fn(ctx, []byte(k))
		}
	}
	cur.pos = end
	return cur.pos < len(cur.keys)
}
