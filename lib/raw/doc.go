// Package raw describes the extension ABI of the embedded data store: the
// fixed, versioned table of functions a module may call, the opaque handles
// those functions hand out and the type tags used to classify replies.
//
// Nothing in this package owns anything. A handle is a plain integer naming an
// object that lives on the store side; whoever receives one is responsible for
// pairing it with exactly one owner (see package module for the safe wrappers).
//
// Key Components:
//
//   - Handles: ReplyHandle, CtxHandle, BlockedClientHandle, TimerID and
//     ScanCursorHandle. The zero value of every handle type is the nil handle.
//
//   - ReplyType: the closed, versioned set of reply tags. Decoders must treat
//     any value outside this set as an ABI mismatch.
//
//   - API: the function table. Implementations announce optional parts of the
//     table through SupportsFeature, the same way storage engines announce
//     optional operations.
//
// Protocol Rules:
//
//   - Exactly one FreeCallReply per root reply handle. Handles obtained from
//     CallReplyArrayElement, CallReplyMapElement and CallReplySetElement are
//     owned by their root; freeing them is a no-op and freeing the root frees
//     the whole subtree.
//   - Every ThreadSafeContextLock must be paired with ThreadSafeContextUnlock
//     on the same goroutine. The lock is process wide and not re-entrant.
//   - A blocked client stays blocked until UnblockClient or AbortBlock is
//     called for it, exactly once.
//   - Timer ids are valid until the timer fires or is stopped. StopTimer and
//     GetTimerInfo report StatusErr for any other id.
package raw
