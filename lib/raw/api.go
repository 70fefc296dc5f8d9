package raw

// --------------------------------------------------------------------------
// Callbacks
// --------------------------------------------------------------------------

// CommandFunc is invoked by the store for every call of a module command.
// The lock is held for the whole invocation.
type CommandFunc func(ctx CtxHandle, args [][]byte) Status

// OnLoadFunc is the entry point of a module. It runs once, with the lock held.
type OnLoadFunc func(api API, ctx CtxHandle) Status

// TimerFunc is invoked once when a timer fires, with the lock held.
type TimerFunc func(ctx CtxHandle, data any)

// UnblockFunc is invoked once when a promise returned by a blocking call
// completes, with the lock held. The reply handle is a root handle.
type UnblockFunc func(ctx CtxHandle, reply ReplyHandle, data any)

// ScanFunc is invoked for every key visited by one Scan step.
type ScanFunc func(ctx CtxHandle, key []byte)

// ScanKeyFunc is invoked for every element visited by one ScanKey step: hash
// fields with their value, set members with a nil value.
type ScanKeyFunc func(key KeyHandle, field, value []byte)

// NotificationFunc is invoked synchronously for every keyspace notification
// matching the subscription, with the lock held. Write commands called from it
// are rejected, writes belong into a post notification job.
type NotificationFunc func(ctx CtxHandle, event NotifyEvent, name string, key []byte)

// PostJobFunc runs once before the lock is released, after the notification
// that scheduled it.
type PostJobFunc func(ctx CtxHandle, data any)

// ServerEventFunc is invoked for server events, with the lock held.
type ServerEventFunc func(ctx CtxHandle, event ServerEvent, subevent uint64)

// --------------------------------------------------------------------------
// API Interface
// --------------------------------------------------------------------------

// API is the function table exported by the store to its modules.
// Unless stated otherwise every function must be called while holding the
// lock, either inside a callback or between ThreadSafeContextLock and
// ThreadSafeContextUnlock.
type API interface {

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the store implements the specified features.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// --------------------------------------------------------------------------
	// Command Invocation and Call Replies
	// --------------------------------------------------------------------------

	// Call executes a store command and returns a root reply handle.
	// A nil handle means no object was produced (e.g. an unknown command
	// without CallErrorsAsReplies).
	Call(ctx CtxHandle, cmd string, flags CallFlags, args [][]byte) (reply ReplyHandle)

	// CallReplyType returns the tag of a reply, ReplyUnknown for the nil handle.
	CallReplyType(reply ReplyHandle) (t ReplyType)

	// CallReplyInteger returns the value of an integer reply.
	CallReplyInteger(reply ReplyHandle) (v int64)

	// CallReplyStringPtr returns the bytes of a string or error reply.
	// The slice is owned by the reply and valid until the root is freed.
	CallReplyStringPtr(reply ReplyHandle) (b []byte)

	// CallReplyLength returns the number of elements of an array, map or set
	// reply and the byte length of string like replies.
	CallReplyLength(reply ReplyHandle) (n int)

	// CallReplyArrayElement returns the element at idx or the nil handle.
	CallReplyArrayElement(reply ReplyHandle, idx int) (elem ReplyHandle)

	// CallReplyMapElement returns the key and value of the pair at idx or two
	// nil handles.
	CallReplyMapElement(reply ReplyHandle, idx int) (key, value ReplyHandle)

	// CallReplySetElement returns the element at idx or the nil handle.
	CallReplySetElement(reply ReplyHandle, idx int) (elem ReplyHandle)

	// CallReplyBool returns the value of a boolean reply.
	CallReplyBool(reply ReplyHandle) (v bool)

	// CallReplyDouble returns the value of a double reply.
	CallReplyDouble(reply ReplyHandle) (v float64)

	// CallReplyBigNumber returns the decimal digits of a big number reply.
	CallReplyBigNumber(reply ReplyHandle) (b []byte)

	// CallReplyVerbatim returns the data and the three character format tag of
	// a verbatim string reply.
	CallReplyVerbatim(reply ReplyHandle) (data []byte, format string)

	// FreeCallReply releases a root reply and its whole subtree.
	// Freeing a non-root handle is a no-op.
	FreeCallReply(reply ReplyHandle)

	// CallReplyPromiseSetUnblockHandler registers the completion callback of a
	// promise reply. It may be called once per promise.
	CallReplyPromiseSetUnblockHandler(reply ReplyHandle, fn UnblockFunc, data any)

	// CallReplyPromiseAbort aborts the blocked call behind a promise reply.
	// A registered unblock handler still fires once, with an error reply.
	CallReplyPromiseAbort(reply ReplyHandle) (status Status)

	// --------------------------------------------------------------------------
	// Replying to the Client
	// --------------------------------------------------------------------------

	ReplyWithLongLong(ctx CtxHandle, v int64) (status Status)
	ReplyWithSimpleString(ctx CtxHandle, s string) (status Status)
	ReplyWithError(ctx CtxHandle, msg string) (status Status)
	ReplyWithStringBuffer(ctx CtxHandle, b []byte) (status Status)
	ReplyWithArray(ctx CtxHandle, n int) (status Status)
	ReplyWithMap(ctx CtxHandle, n int) (status Status)
	ReplyWithSet(ctx CtxHandle, n int) (status Status)
	ReplyWithNull(ctx CtxHandle) (status Status)
	ReplyWithBool(ctx CtxHandle, v bool) (status Status)
	ReplyWithDouble(ctx CtxHandle, v float64) (status Status)
	ReplyWithBigNumber(ctx CtxHandle, digits string) (status Status)
	ReplyWithVerbatimString(ctx CtxHandle, data []byte, format string) (status Status)

	// WrongArity replies with the standard wrong number of arguments error for
	// the command being executed.
	WrongArity(ctx CtxHandle) (status Status)

	// --------------------------------------------------------------------------
	// Blocked Clients
	// --------------------------------------------------------------------------

	// BlockClient suspends the reply of the client executing ctx.
	// Must be called from a command callback.
	BlockClient(ctx CtxHandle) (bc BlockedClientHandle)

	// UnblockClient resumes a blocked client. Replies written through a
	// thread-safe context bound to bc are delivered; if none were written the
	// client receives a null reply. Does not require the lock.
	UnblockClient(bc BlockedClientHandle, data any) (status Status)

	// AbortBlock resumes a blocked client, discarding any buffered reply.
	AbortBlock(bc BlockedClientHandle) (status Status)

	// --------------------------------------------------------------------------
	// Thread-Safe Contexts
	// --------------------------------------------------------------------------

	// GetThreadSafeContext creates a context usable from any goroutine. If bc
	// is not nil, replies written to the context are buffered for that client.
	// Does not require the lock.
	GetThreadSafeContext(bc BlockedClientHandle) (ctx CtxHandle)

	// GetDetachedThreadSafeContext creates a long lived context that is not
	// bound to any client. Does not require the lock.
	GetDetachedThreadSafeContext(ctx CtxHandle) (detached CtxHandle)

	// FreeThreadSafeContext releases a thread-safe context. Does not require
	// the lock.
	FreeThreadSafeContext(ctx CtxHandle)

	// ThreadSafeContextLock acquires the process wide lock. Blocks until the
	// lock is available.
	ThreadSafeContextLock(ctx CtxHandle)

	// ThreadSafeContextUnlock releases the process wide lock.
	ThreadSafeContextUnlock(ctx CtxHandle)

	// --------------------------------------------------------------------------
	// Timers
	// --------------------------------------------------------------------------

	// CreateTimer schedules fn to run once after periodMs milliseconds.
	CreateTimer(ctx CtxHandle, periodMs int64, fn TimerFunc, data any) (id TimerID)

	// StopTimer cancels a pending timer and hands its data back.
	StopTimer(ctx CtxHandle, id TimerID) (data any, status Status)

	// GetTimerInfo returns the remaining milliseconds and the data of a pending
	// timer without cancelling it.
	GetTimerInfo(ctx CtxHandle, id TimerID) (remainingMs uint64, data any, status Status)

	// --------------------------------------------------------------------------
	// Keyspace Scan
	// --------------------------------------------------------------------------

	ScanCursorCreate() (cursor ScanCursorHandle)
	ScanCursorRestart(cursor ScanCursorHandle)
	ScanCursorDestroy(cursor ScanCursorHandle)

	// Scan visits the next batch of keys, calling fn for each of them.
	// It returns false once the whole keyspace was visited.
	Scan(ctx CtxHandle, cursor ScanCursorHandle, fn ScanFunc) (more bool)

	// --------------------------------------------------------------------------
	// Keys
	// --------------------------------------------------------------------------

	// OpenKey opens a key. Opening a missing key for reading only returns the
	// zero handle. Open keys are bound to the lock, close them before it is
	// released.
	OpenKey(ctx CtxHandle, name []byte, mode KeyMode) (key KeyHandle)

	// CloseKey closes an open key. Closing the zero handle is a no-op. Does
	// not require the lock.
	CloseKey(key KeyHandle)

	// KeyType returns the kind of the stored value, KeyTypeEmpty if missing.
	KeyType(key KeyHandle) (t KeyType)

	// ValueLength returns the byte length of a string, the element count of
	// a list, hash or set and 0 for a missing key.
	ValueLength(key KeyHandle) (n int)

	// DeleteKey removes the key. Requires KeyWrite.
	DeleteKey(key KeyHandle) (status Status)

	// StringGet returns a copy of a string value.
	StringGet(key KeyHandle) (value []byte, status Status)

	// StringSet replaces the value with a string, dropping any time to live.
	// Requires KeyWrite.
	StringSet(key KeyHandle, value []byte) (status Status)

	// ListPush adds an element to a list, creating it if missing.
	// Requires KeyWrite.
	ListPush(key KeyHandle, where ListWhere, value []byte) (status Status)

	// ListPop removes an element of a list. Empty lists are deleted.
	// Requires KeyWrite.
	ListPop(key KeyHandle, where ListWhere) (value []byte, status Status)

	// HashGet returns the value of a hash field. A missing key or field is
	// not an error.
	HashGet(key KeyHandle, field []byte) (value []byte, ok bool, status Status)

	// HashSet sets a hash field, creating the hash if missing. A nil value
	// deletes the field. Requires KeyWrite.
	HashSet(key KeyHandle, field, value []byte) (status Status)

	// GetExpire returns the remaining time to live in milliseconds or
	// NoExpire.
	GetExpire(key KeyHandle) (ms int64)

	// SetExpire sets the time to live of an existing key, NoExpire removes
	// it. Requires KeyWrite.
	SetExpire(key KeyHandle, ms int64) (status Status)

	// ScanKey visits the next batch of hash fields or set members of key. It
	// returns false once all elements were visited.
	ScanKey(key KeyHandle, cursor ScanCursorHandle, fn ScanKeyFunc) (more bool)

	// --------------------------------------------------------------------------
	// Notifications and Server Events
	// --------------------------------------------------------------------------

	// SubscribeToKeyspaceEvents registers fn for the notification classes in
	// types.
	SubscribeToKeyspaceEvents(ctx CtxHandle, types NotifyEvent, fn NotificationFunc) (status Status)

	// NotifyKeyspaceEvent raises a notification for key.
	NotifyKeyspaceEvent(ctx CtxHandle, types NotifyEvent, event string, key []byte) (status Status)

	// AddPostNotificationJob schedules fn to run before the lock is released.
	AddPostNotificationJob(ctx CtxHandle, fn PostJobFunc, data any) (status Status)

	// SubscribeToServerEvent registers fn for event.
	SubscribeToServerEvent(ctx CtxHandle, event ServerEvent, fn ServerEventFunc) (status Status)

	// --------------------------------------------------------------------------
	// Logging and Registration
	// --------------------------------------------------------------------------

	// Log writes a line to the store log. Does not require the lock; ctx may
	// be nil.
	Log(ctx CtxHandle, level LogLevel, msg string)

	// CreateCommand registers a module command. Only valid inside OnLoad.
	// flags is a space separated list (e.g. "write", "readonly").
	CreateCommand(ctx CtxHandle, name string, fn CommandFunc, flags string) (status Status)
}
