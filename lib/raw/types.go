package raw

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

// ReplyHandle names a reply object produced by Call.
type ReplyHandle uint64

// CtxHandle names an execution context (command, timer, unblock callback or
// thread-safe context).
type CtxHandle uint64

// BlockedClientHandle names a client whose reply has been deferred.
type BlockedClientHandle uint64

// TimerID names a scheduled one-shot timer.
type TimerID uint64

// ScanCursorHandle names the state of a keyspace scan.
type ScanCursorHandle uint64

// KeyHandle names an open key. The zero handle is a key opened for reading
// that does not exist.
type KeyHandle uint64

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

// Status is the result code of every API function that can fail.
type Status int

const (
	StatusOK  Status = iota // 0: the operation succeeded
	StatusErr               // 1: the operation failed
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "ERR"
}

// --------------------------------------------------------------------------
// Reply Types
// --------------------------------------------------------------------------

// ReplyType is the tag of a reply object.
type ReplyType int

const (
	ReplyUnknown        ReplyType = iota - 1 // -1: no object
	ReplyString                              // 0: simple or bulk string
	ReplyError                               // 1: error
	ReplyInteger                             // 2: 64 bit integer
	ReplyArray                               // 3: ordered replies
	ReplyNull                                // 4: null
	ReplyMap                                 // 5: ordered key/value pairs
	ReplySet                                 // 6: ordered unique replies
	ReplyBool                                // 7: boolean
	ReplyDouble                              // 8: double
	ReplyBigNumber                           // 9: arbitrary precision decimal string
	ReplyVerbatimString                      // 10: format tag + raw bytes
	ReplyPromise                             // 11: pending result of a blocking call
)

func (t ReplyType) String() string {
	switch t {
	case ReplyUnknown:
		return "unknown"
	case ReplyString:
		return "string"
	case ReplyError:
		return "error"
	case ReplyInteger:
		return "integer"
	case ReplyArray:
		return "array"
	case ReplyNull:
		return "null"
	case ReplyMap:
		return "map"
	case ReplySet:
		return "set"
	case ReplyBool:
		return "bool"
	case ReplyDouble:
		return "double"
	case ReplyBigNumber:
		return "big-number"
	case ReplyVerbatimString:
		return "verbatim-string"
	case ReplyPromise:
		return "promise"
	default:
		return "invalid"
	}
}

// VerbatimFormatLength is the length of the format tag of a verbatim string.
const VerbatimFormatLength = 3

// --------------------------------------------------------------------------
// Call Flags
// --------------------------------------------------------------------------

// CallFlags control how Call executes a command.
type CallFlags uint32

const (
	CallResp3           CallFlags = 1 << iota // replies use the RESP3 shapes (map, set, bool, double, ...)
	CallRespAuto                              // replies use the protocol of the calling client
	CallNoWrites                              // reject commands flagged as write
	CallErrorsAsReplies                       // report pre-execution failures as error replies instead of a nil handle
	CallBlocking                              // allow blocking commands; may return a ReplyPromise
)

// Has reports whether all flags in f are set.
func (c CallFlags) Has(f CallFlags) bool {
	return c&f == f
}

// --------------------------------------------------------------------------
// Log Levels
// --------------------------------------------------------------------------

// LogLevel is the severity of a module log line.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogVerbose
	LogNotice
	LogWarning
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogVerbose:
		return "verbose"
	case LogNotice:
		return "notice"
	case LogWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Features
// --------------------------------------------------------------------------

// Feature represents optional parts of the API as bit flags
type Feature uint64

const (
	FeatureCall           Feature = 1 << iota // Call and the reply accessors
	FeatureResp3                              // RESP3 reply types (map, set, bool, double, big number, verbatim)
	FeatureBlockingCall                       // CallBlocking and the promise functions
	FeatureBlockClient                        // BlockClient, UnblockClient, AbortBlock
	FeatureThreadSafeContext                  // thread-safe and detached contexts
	FeatureTimers                             // CreateTimer, StopTimer, GetTimerInfo
	FeatureScan                               // keyspace scan cursors
	FeatureKeys                               // OpenKey and the key functions
	FeatureNotifications                      // keyspace notifications and post notification jobs
	FeatureServerEvents                       // server event subscriptions
)

func (f Feature) String() string {
	switch f {
	case FeatureCall:
		return "Call"
	case FeatureResp3:
		return "Resp3"
	case FeatureBlockingCall:
		return "BlockingCall"
	case FeatureBlockClient:
		return "BlockClient"
	case FeatureThreadSafeContext:
		return "ThreadSafeContext"
	case FeatureTimers:
		return "Timers"
	case FeatureScan:
		return "Scan"
	case FeatureKeys:
		return "Keys"
	case FeatureNotifications:
		return "Notifications"
	case FeatureServerEvents:
		return "ServerEvents"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// KeyMode controls what an open key allows
type KeyMode int

const (
	KeyRead  KeyMode = 1 << iota // read the value
	KeyWrite                     // modify, delete or expire the value
)

// KeyType is the kind of value stored at an open key
type KeyType int

const (
	KeyTypeEmpty KeyType = iota
	KeyTypeString
	KeyTypeList
	KeyTypeHash
	KeyTypeSet
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeEmpty:
		return "empty"
	case KeyTypeString:
		return "string"
	case KeyTypeList:
		return "list"
	case KeyTypeHash:
		return "hash"
	case KeyTypeSet:
		return "set"
	default:
		return "unknown"
	}
}

// ListWhere selects the end of a list
type ListWhere int

const (
	ListHead ListWhere = iota
	ListTail
)

// NoExpire is the expire of a key without time to live
const NoExpire int64 = -1

// --------------------------------------------------------------------------
// Notifications and Server Events
// --------------------------------------------------------------------------

// NotifyEvent classes keyspace notifications as bit flags
type NotifyEvent uint32

const (
	NotifyGeneric NotifyEvent = 1 << iota // del, expire
	NotifyString                          // set, incrby
	NotifyList                            // lpush, rpush, lpop, rpop
	NotifyHash                            // hset, hdel
	NotifySet                             // sadd
	NotifyExpired                         // key removed because its ttl passed
	NotifyKeyMiss                         // read of a missing key
	NotifyModule                          // events raised by modules

	// NotifyAll is every class except key misses
	NotifyAll = NotifyGeneric | NotifyString | NotifyList | NotifyHash | NotifySet | NotifyExpired | NotifyModule
)

func (e NotifyEvent) String() string {
	switch e {
	case NotifyGeneric:
		return "generic"
	case NotifyString:
		return "string"
	case NotifyList:
		return "list"
	case NotifyHash:
		return "hash"
	case NotifySet:
		return "set"
	case NotifyExpired:
		return "expired"
	case NotifyKeyMiss:
		return "keymiss"
	case NotifyModule:
		return "module"
	default:
		return "mixed"
	}
}

// ServerEvent is a store wide event modules can subscribe to
type ServerEvent int

const (
	ServerEventFlush    ServerEvent = iota // FLUSHALL, subevents FlushStarted and FlushEnded
	ServerEventShutdown                    // the store is closing, no subevent
)

// Subevents of ServerEventFlush
const (
	FlushStarted uint64 = iota
	FlushEnded
)

func (e ServerEvent) String() string {
	switch e {
	case ServerEventFlush:
		return "flush"
	case ServerEventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
