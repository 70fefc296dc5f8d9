package host

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvmod/lib/common"
	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/ValentinKolb/kvmod/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("host")

// ErrHostClosed is returned by client operations after Close
var ErrHostClosed = errors.New("host is closed")

// --------------------------------------------------------------------------
// Contexts
// --------------------------------------------------------------------------

type ctxKind int

const (
	ctxCommand ctxKind = iota
	ctxLoad
	ctxTimer
	ctxUnblock
	ctxThreadSafe
	ctxDetached
	ctxNotify
	ctxPostJob
	ctxServerEvent
)

func (k ctxKind) String() string {
	switch k {
	case ctxCommand:
		return "command"
	case ctxLoad:
		return "load"
	case ctxTimer:
		return "timer"
	case ctxUnblock:
		return "unblock"
	case ctxThreadSafe:
		return "thread-safe"
	case ctxDetached:
		return "detached"
	case ctxNotify:
		return "notification"
	case ctxPostJob:
		return "post-job"
	case ctxServerEvent:
		return "server-event"
	default:
		return "unknown"
	}
}

// execCtx is the state behind a raw.CtxHandle
type execCtx struct {
	id       raw.CtxHandle
	kind     ctxKind
	module   string
	name     string // command name of command contexts
	protocol int

	// replies written through the context
	builder *replyBuilder

	// client waiting for the reply of a command context, nil for nested calls
	reply chan<- *Reply

	// set by BlockClient on command contexts
	blocked *blockedClient

	// thread-safe contexts bound to a blocked client write into its builder
	bc *blockedClient
}

// --------------------------------------------------------------------------
// Host
// --------------------------------------------------------------------------

// Host is an embedded store implementing raw.API
type Host struct {
	cfg common.HostConfig

	// the global lock and its instrumentation
	gil       sync.Mutex
	heldSince time.Time
	registry  metrics.Registry
	gilWait   metrics.Timer
	gilHold   metrics.Timer
	argSizes  *util.SizeHistogram

	features atomic.Uint64

	// handle tables
	nextHandle atomic.Uint64
	replies    *xsync.MapOf[raw.ReplyHandle, *replyObj]
	contexts   *xsync.MapOf[raw.CtxHandle, *execCtx]
	blocked    *xsync.MapOf[raw.BlockedClientHandle, *blockedClient]
	promises   *xsync.MapOf[uint64, *promise]
	cursors    *xsync.MapOf[raw.ScanCursorHandle, *scanCursor]
	keys       *xsync.MapOf[raw.KeyHandle, *openKey]

	// state guarded by the gil
	keyspace map[string]*object
	commands map[string]*command
	waiters  map[string][]*waiter
	modules  []string

	// notifications, guarded by the gil
	subscribers  []*subscriber
	serverEvents map[raw.ServerEvent][]*serverSubscriber
	postJobs     []postJob
	notifyDepth  int

	// timers
	nextTimer raw.TimerID
	timerMu   sync.Mutex
	timers    *util.MapHeap[*timer]
	timerWake chan struct{}

	// event loop
	events *util.Queue[event]

	liveRoots   atomic.Int64
	doubleFrees atomic.Int64

	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a host and starts its event and timer loops
func New(cfg common.HostConfig) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host config: %w", err)
	}

	registry := metrics.NewRegistry()
	h := &Host{
		cfg:          cfg,
		registry:     registry,
		gilWait:      metrics.GetOrRegisterTimer("gil.wait", registry),
		gilHold:      metrics.GetOrRegisterTimer("gil.hold", registry),
		argSizes:     util.NewSizeHistogram(),
		replies:      xsync.NewMapOf[raw.ReplyHandle, *replyObj](),
		contexts:     xsync.NewMapOf[raw.CtxHandle, *execCtx](),
		blocked:      xsync.NewMapOf[raw.BlockedClientHandle, *blockedClient](),
		promises:     xsync.NewMapOf[uint64, *promise](),
		cursors:      xsync.NewMapOf[raw.ScanCursorHandle, *scanCursor](),
		keys:         xsync.NewMapOf[raw.KeyHandle, *openKey](),
		keyspace:     make(map[string]*object),
		commands:     make(map[string]*command),
		waiters:      make(map[string][]*waiter),
		serverEvents: make(map[raw.ServerEvent][]*serverSubscriber),
		nextTimer:    raw.TimerID(util.GenerateSeed() >> 1),
		timers:       util.NewMapHeap[*timer](),
		timerWake:    make(chan struct{}, 1),
		events:       util.NewQueue[event](),
		closed:       make(chan struct{}),
	}
	h.features.Store(uint64(allFeatures))
	h.registerBuiltins()

	h.wg.Add(2)
	go h.eventLoop()
	go h.timerLoop()

	Logger.Infof("host started (protocol RESP%d, scan batch %d)", cfg.DefaultProtocol, cfg.ScanBatchSize)
	return h, nil
}

// Config returns the configuration the host was created with
func (h *Host) Config() common.HostConfig {
	return h.cfg
}

// Metrics returns the registry holding the GIL and command metrics
func (h *Host) Metrics() metrics.Registry {
	return h.registry
}

// --------------------------------------------------------------------------
// Global Lock
// --------------------------------------------------------------------------

func (h *Host) lockGIL() {
	start := time.Now()
	h.gil.Lock()
	h.gilWait.UpdateSince(start)
	h.heldSince = time.Now()
}

// unlockGIL runs the pending post notification jobs before releasing
func (h *Host) unlockGIL() {
	h.runPostJobs()
	h.gilHold.UpdateSince(h.heldSince)
	h.gil.Unlock()
}

// --------------------------------------------------------------------------
// Handles and Contexts
// --------------------------------------------------------------------------

func (h *Host) newHandle() uint64 {
	return h.nextHandle.Add(1)
}

func (h *Host) newCtx(kind ctxKind, module string, protocol int) *execCtx {
	c := &execCtx{
		id:       raw.CtxHandle(h.newHandle()),
		kind:     kind,
		module:   module,
		protocol: protocol,
	}
	h.contexts.Store(c.id, c)
	return c
}

func (h *Host) freeCtx(c *execCtx) {
	h.contexts.Delete(c.id)
}

// ctx resolves a context handle; an unknown handle is a protocol violation
func (h *Host) ctx(id raw.CtxHandle) *execCtx {
	c, ok := h.contexts.Load(id)
	if !ok {
		protocolViolation("unknown context handle %d", id)
	}
	return c
}

// protocolViolation logs and panics, the module broke the ABI contract
func protocolViolation(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Logger.Panicf("protocol violation: %s", msg)
	panic("protocol violation: " + msg)
}

// --------------------------------------------------------------------------
// Modules
// --------------------------------------------------------------------------

// LoadModule runs the entry point of a module with the GIL held. Commands
// registered by a failing entry point are removed again.
func (h *Host) LoadModule(name string, onLoad raw.OnLoadFunc) error {
	if h.closing.Load() {
		return ErrHostClosed
	}

	h.lockGIL()
	defer h.unlockGIL()

	for _, m := range h.modules {
		if strings.EqualFold(m, name) {
			return fmt.Errorf("module %s already loaded", name)
		}
	}

	c := h.newCtx(ctxLoad, name, 3)
	status := onLoad(h, c.id)
	h.freeCtx(c)

	if status != raw.StatusOK {
		for cmdName, cmd := range h.commands {
			if cmd.module == name {
				delete(h.commands, cmdName)
			}
		}
		return fmt.Errorf("module %s failed to load", name)
	}

	h.modules = append(h.modules, name)
	Logger.Infof("module %s loaded", name)
	return nil
}

// Modules returns the names of the loaded modules
func (h *Host) Modules() []string {
	h.lockGIL()
	defer h.unlockGIL()
	return append([]string(nil), h.modules...)
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Close stops the loops, fails pending promises, releases blocked clients
// with a null reply and drops pending timers. Safe to call more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		close(h.closed)
		h.wg.Wait()

		h.lockGIL()
		h.fireServerEvent(raw.ServerEventShutdown, 0)

		// pending promises fire with an error result
		h.promises.Range(func(_ uint64, p *promise) bool {
			h.completePromise(p, NewErrorReply(errShutdown))
			return true
		})
		h.drainEvents(false)

		h.blocked.Range(func(_ raw.BlockedClientHandle, bc *blockedClient) bool {
			if bc.done.CompareAndSwap(false, true) {
				Logger.Warningf("releasing blocked client %d on shutdown", bc.id)
				h.deliverBlocked(bc, true)
			}
			return true
		})

		for key, ws := range h.waiters {
			for _, w := range ws {
				h.finishWaiter(w, NewNull())
			}
			delete(h.waiters, key)
		}
		h.drainEvents(false)

		h.timerMu.Lock()
		dropped := h.timers.Len()
		h.timers = util.NewMapHeap[*timer]()
		h.timerMu.Unlock()

		h.unlockGIL()

		stats := h.Stats()
		Logger.Infof("host closed (dropped %d timers, %d live root replies, %d double frees)",
			dropped, stats.LiveRootReplies, stats.DoubleFrees)
	})
	return nil
}

// --------------------------------------------------------------------------
// Event Loop
// --------------------------------------------------------------------------

type eventKind int

const (
	evUnblock       eventKind = iota // blocked client finished
	evWaiterTimeout                  // blocking pop timed out
	evPromise                        // promise result ready for its handler
)

type event struct {
	kind    eventKind
	bc      *blockedClient
	abort   bool
	waiter  *waiter
	promise *promise
}

func (h *Host) eventLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.events.Notify():
			h.drainEvents(true)
		case <-h.closed:
			return
		}
	}
}

// drainEvents handles all queued events. With lock set every event is
// handled under its own GIL acquisition, otherwise the caller holds the GIL.
func (h *Host) drainEvents(lock bool) {
	for {
		ev, ok := h.events.Pop()
		if !ok {
			return
		}
		if lock {
			h.lockGIL()
		}
		h.handleEvent(ev)
		if lock {
			h.unlockGIL()
		}
	}
}

func (h *Host) handleEvent(ev event) {
	switch ev.kind {
	case evUnblock:
		h.deliverBlocked(ev.bc, ev.abort)
	case evWaiterTimeout:
		if !ev.waiter.done {
			h.removeWaiter(ev.waiter)
			h.finishWaiter(ev.waiter, NewNull())
		}
	case evPromise:
		h.firePromise(ev.promise)
	}
}
