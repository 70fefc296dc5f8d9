package host

import (
	"fmt"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Stats is a snapshot of the host's resource accounting
type Stats struct {
	LiveRootReplies int64
	DoubleFrees     int64
	BlockedClients  int
	PendingPromises int
	PendingTimers   int
	Contexts        int
	OpenKeys        int
	Keys            int
	Commands        int64
	ArgBytesMean    int
	ArgBytesMedian  int
	ArgBytesP99     int
	GILAcquisitions int64
	GILWaitMean     time.Duration
	GILHoldMean     time.Duration
}

// Stats returns the current resource accounting. Reading the keyspace size
// takes the gil.
func (h *Host) Stats() Stats {
	s := Stats{
		LiveRootReplies: h.liveRoots.Load(),
		DoubleFrees:     h.doubleFrees.Load(),
		BlockedClients:  h.blocked.Size(),
		PendingPromises: h.promises.Size(),
		PendingTimers:   h.pendingTimers(),
		Contexts:        h.contexts.Size(),
		OpenKeys:        h.openKeys(),
	}

	h.lockGIL()
	s.Keys = len(h.keyspace)
	h.unlockGIL()

	h.registry.Each(func(name string, m interface{}) {
		if c, ok := m.(metrics.Counter); ok && strings.HasPrefix(name, "commands.") {
			s.Commands += c.Count()
		}
	})

	s.ArgBytesMean = h.argSizes.Mean()
	s.ArgBytesMedian = h.argSizes.Percentile(50)
	s.ArgBytesP99 = h.argSizes.Percentile(99)

	wait := h.gilWait.Snapshot()
	hold := h.gilHold.Snapshot()
	s.GILAcquisitions = wait.Count()
	s.GILWaitMean = time.Duration(wait.Mean())
	s.GILHoldMean = time.Duration(hold.Mean())
	return s
}

// String returns a formatted string representation of the stats
func (s Stats) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Resources")
	addField("Live Root Replies", fmt.Sprintf("%d", s.LiveRootReplies))
	addField("Double Frees", fmt.Sprintf("%d", s.DoubleFrees))
	addField("Blocked Clients", fmt.Sprintf("%d", s.BlockedClients))
	addField("Pending Promises", fmt.Sprintf("%d", s.PendingPromises))
	addField("Pending Timers", fmt.Sprintf("%d", s.PendingTimers))
	addField("Contexts", fmt.Sprintf("%d", s.Contexts))
	addField("Open Keys", fmt.Sprintf("%d", s.OpenKeys))

	addSection("Keyspace")
	addField("Keys", fmt.Sprintf("%d", s.Keys))
	addField("Commands", fmt.Sprintf("%d", s.Commands))
	addField("Arg Bytes (mean)", fmt.Sprintf("%d", s.ArgBytesMean))
	addField("Arg Bytes (p50 est.)", fmt.Sprintf("%d", s.ArgBytesMedian))
	addField("Arg Bytes (p99 est.)", fmt.Sprintf("%d", s.ArgBytesP99))

	addSection("Global Lock")
	addField("Acquisitions", fmt.Sprintf("%d", s.GILAcquisitions))
	addField("Mean Wait", s.GILWaitMean.String())
	addField("Mean Hold", s.GILHoldMean.String())

	return sb.String()
}
