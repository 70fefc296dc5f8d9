package module

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	callsTotal           = metrics.NewCounter(`kvmod_module_calls_total`)
	blockedClientsTotal  = metrics.NewCounter(`kvmod_module_blocked_clients_total`)
	leakedBlockedClients = metrics.NewCounter(`kvmod_module_blocked_clients_leaked_total`)
	timersCreated        = metrics.NewCounter(`kvmod_module_timers_created_total`)
	timersFired          = metrics.NewCounter(`kvmod_module_timers_fired_total`)
	futuresTotal         = metrics.NewCounter(`kvmod_module_futures_total`)
	futuresAborted       = metrics.NewCounter(`kvmod_module_futures_aborted_total`)
	futuresDropped       = metrics.NewCounter(`kvmod_module_futures_dropped_total`)
	keysOpened           = metrics.NewCounter(`kvmod_module_keys_opened_total`)
	leakedKeys           = metrics.NewCounter(`kvmod_module_keys_leaked_total`)
	notificationsTotal   = metrics.NewCounter(`kvmod_module_notifications_total`)
	postJobsTotal        = metrics.NewCounter(`kvmod_module_post_jobs_total`)
)

func commandCounter(module, command string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`kvmod_module_commands_total{module=%q,command=%q}`, module, command))
}

// LeakedBlockedClients returns how many blocked clients were released by the
// garbage collector instead of a reply
func LeakedBlockedClients() uint64 {
	return leakedBlockedClients.Get()
}

// DroppedFutures returns how many futures were aborted because they were
// discarded or collected without an unblock handler
func DroppedFutures() uint64 {
	return futuresDropped.Get()
}

// LeakedKeys returns how many open keys were closed by the garbage collector
func LeakedKeys() uint64 {
	return leakedKeys.Get()
}

// WritePrometheus writes the SDK counters in the Prometheus text format
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
