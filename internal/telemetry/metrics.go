package telemetry

import "sync"

var (
	// LatencyBuckets covers in-process stores through network mechanisms.
	LatencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5}

	// CandidateBuckets for the number of distinct values seen by one vote.
	CandidateBuckets = []float64{0, 1, 2, 3, 4, 6, 8, 12}
)

var (
	// MechanismOpsTotal counts mechanism calls by mechanism, op (read, write)
	// and result (ok, miss, error).
	MechanismOpsTotal = &swapCounterVec{}

	// MechanismOpSeconds measures mechanism call latency by mechanism and op.
	MechanismOpSeconds = &swapHistogramVec{}

	// DeferredCancelledTotal counts pending deferred calls replaced by a newer call, by op.
	DeferredCancelledTotal = &swapCounterVec{}

	// TallyCandidates observes the number of distinct candidates per vote.
	TallyCandidates = &swapHistogram{}

	// RespawnTotal counts respawn writes by result (ok, error).
	RespawnTotal = &swapCounterVec{}

	// CallbackDeliveriesTotal counts async read deliveries by trigger (complete, timeout).
	CallbackDeliveriesTotal = &swapCounterVec{}
)

var metricsOnce sync.Once

// InitMetrics registers every metric with the active registry. It is
// called by InitializeTelemetry; only the first call after the registry
// exists has any effect.
func InitMetrics() {
	if registry.Load() == nil {
		return
	}
	metricsOnce.Do(initMetrics)
}

func initMetrics() {
	MechanismOpsTotal.set(NewCounterVec(
		"mechanism_ops_total",
		"Mechanism calls by mechanism, op and result",
		[]string{"mechanism", "op", "result"},
	))
	MechanismOpSeconds.set(NewHistogramVec(
		"mechanism_op_seconds",
		"Mechanism call latency",
		[]string{"mechanism", "op"},
		LatencyBuckets,
	))
	DeferredCancelledTotal.set(NewCounterVec(
		"deferred_cancelled_total",
		"Pending deferred calls replaced before firing",
		[]string{"op"},
	))
	TallyCandidates.set(NewHistogram(
		"tally_candidates",
		"Distinct candidate values per vote",
		CandidateBuckets,
	))
	RespawnTotal.set(NewCounterVec(
		"respawn_total",
		"Values rewritten into mechanisms that lost them",
		[]string{"result"},
	))
	CallbackDeliveriesTotal.set(NewCounterVec(
		"callback_deliveries_total",
		"Async read deliveries by trigger",
		[]string{"trigger"},
	))
}
