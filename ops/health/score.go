package health

// Status is the overall health classification derived from a Score.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ScoreInputs is the composite health score's raw input vector. Each
// field is a ratio or absolute reading gathered by the caller; this
// package owns only the scoring function, not the collection of its
// inputs. The warehouse facade does not build a ScoreInputs or call Score.
type ScoreInputs struct {
	// CPUPercent is process or host CPU utilization, 0-100.
	CPUPercent float64
	// MemoryPercent is heap-vs-system utilization, 0-100 (the same
	// reading ops/pressure.Manager uses to pick its tier).
	MemoryPercent float64
	// StorageFailureRatio is failed devices / total devices, 0-1.
	StorageFailureRatio float64
	// RaidDegraded is true if any RAID array is running in a degraded
	// (non-optimal, non-failed) state.
	RaidDegraded bool
	// RaidFailed is true if any RAID array has dropped below its
	// minimum redundancy and is at risk of data loss.
	RaidFailed bool
	// P99LatencyMillis is the worst recent P99 across tracked
	// operation histograms, in milliseconds.
	P99LatencyMillis float64
}

// penalty thresholds and weights for the composite health score. Each
// factor independently subtracts from a 100-point baseline; the result
// is clamped to [0, 100]. There is no single authoritative formula for
// combining these five signals, so the weights below were chosen to make
// any one severely unhealthy factor (e.g. a failed RAID array) dominate
// the score rather than being averaged away by four healthy ones.
const (
	cpuWarnPercent  = 75.0
	cpuCritPercent  = 90.0
	cpuWarnPenalty  = 10.0
	cpuCritPenalty  = 20.0

	memWarnPercent = 70.0
	memCritPercent = 85.0
	memSevPercent  = 95.0
	memWarnPenalty = 10.0
	memCritPenalty = 25.0
	memSevPenalty  = 40.0

	storageFailurePenaltyScale = 30.0

	raidDegradedPenalty = 15.0
	raidFailedPenalty   = 30.0

	latencyWarnMillis  = 200.0
	latencyCritMillis  = 500.0
	latencyWarnPenalty = 5.0
	latencyCritPenalty = 15.0

	degradedThreshold  = 60.0
	healthyThreshold   = 90.0
)

// Score computes the composite health score (0-100, higher is better)
// and its classification from the given inputs.
func Score(in ScoreInputs) (score float64, status Status) {
	score = 100.0

	switch {
	case in.CPUPercent >= cpuCritPercent:
		score -= cpuCritPenalty
	case in.CPUPercent >= cpuWarnPercent:
		score -= cpuWarnPenalty
	}

	switch {
	case in.MemoryPercent >= memSevPercent:
		score -= memSevPenalty
	case in.MemoryPercent >= memCritPercent:
		score -= memCritPenalty
	case in.MemoryPercent >= memWarnPercent:
		score -= memWarnPenalty
	}

	if in.StorageFailureRatio > 0 {
		score -= in.StorageFailureRatio * storageFailurePenaltyScale
	}

	if in.RaidFailed {
		score -= raidFailedPenalty
	} else if in.RaidDegraded {
		score -= raidDegradedPenalty
	}

	switch {
	case in.P99LatencyMillis >= latencyCritMillis:
		score -= latencyCritPenalty
	case in.P99LatencyMillis >= latencyWarnMillis:
		score -= latencyWarnPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	switch {
	case score >= healthyThreshold:
		status = StatusHealthy
	case score >= degradedThreshold:
		status = StatusDegraded
	default:
		status = StatusUnhealthy
	}
	return score, status
}
