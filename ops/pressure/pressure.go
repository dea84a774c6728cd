// Package pressure implements the memory-pressure manager (C10): polls
// heap usage against system memory, drives eviction handlers on state
// transitions, and exposes throttle/batch-size hints to callers.
package pressure

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/infrastructure/ratelimit"
)

// Level is the memory-pressure tier, ordered Normal < Warning < Critical
// < Severe so comparisons (level >= Severe) work directly on the
// underlying int.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
	Severe
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "Normal"
	case Warning:
		return "Warning"
	case Critical:
		return "Critical"
	case Severe:
		return "Severe"
	default:
		return "Unknown"
	}
}

// consecutiveSevereAlertThreshold raises an operator-visible alert after
// this many back-to-back Severe polls.
const consecutiveSevereAlertThreshold = 3

func levelFor(usedPercent float64) Level {
	switch {
	case usedPercent >= 95:
		return Severe
	case usedPercent >= 85:
		return Critical
	case usedPercent >= 70:
		return Warning
	default:
		return Normal
	}
}

// limiterConfigFor scales admission down as the tier worsens: Normal
// barely constrains callers, Severe admits only a trickle of requests
// on top of the hard ShouldThrottle() stop.
func limiterConfigFor(level Level) ratelimit.RateLimitConfig {
	switch level {
	case Warning:
		return ratelimit.RateLimitConfig{RequestsPerSecond: 500, Burst: 1000}
	case Critical:
		return ratelimit.RateLimitConfig{RequestsPerSecond: 100, Burst: 200}
	case Severe:
		return ratelimit.RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	default:
		return ratelimit.RateLimitConfig{RequestsPerSecond: 2000, Burst: 4000}
	}
}

// evictionTargetBytes is the byte target handed to eviction handlers on
// a transition into level, as a fraction of the process's current heap.
func evictionTargetBytes(heapBytes uint64, level Level) int64 {
	switch level {
	case Warning:
		return int64(heapBytes / 10)
	case Critical:
		return int64(heapBytes / 4)
	case Severe:
		return int64(heapBytes / 2)
	default:
		return 0
	}
}

// EvictionHandler is invoked on a tier transition with a byte target to
// free. Handlers must not call back into Manager.Poll or register new
// handlers from within the callback — Poll holds no lock while invoking
// handlers, but a reentrant Poll call would double-count the transition.
type EvictionHandler func(ctx context.Context, targetBytes int64)

// AlertFunc is called once consecutiveSevereAlertThreshold consecutive
// Severe polls have occurred.
type AlertFunc func(consecutiveSevereCount int)

// MemorySampler abstracts the system-memory read so tests can substitute
// a fixed reading instead of depending on the real host's memory.
type MemorySampler func() (totalBytes uint64, err error)

func defaultSampler() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// Manager is the memory-pressure manager.
type Manager struct {
	mu                sync.Mutex
	level             Level
	consecutiveSevere int
	handlers          []EvictionHandler
	alert             AlertFunc
	sampler           MemorySampler
	logger            *logging.Logger
	limiter           *ratelimit.RateLimiter
}

// New constructs a Manager sampling system memory via gopsutil.
func New(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewFromEnv("pressure")
	}
	return &Manager{
		sampler: defaultSampler,
		logger:  logger,
		limiter: ratelimit.New(limiterConfigFor(Normal)),
	}
}

// RegisterEvictionHandler adds a handler invoked on every tier transition.
func (m *Manager) RegisterEvictionHandler(h EvictionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// SetAlertFunc sets the callback invoked on sustained Severe pressure.
func (m *Manager) SetAlertFunc(f AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alert = f
}

// SetSampler overrides the system-memory sampler (for tests).
func (m *Manager) SetSampler(s MemorySampler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampler = s
}

// Level returns the current pressure tier.
func (m *Manager) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// ShouldThrottle reports whether callers should shed load.
func (m *Manager) ShouldThrottle() bool {
	return m.Level() >= Severe
}

// Allow reports whether a non-critical request may be admitted right
// now, at a rate scaled to the current pressure tier. Unlike
// ShouldThrottle (a hard stop at Severe), Allow degrades gradually
// through Warning and Critical so callers can shed load before the
// hard stop is reached.
func (m *Manager) Allow() bool {
	m.mu.Lock()
	limiter := m.limiter
	m.mu.Unlock()
	return limiter.Allow()
}

// RecommendedBatchSize halves the default batch size once per tier above
// Normal: unchanged at Normal, /2 at Warning, /4 at Critical, /8 at Severe.
func (m *Manager) RecommendedBatchSize(defaultSize int) int {
	return defaultSize >> uint(m.Level())
}

// Poll samples heap and system memory, recomputes the tier, and on a
// transition invokes every registered eviction handler with the new
// tier's byte target before (at Critical/Severe) forcing a compacting GC.
func (m *Manager) Poll(ctx context.Context) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	heapBytes := memStats.HeapAlloc

	m.mu.Lock()
	sampler := m.sampler
	m.mu.Unlock()

	systemTotal, err := sampler()
	if err != nil {
		return err
	}
	usedPercent := float64(heapBytes) / float64(systemTotal) * 100
	newLevel := levelFor(usedPercent)

	m.mu.Lock()
	transitioned := newLevel != m.level
	m.level = newLevel
	if transitioned {
		m.limiter = ratelimit.New(limiterConfigFor(newLevel))
	}
	if newLevel == Severe {
		m.consecutiveSevere++
	} else {
		m.consecutiveSevere = 0
	}
	consecutiveSevere := m.consecutiveSevere
	handlers := append([]EvictionHandler(nil), m.handlers...)
	alertFn := m.alert
	m.mu.Unlock()

	if transitioned {
		target := evictionTargetBytes(heapBytes, newLevel)
		for _, h := range handlers {
			h(ctx, target)
		}
		if newLevel >= Critical {
			debug.FreeOSMemory()
		}
		m.logger.WithContext(ctx).WithField("level", newLevel.String()).WithField("used_percent", usedPercent).Info("memory pressure level changed")
	}

	if consecutiveSevere >= consecutiveSevereAlertThreshold {
		if alertFn != nil {
			alertFn(consecutiveSevere)
		}
		m.logger.WithContext(ctx).WithField("consecutive_severe", consecutiveSevere).Warn("sustained severe memory pressure")
	}

	return nil
}
