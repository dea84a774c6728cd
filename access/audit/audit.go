// Package audit implements the audit logger (C9): events enter a
// mutex-guarded in-memory queue, a background worker flushes them grouped by UTC
// date into newline-delimited JSON files, and queries replay those files
// through in-memory filters.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/infrastructure/security"
	"github.com/r3e-network/warehouse-core/infrastructure/supervisor"
)

const (
	// DefaultFlushInterval is how often the background worker flushes the
	// queue absent explicit configuration.
	DefaultFlushInterval = 30 * time.Second
	// DefaultMaxQueueSize forces an immediate flush once reached, so the
	// queue never silently drops events.
	DefaultMaxQueueSize = 10000
)

const dateLayout = "2006-01-02"

// Logger is the audit logger. Events are appended to a mutex-guarded
// in-memory queue and drained by a periodic background flush; a Record
// call that fills the queue to maxQueueSize flushes synchronously on the
// caller's goroutine.
type Logger struct {
	dir           string
	maxQueueSize  int
	flushInterval time.Duration
	logger        *logging.Logger

	mu    sync.Mutex
	queue []domainaccess.AuditEvent
}

// New constructs a Logger writing under dir. A zero flushInterval or
// maxQueueSize falls back to the spec defaults.
func New(dir string, flushInterval time.Duration, maxQueueSize int, logger *logging.Logger) *Logger {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	if logger == nil {
		logger = logging.NewFromEnv("audit")
	}
	return &Logger{
		dir:           dir,
		maxQueueSize:  maxQueueSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Start registers the background flush worker on sup.
func (l *Logger) Start(sup *supervisor.Supervisor) {
	sup.AddTickerWorker(l.flushInterval, l.flushTick, supervisor.WithName("audit-flush"))
}

func (l *Logger) flushTick(ctx context.Context) error {
	return l.Flush(ctx)
}

// Record enqueues an event, forcing an immediate flush if the queue has
// reached maxQueueSize. Metadata is redacted before it ever reaches the
// queue, so a secret passed in by an overly chatty caller never makes it
// into the persisted, append-only audit trail.
func (l *Logger) Record(event domainaccess.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Metadata != nil {
		event.Metadata = security.SanitizeMap(event.Metadata)
	}
	l.mu.Lock()
	l.queue = append(l.queue, event)
	full := len(l.queue) >= l.maxQueueSize
	l.mu.Unlock()

	if full {
		_ = l.Flush(context.Background())
	}
}

// Flush drains the queue, grouping events by UTC date and appending each
// group's newline-delimited JSON to that date's file. Events that could
// not be written are put back at the head of the queue for the next flush.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		l.mu.Lock()
		l.queue = append(pending, l.queue...)
		l.mu.Unlock()
		return errors.WriteFailed("audit_dir", err)
	}

	byDate := make(map[string][]domainaccess.AuditEvent)
	for _, e := range pending {
		date := e.Timestamp.UTC().Format(dateLayout)
		byDate[date] = append(byDate[date], e)
	}

	written := make(map[string]bool, len(byDate))
	for date, events := range byDate {
		if err := l.appendToFile(date, events); err != nil {
			var unwritten []domainaccess.AuditEvent
			for _, e := range pending {
				if !written[e.Timestamp.UTC().Format(dateLayout)] {
					unwritten = append(unwritten, e)
				}
			}
			l.mu.Lock()
			l.queue = append(unwritten, l.queue...)
			l.mu.Unlock()
			l.logger.WithContext(ctx).WithError(err).WithField("date", date).Error("audit flush failed, events re-queued")
			return err
		}
		written[date] = true
	}
	return nil
}

func (l *Logger) pathForDate(date string) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit_%s.jsonl", date))
}

func (l *Logger) appendToFile(date string, events []domainaccess.AuditEvent) error {
	f, err := os.OpenFile(l.pathForDate(date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WriteFailed("audit_file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return errors.WriteFailed("audit_encode", err)
		}
	}
	return w.Flush()
}

// Query is a set of in-memory filters applied to replayed events.
type Query struct {
	From         time.Time
	To           time.Time
	Category     domainaccess.AuditCategory
	Action       string
	ActorID      string
	ResourceType string
	ResourceID   string
	SuccessOnly  bool
	FreeText     string
}

func (q Query) matches(e domainaccess.AuditEvent) bool {
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	if q.Category != "" && e.Category != q.Category {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.ResourceType != "" && e.ResourceType != q.ResourceType {
		return false
	}
	if q.ResourceID != "" && e.ResourceID != q.ResourceID {
		return false
	}
	if q.SuccessOnly && !e.Success {
		return false
	}
	if q.FreeText != "" {
		needle := strings.ToLower(q.FreeText)
		haystack := strings.ToLower(e.ActorName + " " + e.ResourceID)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// Search replays every date file overlapping [from, to] and returns the
// events matching query, skipping malformed lines with a warning rather
// than failing the whole query.
func (l *Logger) Search(ctx context.Context, query Query) ([]domainaccess.AuditEvent, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}

	dates, err := l.datesInRange(query.From, query.To)
	if err != nil {
		return nil, err
	}

	var out []domainaccess.AuditEvent
	for _, date := range dates {
		events, err := l.readFile(ctx, date)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range events {
			if query.matches(e) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (l *Logger) readFile(ctx context.Context, date string) ([]domainaccess.AuditEvent, error) {
	f, err := os.Open(l.pathForDate(date))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domainaccess.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e domainaccess.AuditEvent
		if err := json.Unmarshal(line, &e); err != nil {
			l.logger.WithContext(ctx).WithField("date", date).Warn("audit: skipping malformed line")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Logger) datesInRange(from, to time.Time) ([]string, error) {
	if from.IsZero() && to.IsZero() {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, errors.Internal("audit dir read failed", err)
		}
		var dates []string
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, "audit_") && strings.HasSuffix(name, ".jsonl") {
				dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, "audit_"), ".jsonl"))
			}
		}
		return dates, nil
	}
	if from.IsZero() {
		from = to
	}
	if to.IsZero() {
		to = time.Now()
	}
	var dates []string
	for d := from.UTC(); !d.After(to.UTC()); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

// Statistics aggregates event counts over [from, to].
type Statistics struct {
	Total        int
	SuccessCount int
	FailureCount int
	ByCategory   map[domainaccess.AuditCategory]int
}

// Statistics computes an aggregate count breakdown for a time range.
func (l *Logger) Statistics(ctx context.Context, from, to time.Time) (Statistics, error) {
	events, err := l.Search(ctx, Query{From: from, To: to})
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{ByCategory: make(map[domainaccess.AuditCategory]int)}
	for _, e := range events {
		stats.Total++
		if e.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		stats.ByCategory[e.Category]++
	}
	return stats, nil
}
