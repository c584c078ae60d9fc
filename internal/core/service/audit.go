package service

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
)

// AuditRepository persists trap access records. List returns entries in
// ID order, which is also timestamp order.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.TrapAccessLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.TrapAccessLog, error)
}

// AuditSink is the local fallback for entries the repository could not take.
type AuditSink interface {
	Write(entry *domain.TrapAccessLog) error
}

// AuditLogConfig holds configuration for AuditLog.
type AuditLogConfig struct {
	// QueueSize bounds entries waiting for the writer (default: 1024).
	QueueSize int

	// WriteTimeout bounds one repository append (default: 2s).
	WriteTimeout time.Duration

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metric.Registry
}

// AuditLog records trap triggers without ever blocking the request path.
//
// Record stamps each entry with a monotonic ULID and a non-decreasing
// timestamp and enqueues it under the same lock, so queue order, ID order
// and timestamp order agree. A single writer drains the queue into the
// repository. Entries the repository rejects or that find the queue full
// go to the fallback sink, or are dropped when there is none.
type AuditLog struct {
	repo     AuditRepository
	fallback AuditSink
	timeout  time.Duration
	now      func() time.Time
	log      logger.Logger
	metrics  *metric.Registry

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    time.Time
	queue   chan *domain.TrapAccessLog
	closed  bool

	startOnce sync.Once
	done      chan struct{}
	warn      rate.Sometimes
}

// NewAuditLog creates a new AuditLog. Call Start to begin persisting.
func NewAuditLog(repo AuditRepository, fallback AuditSink, cfg *AuditLogConfig) *AuditLog {
	if cfg == nil {
		cfg = &AuditLogConfig{}
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLog{
		repo:     repo,
		fallback: fallback,
		timeout:  timeout,
		now:      now,
		log:      log.With("component", "audit"),
		metrics:  cfg.Metrics,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		queue:    make(chan *domain.TrapAccessLog, size),
		done:     make(chan struct{}),
		warn:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Start launches the writer goroutine. Calling it twice is a no-op.
func (a *AuditLog) Start() {
	a.startOnce.Do(func() {
		go a.run()
	})
}

func (a *AuditLog) run() {
	defer close(a.done)
	for entry := range a.queue {
		a.persist(entry)
	}
}

func (a *AuditLog) persist(entry *domain.TrapAccessLog) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	err := a.repo.Append(ctx, entry)
	if err == nil {
		a.metrics.AuditWrite("store")
		return
	}
	a.degrade(entry, "store failed", err)
}

// degrade hands entry to the fallback sink or drops it.
func (a *AuditLog) degrade(entry *domain.TrapAccessLog, why string, cause error) {
	dest := "dropped"
	if a.fallback != nil {
		if err := a.fallback.Write(entry); err == nil {
			dest = "fallback"
		} else {
			cause = errors.Join(cause, err)
		}
	}
	a.metrics.AuditWrite(dest)
	a.warn.Do(func() {
		a.log.Warn("audit entry degraded",
			"reason", why,
			"destination", dest,
			"entry_id", entry.ID,
			"error", cause)
	})
}

// Record stamps entry and queues it. It returns the stamped copy and never
// returns an error; persistence problems are absorbed here.
func (a *AuditLog) Record(entry domain.TrapAccessLog) *domain.TrapAccessLog {
	e := entry.Clone()

	a.mu.Lock()
	ts := a.now()
	if ts.Before(a.last) {
		ts = a.last
	}
	a.last = ts
	e.Timestamp = ts
	e.ID = a.newID(ts)

	var why string
	if a.closed {
		why = "audit log closed"
	} else {
		select {
		case a.queue <- e:
		default:
			why = "queue full"
		}
	}
	a.mu.Unlock()

	if why != "" {
		a.degrade(e, why, nil)
	}
	return e.Clone()
}

// newID must be called with a.mu held.
func (a *AuditLog) newID(ts time.Time) string {
	id, err := ulid.New(ulid.Timestamp(ts), a.entropy)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

// List returns persisted entries matching filter.
func (a *AuditLog) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.TrapAccessLog, error) {
	entries, err := a.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	return entries, nil
}

// Stats summarizes persisted entries matching filter.
func (a *AuditLog) Stats(ctx context.Context, filter domain.AuditFilter) (*domain.AuditStats, error) {
	filter.Limit = 0
	entries, err := a.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	st := domain.TallyAudit(entries)
	return &st, nil
}

// QueueDepth returns the number of entries waiting for the writer.
func (a *AuditLog) QueueDepth() int {
	return len(a.queue)
}

// Close stops accepting entries and waits for the writer to drain the
// queue or for ctx to end.
func (a *AuditLog) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	a.Start()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
