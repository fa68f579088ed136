// Package notify delivers audit entries and security alerts produced by the
// transfer engine. Delivery is asynchronous and best-effort: the engine hands
// events to a Dispatcher and never waits for, or fails because of, a sink.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/acidbank/internal/domain"
)

var hookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_hook_events_total",
	Help: "Audit and alert events by sink result",
}, []string{"kind", "result"})

// Sink persists or forwards notification events.
type Sink interface {
	WriteAuditEntry(ctx context.Context, entry domain.AuditEntry) error
	RaiseSecurityAlert(ctx context.Context, alert domain.SecurityAlert) error
}

type event struct {
	audit *domain.AuditEntry
	alert *domain.SecurityAlert
}

func (e event) kind() string {
	if e.alert != nil {
		return "alert"
	}
	return "audit"
}

// Dispatcher fans events out to sinks from a single background worker.
type Dispatcher struct {
	sinks   []Sink
	events  chan event
	logger  *slog.Logger
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewDispatcher(logger *slog.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		sinks:   sinks,
		events:  make(chan event, buffer),
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Start launches the worker. Call Close to drain and stop it.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("notification dispatcher started", "sinks", len(d.sinks))
		for ev := range d.events {
			d.deliver(ev)
		}
	}()
}

// Audit enqueues an audit entry without blocking.
func (d *Dispatcher) Audit(entry domain.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	d.enqueue(event{audit: &entry})
}

// Alert enqueues a security alert without blocking.
func (d *Dispatcher) Alert(alert domain.SecurityAlert) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	d.enqueue(event{alert: &alert})
}

func (d *Dispatcher) enqueue(ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		hookEvents.WithLabelValues(ev.kind(), "dropped").Inc()
		return
	}
	select {
	case d.events <- ev:
	default:
		hookEvents.WithLabelValues(ev.kind(), "dropped").Inc()
		d.logger.Warn("notification queue full, dropping event", "kind", ev.kind())
	}
}

func (d *Dispatcher) deliver(ev event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		var err error
		if ev.alert != nil {
			err = sink.RaiseSecurityAlert(ctx, *ev.alert)
		} else {
			err = sink.WriteAuditEntry(ctx, *ev.audit)
		}
		cancel()

		if err != nil {
			hookEvents.WithLabelValues(ev.kind(), "error").Inc()
			d.logger.Error("notification sink failed", "kind", ev.kind(), "sink", sinkName(sink), "error", err)
			continue
		}
		hookEvents.WithLabelValues(ev.kind(), "ok").Inc()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
