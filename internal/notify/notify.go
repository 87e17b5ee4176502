// Package notify delivers run events to chat and message-bus sinks without
// blocking the purchase workflow.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level is the severity of an event
type Level string

const (
	LevelInfo     Level = "info"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Event names emitted by a run
const (
	ProgramStart    = "program_start"
	LoginStart      = "login_start"
	LoginSuccess    = "login_success"
	LoginFailure    = "login_failure"
	BalanceCheck    = "balance_check"
	RechargeStart   = "recharge_start"
	RechargeSuccess = "recharge_success"
	RechargeFailure = "recharge_failure"
	PurchaseStart   = "purchase_start"
	PurchaseSuccess = "purchase_success"
	PurchaseFailure = "purchase_failure"
	RunAborted      = "run_aborted"
	ProgramComplete = "program_complete"
)

// Fields carries event details
type Fields map[string]any

// Event is one notification
type Event struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Level  Level     `json:"level"`
	Fields Fields    `json:"fields,omitempty"`
	Time   time.Time `json:"time"`
}

// SortedKeys returns the field names in stable order
func (e Event) SortedKeys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Notifier accepts events fire-and-forget
type Notifier interface {
	Notify(name string, level Level, fields Fields)
}

// Sink delivers one event somewhere
type Sink interface {
	Send(ctx context.Context, evt Event) error
	Name() string
}

// Nop discards every event
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(string, Level, Fields) {}

// Dispatcher queues events and fans them out to sinks on a background
// goroutine. Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher over sinks
func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, 64),
		timeout: 10 * time.Second,
		logger:  logger.Named("notify"),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Notify implements Notifier. Events are dropped when the queue is full or
// the dispatcher is closed.
func (d *Dispatcher) Notify(name string, level Level, fields Fields) {
	evt := Event{
		ID:     uuid.New().String(),
		Name:   name,
		Level:  level,
		Fields: fields,
		Time:   time.Now(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Debug("dispatcher closed, event dropped", zap.String("event", name))
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("notification queue full, event dropped", zap.String("event", name))
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for evt := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, evt); err != nil {
				d.logger.Warn("notification failed",
					zap.String("sink", s.Name()),
					zap.String("event", evt.Name),
					zap.Error(err))
			}
			cancel()
		}
	}
}

// Close flushes queued events and stops the dispatcher
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
