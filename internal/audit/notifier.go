// Package audit delivers best-effort event notices to the operator log channel.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotifyFailure marks a delivery that the sink rejected. It never leaves this package.
var ErrNotifyFailure = errors.New("audit sink unreachable")

// Kind names an audit event; it is rendered as a hashtag.
type Kind string

// Event kinds.
const (
	KindNewUser             Kind = "NewUser"
	KindImageGenerated      Kind = "ImageGenerated"
	KindGenerationFailed    Kind = "GenerationFailed"
	KindReferralClaimed     Kind = "ReferralClaimed"
	KindCreditCodeGenerated Kind = "CreditCodeGenerated"
	KindCodeRedeemed        Kind = "CodeRedeemed"
	KindAdminAdded          Kind = "AdminAdded"
	KindAdminRemoved        Kind = "AdminRemoved"
	KindWhitelistAdded      Kind = "WhitelistAdded"
	KindWhitelistRemoved    Kind = "WhitelistRemoved"
	KindBroadcast           Kind = "Broadcast"
	KindError               Kind = "Error"
)

// Field is one "Key: value" line of an event.
type Field struct {
	Key   string
	Value string
}

// F builds a Field from any printable value.
func F(key string, value any) Field {
	return Field{Key: key, Value: fmt.Sprint(value)}
}

// Event is a single audit notice.
type Event struct {
	Kind   Kind
	Fields []Field
	At     time.Time
}

// Text renders the event as sent to the log channel.
func (e Event) Text() string {
	var b strings.Builder
	b.WriteString("#")
	b.WriteString(string(e.Kind))
	for _, f := range e.Fields {
		b.WriteString("\n")
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Recorder accepts audit events. Implementations must not block the caller.
type Recorder interface {
	Record(kind Kind, fields ...Field)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(kind Kind, fields ...Field)

func (f RecorderFunc) Record(kind Kind, fields ...Field) { f(kind, fields...) }

// Nop discards every event.
var Nop Recorder = RecorderFunc(func(Kind, ...Field) {})

// Sink delivers rendered text to the operator channel.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Deliver(ctx context.Context, text string) error { return f(ctx, text) }

// Notifier queues events and delivers them from a single worker.
// A full queue or a failing sink loses the event; neither reaches the caller.
type Notifier struct {
	sink    Sink
	timeout time.Duration
	queue   chan Event
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Recorder = (*Notifier)(nil)

// NewNotifier creates a notifier. A nil sink only logs events.
func NewNotifier(sink Sink, queueSize int, timeout time.Duration) *Notifier {
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		sink:    sink,
		timeout: timeout,
		queue:   make(chan Event, queueSize),
		now:     time.Now,
	}
}

// Start launches the delivery worker.
func (n *Notifier) Start() {
	n.wg.Add(1)
	go n.run()
}

// Record enqueues an event without waiting for delivery.
func (n *Notifier) Record(kind Kind, fields ...Field) {
	ev := Event{Kind: kind, Fields: fields, At: n.now()}

	log.Info().Str("kind", string(kind)).Int("fields", len(fields)).Msg("Audit event")

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- ev:
	default:
		log.Warn().Str("kind", string(kind)).Msg("Audit queue full, event dropped")
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for ev := range n.queue {
		if err := n.deliver(ev); err != nil {
			log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Audit delivery failed")
		}
	}
}

func (n *Notifier) deliver(ev Event) error {
	if n.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := n.sink.Deliver(ctx, ev.Text()); err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyFailure, err)
	}
	return nil
}
