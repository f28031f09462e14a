// Package events carries term changes over Kafka. Publisher turns every
// successful mutation into a TermEvent; HandleMessage applies TermEvents
// from a topic to a local index, which is how remote ingest and replicas
// are fed.
package events

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/resilience"
)

type Type string

const (
	TermAdded   Type = "term_added"
	TermRemoved Type = "term_removed"
	PageRemoved Type = "page_removed"
	TermRenamed Type = "term_renamed"
)

// TermEvent is the wire form of one change.
type TermEvent struct {
	Type      Type      `json:"type"`
	Name      string    `json:"name"`
	NewName   string    `json:"new_name,omitempty"`
	Pages     []uint32  `json:"pages,omitempty"`
	Page      uint32    `json:"page,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is a service.Notifier backed by a Kafka producer. After
// repeated broker failures it stops trying for a while, so writes to the
// index are not slowed down by an unreachable broker.
type Publisher struct {
	producer *kafka.Producer
	breaker  *resilience.CircuitBreaker
	now      func() time.Time
}

func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		breaker: resilience.NewCircuitBreaker("kafka-"+producer.Topic(), resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Notify publishes c keyed by term name. Bulk loads and clears have no
// per-term form and are not published.
func (p *Publisher) Notify(ctx context.Context, c service.Change) error {
	ev, ok := fromChange(c)
	if !ok {
		return nil
	}
	ev.Timestamp = p.now()
	return p.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return p.producer.Publish(ctx, kafka.Event{Key: ev.Name, Value: ev})
	})
}

func fromChange(c service.Change) (TermEvent, bool) {
	ev := TermEvent{Name: c.Name}
	switch c.Op {
	case service.OpAdd:
		ev.Type = TermAdded
		ev.Pages = c.Pages
	case service.OpRemove:
		ev.Type = TermRemoved
	case service.OpRemovePage:
		ev.Type = PageRemoved
		ev.Page = c.Page
	case service.OpRename:
		ev.Type = TermRenamed
		ev.NewName = c.NewName
	default:
		return TermEvent{}, false
	}
	return ev, true
}

// Check reports the publisher as down while its breaker is open.
func (p *Publisher) Check(context.Context) health.ComponentHealth {
	state := p.breaker.GetState()
	if state == resilience.StateOpen {
		return health.ComponentHealth{Status: health.StatusDown, Message: "circuit " + state.String()}
	}
	return health.ComponentHealth{Status: health.StatusUp, Message: "circuit " + state.String()}
}
