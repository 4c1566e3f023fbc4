package event

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Outbound notification types. Consumers are external; acks are never
// awaited.
const (
	TypeDocumentChunked = "document.chunked"
	TypeDocumentIndexed = "document.indexed"
	TypeDocumentFailed  = "document.failed"
	TypePlanUpdated     = "plan.updated"
)

type Event struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
	PlanID     string `json:"plan_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Time       int64  `json:"time"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Bus is a fire-and-forget in-process fanout. A slow subscriber loses
// events rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			logutil.GetLogger(ctx).Warn("event dropped, subscriber backlog full",
				zap.String("type", evt.Type), zap.String("user_id", evt.UserID))
		}
	}
}

// NopPublisher is used where notifications are not wired up, tests mostly.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, evt Event) {}
