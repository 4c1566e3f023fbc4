package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(context.Background(), Event{Type: TypeDocumentIndexed, UserID: "u1", DocumentID: "d1"})

	evt := <-a
	require.Equal(t, TypeDocumentIndexed, evt.Type)
	require.Equal(t, "d1", evt.DocumentID)
	evt = <-b
	require.Equal(t, "u1", evt.UserID)
}

func TestBusDropsOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	full := bus.Subscribe(1)
	open := bus.Subscribe(4)

	bus.Publish(context.Background(), Event{Type: TypeDocumentChunked, DocumentID: "d1"})
	bus.Publish(context.Background(), Event{Type: TypeDocumentIndexed, DocumentID: "d1"})

	// The saturated subscriber keeps only the first event; the publisher
	// never blocked and the healthy subscriber saw both.
	require.Len(t, full, 1)
	require.Len(t, open, 2)

	evt := <-full
	require.Equal(t, TypeDocumentChunked, evt.Type)
}
