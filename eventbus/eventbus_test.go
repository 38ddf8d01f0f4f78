package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rerun-go/rerun/chunk"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunk(t *testing.T) *chunk.Chunk {
	t.Helper()
	c, err := chunk.New(rid.NewChunkId(), rid.NewEntityPath("world/points"), []rid.RowId{rid.NewRowId()}, nil, nil)
	require.NoError(t, err)
	return c
}

func TestPublisherOnEventsDeliversToSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{RedisURL: "redis://" + mr.Addr() + "/0", Channel: "test-events"}

	pub, err := NewPublisher(ctx, cfg)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewSubscriber(ctx, cfg)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan Event, 4)
	go sub.Run(ctx, func(ev Event) { received <- ev })

	time.Sleep(20 * time.Millisecond) // let the subscription register with miniredis

	c := newTestChunk(t)
	pub.OnEvents([]store.Event{{Kind: store.EventAdd, Chunk: c}})

	select {
	case ev := <-received:
		assert.Equal(t, store.EventAdd, ev.Kind)
		assert.Equal(t, "world/points", ev.EntityPath.String()[1:])
		assert.Equal(t, 1, ev.NumRows)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublisherImplementsStoreSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	pub, err := NewPublisher(ctx, Config{RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer pub.Close()

	s := store.New(nil)
	var _ store.Subscriber = pub
	s.Subscribe(pub)

	s.InsertChunk(newTestChunk(t))
}

func TestWireEventRoundTrip(t *testing.T) {
	c := newTestChunk(t)
	w := toWireEvent(store.Event{Kind: store.EventDeletion, Chunk: c})
	assert.Equal(t, "Deletion", w.Kind)

	ev := fromWireEvent(w)
	assert.Equal(t, store.EventDeletion, ev.Kind)
	assert.Equal(t, c.EntityPath().String(), ev.EntityPath.String())
	assert.Equal(t, c.NumRows(), ev.NumRows)
}
