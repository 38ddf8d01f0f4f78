// Package eventbus fans out store.Event notifications across process
// boundaries over Redis pub/sub, grounded on the teacher's go-redis
// client usage in db/dragonflydb.go (redis.NewClient + Ping on connect)
// and queue/redis/queue.go (a Config struct with a URL/prefix pair and
// an explicit NewX(ctx, config) constructor).
//
// store.Subscribe accepts any store.Subscriber; Publisher is one such
// implementation that serializes events onto a Redis channel instead of
// calling application code directly, so a GrpcServerSink process and a
// separate indexing process can observe the same ChunkStore without
// sharing memory.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rerun-go/rerun/rid"
	"github.com/rerun-go/rerun/store"
)

// Config configures the Redis connection and channel name, mirroring
// queue.Config's RedisURL/KeyPrefix shape.
type Config struct {
	RedisURL string // defaults to "redis://localhost:6379/0"
	Channel  string // defaults to "rerun:chunk-events"
}

func DefaultConfig() Config {
	return Config{RedisURL: "redis://localhost:6379/0", Channel: "rerun:chunk-events"}
}

func (c Config) withDefaults() Config {
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379/0"
	}
	if c.Channel == "" {
		c.Channel = "rerun:chunk-events"
	}
	return c
}

func newClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("eventbus: connect to redis: %w", err)
	}
	return client, nil
}

// wireEvent is the JSON projection of one store.Event put on the wire.
// It carries only the chunk's identity and shape, not its column data:
// the full chunk already reaches every process through its own ArrowMsg
// over sink/grpcproxy, so eventbus only needs to tell an indexer that a
// chunk arrived (or was evicted), not replicate its content a second
// time.
type wireEvent struct {
	Kind           string `json:"kind"`
	ChunkId        string `json:"chunk_id"`
	EntityPath     string `json:"entity_path"`
	NumRows        int    `json:"num_rows"`
	ApproxByteSize uint64 `json:"approx_byte_size"`
}

// Event is the decoded form of a wireEvent, delivered to a Subscriber's
// handler.
type Event struct {
	Kind           store.EventKind
	ChunkId        rid.ChunkId
	EntityPath     rid.EntityPath
	NumRows        int
	ApproxByteSize uint64
}

func toWireEvent(e store.Event) wireEvent {
	return wireEvent{
		Kind:           e.Kind.String(),
		ChunkId:        e.Chunk.Id().String(),
		EntityPath:     e.Chunk.EntityPath().String(),
		NumRows:        e.Chunk.NumRows(),
		ApproxByteSize: e.Chunk.ApproxByteSize(),
	}
}

func fromWireEvent(w wireEvent) Event {
	kind := store.EventAdd
	if w.Kind == store.EventDeletion.String() {
		kind = store.EventDeletion
	}
	ev := Event{
		Kind:           kind,
		EntityPath:     rid.NewEntityPath(w.EntityPath),
		NumRows:        w.NumRows,
		ApproxByteSize: w.ApproxByteSize,
	}
	if id, err := uuid.Parse(w.ChunkId); err == nil {
		ev.ChunkId = rid.ChunkId(id)
	}
	return ev
}

// Publisher implements store.Subscriber by publishing every batch of
// events it is given onto a Redis channel, one message per event.
type Publisher struct {
	client  *redis.Client
	channel string
	ctx     context.Context
}

// NewPublisher connects to Redis per cfg and returns a Publisher ready
// to be passed to store.Store.Subscribe.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, channel: cfg.Channel, ctx: ctx}, nil
}

// OnEvents implements store.Subscriber.
func (p *Publisher) OnEvents(events []store.Event) {
	for _, e := range events {
		payload, err := json.Marshal(toWireEvent(e))
		if err != nil {
			continue
		}
		p.client.Publish(p.ctx, p.channel, payload)
	}
}

func (p *Publisher) Close() error { return p.client.Close() }

// Subscriber listens for events published by a Publisher (typically in
// a different process) and delivers them to a local handler.
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
}

// NewSubscriber connects to Redis per cfg and subscribes to cfg.Channel.
func NewSubscriber(ctx context.Context, cfg Config) (*Subscriber, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{client: client, pubsub: client.Subscribe(ctx, cfg.Channel)}, nil
}

// Run blocks, delivering every received Event to handler, until ctx is
// canceled or the subscription's channel closes.
func (s *Subscriber) Run(ctx context.Context, handler func(Event)) error {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var w wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				continue
			}
			handler(fromWireEvent(w))
		}
	}
}

func (s *Subscriber) Close() error {
	s.pubsub.Close()
	return s.client.Close()
}
