package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// relayChannel is the Redis pub/sub channel shared by all instances.
const relayChannel = "chatrelay:rooms"

// publishBufferSize bounds the outbound frame queue; frames are dropped
// rather than blocking the protocol when Redis falls behind.
const publishBufferSize = 64

// relayFrame is one room broadcast mirrored between instances.
type relayFrame struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

// Relay mirrors room broadcasts between chatrelay instances over Redis
// pub/sub. Nothing is stored: only live traffic crosses instances, and each
// instance keeps its own registry and rosters.
type Relay struct {
	client redis.UniversalClient
	origin string
	hub    *Hub
	out    chan []byte
}

// NewRelay creates a Relay on the given Redis client. Attach it to a hub
// with Hub.SetRelay before calling Run.
func NewRelay(client redis.UniversalClient) *Relay {
	return &Relay{
		client: client,
		origin: uuid.NewString(),
		out:    make(chan []byte, publishBufferSize),
	}
}

// Run subscribes to the relay channel and pumps frames in both directions
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	go r.publishLoop(ctx)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Printf("relay: bad frame: %v", err)
				continue
			}
			if frame.Origin == r.origin {
				continue
			}
			r.hub.deliverLocal(frame.Room, "", frame.Data)
		}
	}
}

// publish queues a room broadcast for mirroring. The protocol never blocks
// on Redis; a full queue drops the frame.
func (r *Relay) publish(room string, data []byte) {
	frame, err := json.Marshal(relayFrame{Origin: r.origin, Room: room, Data: data})
	if err != nil {
		log.Printf("relay: marshal frame: %v", err)
		return
	}
	select {
	case r.out <- frame:
	default:
		log.Printf("relay: publish queue full, dropping frame for room %q", room)
	}
}

// publishLoop drains queued frames to Redis in order.
func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-r.out:
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := r.client.Publish(pubCtx, relayChannel, frame).Err()
			cancel()
			if err != nil {
				log.Printf("relay: publish: %v", err)
			}
		}
	}
}
