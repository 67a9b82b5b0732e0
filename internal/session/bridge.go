package session

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge links sessions for the same document across server instances
// through a Redis channel per document. Each published frame is tagged with
// the publishing instance so subscribers can discard their own echoes.
type Bridge struct {
	rdb        *redis.Client
	instanceID string
}

func NewBridge(rdb *redis.Client) *Bridge {
	return &Bridge{rdb: rdb, instanceID: uuid.NewString()}
}

type bridgeFrame struct {
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

func channelFor(docID string) string { return "bpmn:doc:" + docID }

// Publish forwards an already-encoded protocol frame to the other instances
// serving docID.
func (b *Bridge) Publish(ctx context.Context, docID string, frame []byte) {
	payload, err := json.Marshal(bridgeFrame{Instance: b.instanceID, Frame: frame})
	if err != nil {
		log.Printf("bridge: marshal frame for %s: %v", docID, err)
		return
	}
	if err := b.rdb.Publish(ctx, channelFor(docID), payload).Err(); err != nil {
		log.Printf("bridge: publish to %s: %v", docID, err)
	}
}

// Subscribe returns a channel of frames published for docID by other
// instances. The returned stop function ends the subscription and closes the
// channel.
func (b *Bridge) Subscribe(ctx context.Context, docID string) (<-chan []byte, func()) {
	pubsub := b.rdb.Subscribe(ctx, channelFor(docID))
	out := make(chan []byte, outboxSize)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var bf bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &bf); err != nil {
				log.Printf("bridge: bad frame on %s: %v", msg.Channel, err)
				continue
			}
			if bf.Instance == b.instanceID {
				continue
			}
			out <- bf.Frame
		}
	}()
	return out, func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("bridge: close subscription for %s: %v", docID, err)
		}
	}
}
