// Package redisbus adapts a go-redis/v8 pub/sub channel into a
// replication.Transport — a second concrete transport collaborator
// alongside transport/ws, chosen when replicated peers share a Redis
// deployment rather than dialing each other directly.
package redisbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/replication"
)

type frame struct {
	Kind    uint8  `json:"kind"`
	NetId   int64  `json:"netId"`
	TypeID  uint32 `json:"typeId"`
	Payload []byte `json:"payload"`
}

// Transport publishes replication.WireMessages to a Redis channel and
// can subscribe to drain inbound ones into a replication.Inbox.
type Transport struct {
	client  *redis.Client
	channel string
	ctx     context.Context
}

// New wraps client, publishing/subscribing on channel.
func New(ctx context.Context, client *redis.Client, channel string) *Transport {
	return &Transport{client: client, channel: channel, ctx: ctx}
}

// Send implements replication.Transport.
func (t *Transport) Send(msg replication.WireMessage) error {
	f := frame{Kind: uint8(msg.Kind), NetId: int64(msg.NetId), TypeID: uint32(msg.TypeID), Payload: msg.Payload}
	b, err := json.Marshal(f)
	if err != nil {
		return errkind.Wrap(errkind.Invariant, "redisbus: failed to marshal wire frame", err)
	}
	if err := t.client.Publish(t.ctx, t.channel, b).Err(); err != nil {
		return errkind.Wrap(errkind.Conflict, "redisbus: publish failed", err)
	}
	return nil
}

// Subscribe starts draining inbound messages on t.channel into inbox
// until ctx is canceled. Intended to run in its own goroutine (spec §5:
// the transport runs on a background thread; the driver's Inbox
// absorbs the cross-thread handoff).
func (t *Transport) Subscribe(ctx context.Context, inbox *replication.Inbox) error {
	sub := t.client.Subscribe(ctx, t.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				continue
			}
			inbox.Push(replication.WireMessage{
				Kind:    replication.MessageKind(f.Kind),
				NetId:   entity.NetId(f.NetId),
				TypeID:  entity.TypeID(f.TypeID),
				Payload: f.Payload,
			})
		}
	}
}
