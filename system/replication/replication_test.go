package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/netmap"
	"github.com/fdpkit/fdp/system/serialize"
	"github.com/fdpkit/fdp/system/store"
)

type Health struct{ HP int32 }

type captureTransport struct {
	sent []WireMessage
}

func (c *captureTransport) Send(msg WireMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestOutboundSkipsUnchangedVersions(t *testing.T) {
	m := netmap.New()
	e := entity.Entity{Index: 1}
	require.NoError(t, m.Register(10, e))

	tr := &captureTransport{}
	log := logging.New("test", "error", "text")
	d := NewDriver(1, m, NewInbox(), tr, log)
	p := serialize.NewFixedProvider[Health](entity.TypeID(1))
	d.RegisterProvider(p)

	version := uint64(1)
	versionOf := func(ent entity.Entity, tid entity.TypeID) (uint64, bool) { return version, true }
	valueOf := func(ent entity.Entity, tid entity.TypeID) (any, bool) { return Health{HP: 50}, true }
	kindOf := func(tid entity.TypeID) MessageKind { return KindValue }

	require.NoError(t, d.Outbound([]entity.Entity{e}, versionOf, valueOf, kindOf))
	require.NoError(t, d.Outbound([]entity.Entity{e}, versionOf, valueOf, kindOf))
	assert.Len(t, tr.sent, 1, "unchanged version must not be re-sent")

	version = 2
	require.NoError(t, d.Outbound([]entity.Entity{e}, versionOf, valueOf, kindOf))
	assert.Len(t, tr.sent, 2)
}

func TestInboundCreatesStubForUnknownNetId(t *testing.T) {
	m := netmap.New()
	log := logging.New("test", "error", "text")
	inbox := NewInbox()
	d := NewDriver(1, m, inbox, &captureTransport{}, log)
	p := serialize.NewFixedProvider[Health](entity.TypeID(1))
	d.RegisterProvider(p)

	payload := make([]byte, 4)
	_, err := p.Encode(Health{HP: 42}, payload)
	require.NoError(t, err)
	inbox.Push(WireMessage{Kind: KindValue, NetId: 99, TypeID: 1, Payload: payload})

	r := store.New()
	store.RegisterComponent[Health](r, entity.KindValue)
	buf := cmdbuf.New()
	d.Inbound(r, buf)

	e, ok := m.TryResolve(99)
	require.True(t, ok, "stub entity must be registered for the unresolved netId")

	require.NoError(t, store.AddComponent(r, e, Health{}))
	buf2 := cmdbuf.New()
	d.Inbound(r, buf2) // no new messages; just ensure idempotent drain

	res := cmdbuf.Playback(buf, r, cmdbuf.Lenient)
	assert.True(t, res.OK())
	h, err := store.GetComponentRO[Health](r, e)
	require.NoError(t, err)
	assert.Equal(t, int32(42), h.HP)
}
