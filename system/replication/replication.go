// Package replication implements the Replication Driver (spec §4.11,
// §5): outbound dirty-component gather-and-push, and an inbound
// lock-protected inbox drained at the top of each tick so a background
// transport thread never touches the world directly.
//
// The inbox pattern is grounded on pkg/pgnotify's Bus: a background
// listener goroutine feeds a channel/queue that the owning thread
// drains on its own schedule, rather than the listener mutating shared
// state directly.
package replication

import (
	"sync"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/netmap"
	"github.com/fdpkit/fdp/system/serialize"
	"github.com/fdpkit/fdp/system/store"
)

// MessageKind tags a wire message's payload shape (spec §6 envelope).
type MessageKind uint8

const (
	KindValue   MessageKind = 0
	KindManaged MessageKind = 1
)

// WireMessage is the on-the-wire replication envelope: (kind, netId,
// typeId, payload) (spec §6).
type WireMessage struct {
	Kind    MessageKind
	NetId   entity.NetId
	TypeID  entity.TypeID
	Payload []byte
}

// Transport is the outbound half of the replication boundary. Concrete
// implementations (transport/ws, transport/redisbus) adapt this to a
// real network socket.
type Transport interface {
	Send(msg WireMessage) error
}

// Ownership marks an entity's authoritative owner node. Driver.Outbound
// does not read it: it considers every entity it is given that has a
// registered NetId.
type Ownership struct {
	LocalOwner entity.NodeId
}

// Inbox is a lock-protected queue fed by a background transport
// goroutine and drained by the world thread at tick boundary (spec §5).
type Inbox struct {
	mu   sync.Mutex
	msgs []WireMessage
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox { return &Inbox{} }

// Push enqueues msg. Safe to call from any goroutine.
func (b *Inbox) Push(msg WireMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

// Drain removes and returns every queued message, in arrival order.
// Must only be called from the world thread.
func (b *Inbox) Drain() []WireMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.msgs
	b.msgs = nil
	return out
}

// Driver runs the per-tick outbound/inbound replication pass.
type Driver struct {
	LocalNode entity.NodeId
	Map       *netmap.Map
	Inbox     *Inbox
	Transport Transport
	Log       *logging.Logger

	providers map[entity.TypeID]serialize.Provider
	lastRepl  map[entity.Entity]map[entity.TypeID]uint64
}

// NewDriver constructs a Driver for localNode.
func NewDriver(localNode entity.NodeId, m *netmap.Map, inbox *Inbox, transport Transport, log *logging.Logger) *Driver {
	return &Driver{
		LocalNode: localNode,
		Map:       m,
		Inbox:     inbox,
		Transport: transport,
		Log:       log,
		providers: make(map[entity.TypeID]serialize.Provider),
		lastRepl:  make(map[entity.Entity]map[entity.TypeID]uint64),
	}
}

// RegisterProvider installs the encoder/decoder for a replicated
// component type.
func (d *Driver) RegisterProvider(p serialize.Provider) {
	d.providers[p.TypeID()] = p
}

// VersionFunc returns the current version for (e, typeId), or false if
// e does not carry that component. Supplied by the caller since the
// driver is type-erased over component kinds.
type VersionFunc func(e entity.Entity, typeID entity.TypeID) (uint64, bool)

// ValueFunc returns the current value for (e, typeId) to encode, or
// false if absent.
type ValueFunc func(e entity.Entity, typeID entity.TypeID) (any, bool)

// Outbound iterates entities and, for each one with a registered NetId,
// pushes any component whose version has advanced past lastReplicated
// (spec §4.11). Ownership and LocalNode are not checked; entities
// without a NetId are skipped.
func (d *Driver) Outbound(entities []entity.Entity, versionOf VersionFunc, valueOf ValueFunc, kindOf func(entity.TypeID) MessageKind) error {
	for _, e := range entities {
		netId, ok := d.Map.TryReverseResolve(e)
		if !ok {
			continue // not network-visible yet
		}
		for typeID, p := range d.providers {
			v, ok := versionOf(e, typeID)
			if !ok {
				continue
			}
			if d.lastRepl[e] == nil {
				d.lastRepl[e] = make(map[entity.TypeID]uint64)
			}
			if v <= d.lastRepl[e][typeID] {
				continue
			}
			val, ok := valueOf(e, typeID)
			if !ok {
				continue
			}
			size, err := p.GetSize(val)
			if err != nil {
				d.Log.DiagnosticErr(0, "replication", err)
				continue
			}
			payload := make([]byte, size)
			if _, err := p.Encode(val, payload); err != nil {
				d.Log.DiagnosticErr(0, "replication", err)
				continue
			}
			msg := WireMessage{Kind: kindOf(typeID), NetId: netId, TypeID: typeID, Payload: payload}
			if err := d.Transport.Send(msg); err != nil {
				d.Log.DiagnosticErr(0, "replication", err)
				continue
			}
			d.lastRepl[e][typeID] = v
		}
	}
	return nil
}

// Inbound drains the inbox and queues an Apply for each message on buf,
// resolving entities via the map. An unresolved netId creates a stub
// entity with a diagnostic (spec §4.11) rather than dropping the
// message, so future messages for the same netId resolve consistently.
// Messages are applied in drain (arrival) order, so same-(entity,type)
// updates never reorder (spec §4.11).
func (d *Driver) Inbound(r *store.Repository, buf *cmdbuf.Buffer) {
	msgs := d.Inbox.Drain()
	for _, msg := range msgs {
		e, ok := d.Map.TryResolve(msg.NetId)
		if !ok {
			e = r.CreateEntity()
			if err := d.Map.Register(msg.NetId, e); err != nil {
				d.Log.DiagnosticErr(0, "replication", err)
				continue
			}
			d.Log.Diagnostic(0, "replication", errkind.NotFound, "created stub entity for unregistered netId")
		}
		p, ok := d.providers[msg.TypeID]
		if !ok {
			d.Log.Diagnostic(0, "replication", errkind.SchemaMismatch, "no provider registered for type id")
			continue
		}
		if err := p.Apply(buf, e, msg.Payload); err != nil {
			d.Log.DiagnosticErr(0, "replication", err)
		}
	}
}
