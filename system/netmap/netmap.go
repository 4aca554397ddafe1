// Package netmap implements the Network Entity Map (spec §4.8, §3): a
// bidirectional bijection between stable NetIds and local entity
// handles, with idempotent registration and deterministic iteration.
//
// Grounded on infrastructure/accountpool's bijective address<->account
// mapping pattern (a reverse index kept alongside the forward one,
// updated atomically together) adapted from accounts to entities.
package netmap

import (
	"sort"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

// Map holds the NetId<->Entity bijection for one world.
type Map struct {
	forward map[entity.NetId]entity.Entity
	reverse map[entity.Entity]entity.NetId
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		forward: make(map[entity.NetId]entity.Entity),
		reverse: make(map[entity.Entity]entity.NetId),
	}
}

// Register inserts the (netId, e) pair in both directions. Registering
// an identical pair again is a no-op. Registering netId or e against a
// different counterpart than already stored fails with Conflict. The
// reserved sentinels (NullNetId, entity.Null) are never stored.
func (m *Map) Register(netId entity.NetId, e entity.Entity) error {
	if netId == entity.NullNetId || e.IsNull() {
		return errkind.Misused("netmap: cannot register the null sentinel")
	}
	if existingE, ok := m.forward[netId]; ok {
		if existingE == e {
			return nil
		}
		return errkind.Conflicted("netmap: netId already bound to a different entity")
	}
	if existingNet, ok := m.reverse[e]; ok {
		if existingNet == netId {
			return nil
		}
		return errkind.Conflicted("netmap: entity already bound to a different netId")
	}
	m.forward[netId] = e
	m.reverse[e] = netId
	return nil
}

// Unregister removes netId and its paired entity from both directions.
func (m *Map) Unregister(netId entity.NetId) {
	e, ok := m.forward[netId]
	if !ok {
		return
	}
	delete(m.forward, netId)
	delete(m.reverse, e)
}

// TryResolve returns the entity registered for netId, if any.
func (m *Map) TryResolve(netId entity.NetId) (entity.Entity, bool) {
	e, ok := m.forward[netId]
	return e, ok
}

// TryReverseResolve returns the netId registered for e, if any.
func (m *Map) TryReverseResolve(e entity.Entity) (entity.NetId, bool) {
	netId, ok := m.reverse[e]
	return netId, ok
}

// Len reports the number of registered pairs.
func (m *Map) Len() int { return len(m.forward) }

// NetIds returns every registered NetId in ascending order (spec §4.8:
// "iteration order over the map is deterministic, netId ascending").
func (m *Map) NetIds() []entity.NetId {
	out := make([]entity.NetId, 0, len(m.forward))
	for id := range m.forward {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
