// Package translate implements translators between local and wire
// shapes (spec §4.9): structurally identical types except that every
// entity-typed field on the local shape becomes a NetId on the wire
// shape, resolved through a netmap.Map.
package translate

import (
	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/netmap"
)

// MissingPolicy decides what TryEncode does when an entity field has no
// registered NetId.
type MissingPolicy int

const (
	// DropOnMissing causes TryEncode to fail (return false) when any
	// entity field cannot be resolved.
	DropOnMissing MissingPolicy = iota
	// ProduceNullOnMissing causes TryEncode to substitute NullNetId and
	// still succeed.
	ProduceNullOnMissing
)

// Translator converts between local shape L and wire shape W via
// per-field encode/decode functions supplied by the caller (Go has no
// reflective way to discover "the entity fields" of an arbitrary
// struct, so each Translator is built for one concrete (L, W) pair).
type Translator[L any, W any] struct {
	Map    *netmap.Map
	Log    *logging.Logger
	Policy MissingPolicy

	// EncodeFields copies all of l's non-entity fields into w and
	// returns the entities that must be resolved to NetIds, in the
	// same order NetIds are written back by AssignEncoded.
	EncodeFields func(l L, w *W) []entity.Entity
	// AssignEncoded writes the resolved NetIds (possibly containing
	// NullNetId for unresolved-but-tolerated ones) back into w, in the
	// same order EncodeFields returned them.
	AssignEncoded func(w *W, ids []entity.NetId)

	// DecodeFields copies all of w's non-net-id fields into l and
	// returns the NetIds that must be resolved to entities.
	DecodeFields func(w W, l *L) []entity.NetId
	// AssignDecoded writes the resolved entities (entity.Null where a
	// netId is unknown) back into l, in the same order DecodeFields
	// returned them.
	AssignDecoded func(l *L, es []entity.Entity)
}

// TryEncode converts l to its wire shape, resolving entity fields
// through the map. Under DropOnMissing, any unresolved entity fails the
// whole encode (returns false); under ProduceNullOnMissing, unresolved
// entities become NullNetId and encoding still succeeds.
func (t *Translator[L, W]) TryEncode(l L) (W, bool) {
	var w W
	entities := t.EncodeFields(l, &w)
	ids := make([]entity.NetId, len(entities))
	for i, e := range entities {
		id, ok := t.Map.TryReverseResolve(e)
		if !ok {
			if t.Policy == DropOnMissing {
				if t.Log != nil {
					t.Log.WithModule("translate").Warn("dropping encode: unresolved entity reference")
				}
				return w, false
			}
			id = entity.NullNetId
		}
		ids[i] = id
	}
	t.AssignEncoded(&w, ids)
	return w, true
}

// TryDecode converts w to its local shape, resolving NetId fields
// through the map. Unresolved net ids become entity.Null; TryDecode
// still returns true (spec §4.9: "consumers must tolerate unresolved
// references").
func (t *Translator[L, W]) TryDecode(w W) (L, bool) {
	var l L
	ids := t.DecodeFields(w, &l)
	entities := make([]entity.Entity, len(ids))
	for i, id := range ids {
		if id == entity.NullNetId {
			entities[i] = entity.Null
			continue
		}
		e, ok := t.Map.TryResolve(id)
		if !ok {
			if t.Log != nil {
				t.Log.WithModule("translate").Warn("decode: unresolved netId, substituting null entity")
			}
			entities[i] = entity.Null
			continue
		}
		entities[i] = e
	}
	t.AssignDecoded(&l, entities)
	return l, true
}
