package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/netmap"
)

type FireEventLocal struct {
	AttackerRoot entity.Entity
	TargetRoot   entity.Entity
	Damage       int
}

type FireEventWire struct {
	AttackerNetId entity.NetId
	TargetNetId   entity.NetId
	Damage        int
}

func fireTranslator(m *netmap.Map) *Translator[FireEventLocal, FireEventWire] {
	return &Translator[FireEventLocal, FireEventWire]{
		Map:    m,
		Policy: ProduceNullOnMissing,
		EncodeFields: func(l FireEventLocal, w *FireEventWire) []entity.Entity {
			w.Damage = l.Damage
			return []entity.Entity{l.AttackerRoot, l.TargetRoot}
		},
		AssignEncoded: func(w *FireEventWire, ids []entity.NetId) {
			w.AttackerNetId, w.TargetNetId = ids[0], ids[1]
		},
		DecodeFields: func(w FireEventWire, l *FireEventLocal) []entity.NetId {
			l.Damage = w.Damage
			return []entity.NetId{w.AttackerNetId, w.TargetNetId}
		},
		AssignDecoded: func(l *FireEventLocal, es []entity.Entity) {
			l.AttackerRoot, l.TargetRoot = es[0], es[1]
		},
	}
}

func TestDecodeUnresolvedNetIdYieldsNullEntity(t *testing.T) {
	m := netmap.New()
	e := entity.Entity{Index: 7, Generation: 1}
	require.NoError(t, m.Register(100, e))

	tr := fireTranslator(m)
	local, ok := tr.TryDecode(FireEventWire{AttackerNetId: 100, TargetNetId: 200, Damage: 10})
	require.True(t, ok)
	assert.Equal(t, e, local.AttackerRoot)
	assert.True(t, local.TargetRoot.IsNull())
}

func TestEncodeRoundTrip(t *testing.T) {
	m := netmap.New()
	a := entity.Entity{Index: 1, Generation: 0}
	b := entity.Entity{Index: 2, Generation: 0}
	require.NoError(t, m.Register(10, a))
	require.NoError(t, m.Register(20, b))

	tr := fireTranslator(m)
	wire, ok := tr.TryEncode(FireEventLocal{AttackerRoot: a, TargetRoot: b, Damage: 5})
	require.True(t, ok)
	assert.Equal(t, entity.NetId(10), wire.AttackerNetId)
	assert.Equal(t, entity.NetId(20), wire.TargetNetId)

	back, ok := tr.TryDecode(wire)
	require.True(t, ok)
	assert.Equal(t, a, back.AttackerRoot)
	assert.Equal(t, b, back.TargetRoot)
}

func TestEncodeDropPolicyFailsOnUnresolved(t *testing.T) {
	m := netmap.New()
	tr := fireTranslator(m)
	tr.Policy = DropOnMissing

	_, ok := tr.TryEncode(FireEventLocal{AttackerRoot: entity.Entity{Index: 9}, Damage: 1})
	assert.False(t, ok)
}
