package cmdbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/store"
)

type Health struct{ HP int }

func TestPlaybackAppliesInOrder(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Health](r, entity.KindValue)

	b := New()
	var e entity.Entity
	Spawn(b, &e)
	Add(b, e, Health{HP: 10})
	Mutate(b, e, func(h *Health) { h.HP -= 3 })

	res := Playback(b, r, Lenient)
	require.True(t, res.OK())
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 0, b.Len())

	h, err := store.GetComponentRO[Health](r, e)
	require.NoError(t, err)
	assert.Equal(t, 7, h.HP)
	store.ReleaseRO[Health](r, e)
}

func TestLenientPlaybackCollectsFailuresAndContinues(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Health](r, entity.KindValue)

	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Health{HP: 5}))

	b := New()
	Add(b, e, Health{HP: 99}) // duplicate, will fail (Conflict)
	var e2 entity.Entity
	Spawn(b, &e2)
	Add(b, e2, Health{HP: 1})

	res := Playback(b, r, Lenient)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 2, res.Applied)
	assert.True(t, r.IsAlive(e2))
}

func TestStrictPlaybackStopsAtFirstFailure(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Health](r, entity.KindValue)

	dead := r.CreateEntity()
	require.NoError(t, r.DestroyEntity(dead))

	b := New()
	Add(b, dead, Health{HP: 1}) // fails: not alive
	var e2 entity.Entity
	Spawn(b, &e2)

	res := Playback(b, r, Strict)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 0, res.Applied)
	assert.True(t, e2.IsNull(), "op after the failure must not have run")
}
