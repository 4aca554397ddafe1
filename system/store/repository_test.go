package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

type Position struct{ X, Y float64 }
type Name struct{ Value string }

func TestCreateDestroyGenerationInvariant(t *testing.T) {
	r := New()
	e := r.CreateEntity()
	require.True(t, r.IsAlive(e))

	require.NoError(t, r.DestroyEntity(e))
	assert.False(t, r.IsAlive(e))

	e2 := r.CreateEntity()
	assert.Equal(t, e.Index, e2.Index, "slot should be recycled")
	assert.NotEqual(t, e.Generation, e2.Generation, "generation must advance on reuse")
	assert.False(t, r.IsAlive(e), "stale handle must never become alive again")
}

func TestGlobalVersionMonotonic(t *testing.T) {
	r := New()
	v0 := r.GlobalVersion()
	e := r.CreateEntity()
	v1 := r.GlobalVersion()
	assert.Greater(t, v1, v0)

	RegisterComponent[Position](r, entity.KindValue)
	require.NoError(t, AddComponent(r, e, Position{1, 2}))
	v2 := r.GlobalVersion()
	assert.Greater(t, v2, v1)

	require.NoError(t, r.DestroyEntity(e))
	v3 := r.GlobalVersion()
	assert.Greater(t, v3, v2)
}

func TestAddComponentRejectsDuplicateAndDeadEntity(t *testing.T) {
	r := New()
	RegisterComponent[Position](r, entity.KindValue)
	e := r.CreateEntity()

	require.NoError(t, AddComponent(r, e, Position{1, 1}))
	err := AddComponent(r, e, Position{2, 2})
	assert.True(t, errkind.Is(err, errkind.Conflict))

	require.NoError(t, r.DestroyEntity(e))
	err = AddComponent(r, e, Position{3, 3})
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestBorrowConflicts(t *testing.T) {
	r := New()
	RegisterComponent[Position](r, entity.KindValue)
	e := r.CreateEntity()
	require.NoError(t, AddComponent(r, e, Position{1, 1}))

	_, err := GetComponentRO[Position](r, e)
	require.NoError(t, err)
	_, err = GetComponentRO[Position](r, e)
	require.NoError(t, err, "multiple RO borrows are allowed")

	_, err = GetComponentRW[Position](r, e)
	assert.True(t, errkind.Is(err, errkind.Misuse), "RW must conflict with outstanding RO")

	ReleaseRO[Position](r, e)
	ReleaseRO[Position](r, e)

	_, err = GetComponentRW[Position](r, e)
	require.NoError(t, err)
	_, err = GetComponentRO[Position](r, e)
	assert.True(t, errkind.Is(err, errkind.Misuse), "RO must conflict with outstanding RW")

	ReleaseRW[Position](r, e)
}

func TestSingleton(t *testing.T) {
	r := New()
	type Clock struct{ Tick int64 }
	_, ok := GetSingleton[Clock](r)
	assert.False(t, ok)

	SetSingleton(r, Clock{Tick: 5})
	v, ok := GetSingleton[Clock](r)
	require.True(t, ok)
	assert.Equal(t, int64(5), v.Tick)
}

func TestQueryDeterministicOrder(t *testing.T) {
	r := New()
	RegisterComponent[Position](r, entity.KindValue)
	RegisterComponent[Name](r, entity.KindManaged)

	var es []entity.Entity
	for i := 0; i < 5; i++ {
		e := r.CreateEntity()
		es = append(es, e)
		require.NoError(t, AddComponent(r, e, Position{float64(i), 0}))
		if i%2 == 0 {
			require.NoError(t, AddComponent(r, e, Name{Value: "x"}))
		}
	}

	q := With[Name](With[Position](NewQuery(r)))
	matched, err := q.Entities()
	require.NoError(t, err)
	require.Len(t, matched, 3)
	for i := 1; i < len(matched); i++ {
		assert.Less(t, matched[i-1].Index, matched[i].Index)
	}
}

func TestQueryWithoutExcludes(t *testing.T) {
	r := New()
	RegisterComponent[Position](r, entity.KindValue)
	RegisterComponent[Name](r, entity.KindManaged)

	e1 := r.CreateEntity()
	require.NoError(t, AddComponent(r, e1, Position{0, 0}))
	e2 := r.CreateEntity()
	require.NoError(t, AddComponent(r, e2, Position{1, 1}))
	require.NoError(t, AddComponent(r, e2, Name{Value: "tagged"}))

	q := Without[Name](With[Position](NewQuery(r)))
	matched, err := q.Entities()
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, e1, matched[0])
}

func TestEachForbidsStructuralMutationReentry(t *testing.T) {
	r := New()
	RegisterComponent[Position](r, entity.KindValue)
	e := r.CreateEntity()
	require.NoError(t, AddComponent(r, e, Position{0, 0}))

	q := With[Position](NewQuery(r))
	assert.Panics(t, func() {
		_ = q.Each(func(entity.Entity) error {
			r.CreateEntity()
			return nil
		})
	})
}
