package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/store"
)

type Position struct {
	X, Y, Z float64
}

type Tag struct {
	Name   string
	Scores []int32
}

func TestFixedProviderRoundTrip(t *testing.T) {
	p := NewFixedProvider[Position](entity.TypeID(1))
	v := Position{X: 1.5, Y: -2.5, Z: 3.0}

	size, err := p.GetSize(v)
	require.NoError(t, err)
	out := make([]byte, size)
	n, err := p.Encode(v, out)
	require.NoError(t, err)
	assert.Equal(t, size, n)

	r := store.New()
	store.RegisterComponent[Position](r, entity.KindValue)
	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Position{}))

	buf := cmdbuf.New()
	require.NoError(t, p.Apply(buf, e, out))
	res := cmdbuf.Playback(buf, r, cmdbuf.Lenient)
	require.True(t, res.OK())

	got, err := store.GetComponentRO[Position](r, e)
	require.NoError(t, err)
	assert.Equal(t, v, *got)
}

func TestFixedProviderTooSmallBuffer(t *testing.T) {
	p := NewFixedProvider[Position](entity.TypeID(1))
	_, err := p.Encode(Position{}, make([]byte, 1))
	assert.Error(t, err)
}

func TestManagedProviderRoundTrip(t *testing.T) {
	p := NewManagedProvider[Tag](entity.TypeID(2))
	v := Tag{Name: "hero", Scores: []int32{1, 2, 3}}

	size, err := p.GetSize(v)
	require.NoError(t, err)
	out := make([]byte, size)
	_, err = p.Encode(v, out)
	require.NoError(t, err)

	r := store.New()
	store.RegisterComponent[Tag](r, entity.KindManaged)
	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Tag{}))

	buf := cmdbuf.New()
	require.NoError(t, p.Apply(buf, e, out))
	res := cmdbuf.Playback(buf, r, cmdbuf.Lenient)
	require.True(t, res.OK())

	got, err := store.GetComponentRO[Tag](r, e)
	require.NoError(t, err)
	assert.Equal(t, v, *got)
}

func TestManagedProviderToleratesMissingTrailingBytes(t *testing.T) {
	p := NewManagedProvider[Tag](entity.TypeID(2))
	v := Tag{Name: "partial"}
	size, err := p.GetSize(v)
	require.NoError(t, err)
	out := make([]byte, size)
	_, err = p.Encode(v, out)
	require.NoError(t, err)

	// Truncate: drop the (empty) Scores length prefix entirely.
	truncated := out[:len(out)-4]

	r := store.New()
	store.RegisterComponent[Tag](r, entity.KindManaged)
	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Tag{}))

	buf := cmdbuf.New()
	require.NoError(t, p.Apply(buf, e, truncated))
	res := cmdbuf.Playback(buf, r, cmdbuf.Lenient)
	require.True(t, res.OK())

	got, err := store.GetComponentRO[Tag](r, e)
	require.NoError(t, err)
	assert.Equal(t, "partial", got.Name)
	assert.Empty(t, got.Scores)
}
