package recorder

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/system/entity"
)

type fakeNamer map[entity.TypeID]string

func (f fakeNamer) TypeName(id entity.TypeID) string { return f[id] }

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	namer := fakeNamer{1: "Position"}

	rec := TickRecord{
		Tick:  1,
		TimeS: 0.1,
		Delta: 0.1,
		Structural: []StructuralOp{
			{Kind: OpAdd, Entity: entity.Entity{Index: 1, Generation: 0}, TypeID: 1, Payload: []byte{1, 2, 3, 4}},
		},
		Events: []EventRecord{
			{Channel: "damage", Payload: []byte{9, 9}},
		},
	}
	require.NoError(t, w.WriteTick(rec, namer))
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	got, err := r.ReadTick()
	require.NoError(t, err)
	assert.Equal(t, rec.Tick, got.Tick)
	assert.Equal(t, rec.TimeS, got.TimeS)
	require.Len(t, got.Structural, 1)
	assert.Equal(t, rec.Structural[0].Payload, got.Structural[0].Payload)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "damage", got.Events[0].Channel)
	assert.Equal(t, r.typeNames[1], "Position")

	_, err = r.ReadTick()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHashStateIsOrderIndependent(t *testing.T) {
	a := []ComponentSnapshot{
		{Entity: entity.Entity{Index: 1}, TypeID: 1, Version: 2, Bytes: []byte{1}},
		{Entity: entity.Entity{Index: 2}, TypeID: 1, Version: 1, Bytes: []byte{2}},
	}
	b := []ComponentSnapshot{a[1], a[0]}

	assert.Equal(t, HashState(a), HashState(b))
}

func TestHashStateDiffersOnVersionChange(t *testing.T) {
	a := []ComponentSnapshot{{Entity: entity.Entity{Index: 1}, TypeID: 1, Version: 1, Bytes: []byte{1}}}
	b := []ComponentSnapshot{{Entity: entity.Entity{Index: 1}, TypeID: 1, Version: 2, Bytes: []byte{1}}}
	assert.NotEqual(t, HashState(a), HashState(b))
}
