package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/eventbus"
	"github.com/fdpkit/fdp/system/store"
	"github.com/fdpkit/fdp/system/view"
)

type Counter struct{ N int }

type incrementModule struct {
	name string
	pol  Policy
	e    entity.Entity
}

func (m *incrementModule) Name() string   { return m.name }
func (m *incrementModule) Policy() Policy { return m.pol }
func (m *incrementModule) Phase() Phase   { return Simulation }
func (m *incrementModule) Tick(v *view.View, dt float64) error {
	buf, err := v.GetCommandBuffer()
	if err != nil {
		return err
	}
	c, gerr := view.GetComponentRO[Counter](v, m.e)
	if gerr != nil {
		return gerr
	}
	next := Counter{N: c.N + 1}
	view.ReleaseRO[Counter](v, m.e)
	cmdbuf.Set(buf, m.e, next)
	return nil
}

func TestHostRunsEveryTickModuleAndPlaysBack(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Counter](r, entity.KindValue)
	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Counter{N: 0}))

	bus := eventbus.New()
	log := logging.New("test", "error", "text")
	h := New(r, bus, log, 0.1)
	h.Register(&incrementModule{name: "incrementer", pol: Every(), e: e})

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Tick())
	}

	c, err := store.GetComponentRO[Counter](r, e)
	require.NoError(t, err)
	assert.Equal(t, 5, c.N)
	store.ReleaseRO[Counter](r, e)

	tick, timeS := h.Now()
	assert.Equal(t, int64(5), tick)
	assert.InDelta(t, 0.5, timeS, 1e-9)
}

func TestHostSkipsFixedIntervalModuleUntilDue(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Counter](r, entity.KindValue)
	e := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, e, Counter{N: 0}))

	bus := eventbus.New()
	log := logging.New("test", "error", "text")
	h := New(r, bus, log, 0.1)
	h.Register(&incrementModule{name: "every-3", pol: EveryN(3), e: e})

	for i := 0; i < 6; i++ {
		require.NoError(t, h.Tick())
	}

	c, err := store.GetComponentRO[Counter](r, e)
	require.NoError(t, err)
	assert.Equal(t, 2, c.N, "ticks 3 and 6 only")
	store.ReleaseRO[Counter](r, e)
}
