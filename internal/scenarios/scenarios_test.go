// Package scenarios exercises the concrete end-to-end scenarios from
// the kernel's design document (S1, S2) against the real store/cmdbuf/
// eventbus/view/scheduler stack, as opposed to each package's unit
// tests which exercise one subsystem in isolation.
package scenarios

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/eventbus"
	"github.com/fdpkit/fdp/system/scheduler"
	"github.com/fdpkit/fdp/system/store"
	"github.com/fdpkit/fdp/system/view"
)

type Position struct{ X, Y, Z float64 }
type Velocity struct{ X, Y, Z float64 }
type Health struct{ HP float64 }

// aiModule implements S1: for every entity with Position but no
// Velocity that has not already been picked as a target this tick,
// point it at the nearest other Position-carrying entity at a fixed
// speed.
type aiModule struct {
	speed float64
}

func (m *aiModule) Name() string            { return "ai" }
func (m *aiModule) Policy() scheduler.Policy { return scheduler.Every() }
func (m *aiModule) Phase() scheduler.Phase   { return scheduler.Simulation }
func (m *aiModule) Tick(v *view.View, dt float64) error {
	buf, err := v.GetCommandBuffer()
	if err != nil {
		return err
	}
	withPos, err := store.With[Position](v.Query()).Entities()
	if err != nil {
		return err
	}
	targeted := make(map[entity.Entity]bool)
	for _, a := range withPos {
		if targeted[a] || view.HasComponent[Velocity](v, a) {
			continue
		}
		aPos, err := view.GetComponentRO[Position](v, a)
		if err != nil {
			return err
		}
		var nearest entity.Entity
		nearestDist := math.Inf(1)
		for _, b := range withPos {
			if b == a {
				continue
			}
			bPos, err := view.GetComponentRO[Position](v, b)
			if err != nil {
				continue
			}
			dx, dy, dz := bPos.X-aPos.X, bPos.Y-aPos.Y, bPos.Z-aPos.Z
			d := math.Sqrt(dx*dx + dy*dy + dz*dz)
			view.ReleaseRO[Position](v, b)
			if d < nearestDist {
				nearestDist = d
				nearest = b
			}
		}
		if nearest.IsNull() {
			view.ReleaseRO[Position](v, a)
			continue
		}
		targeted[nearest] = true
		bPos, err := view.GetComponentRO[Position](v, nearest)
		if err != nil {
			view.ReleaseRO[Position](v, a)
			continue
		}
		dx, dy, dz := bPos.X-aPos.X, bPos.Y-aPos.Y, bPos.Z-aPos.Z
		view.ReleaseRO[Position](v, nearest)
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		view.ReleaseRO[Position](v, a)
		if d == 0 {
			continue
		}
		vel := Velocity{X: dx / d * m.speed, Y: dy / d * m.speed, Z: dz / d * m.speed}
		cmdbuf.Add(buf, a, vel)
	}
	return nil
}

func TestS1AIModulePointsTowardNearestEntity(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Position](r, entity.KindValue)
	store.RegisterComponent[Velocity](r, entity.KindValue)

	a := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, a, Position{X: 0, Y: 0, Z: 0}))
	b := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, b, Position{X: 10, Y: 0, Z: 0}))

	bus := eventbus.New()
	log := logging.New("s1", "error", "text")
	host := scheduler.New(r, bus, log, 0.1)
	host.Register(&aiModule{speed: 5})

	require.NoError(t, host.Tick())

	av, err := store.GetComponentRO[Velocity](r, a)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, av.X, 1e-9)
	assert.InDelta(t, 0.0, av.Y, 1e-9)
	store.ReleaseRO[Velocity](r, a)

	assert.False(t, store.HasComponent[Velocity](r, b), "B must gain no velocity: A is its only neighbor target, not the reverse")
}

// damageModule implements S2: a radial detonation event reduces Health
// on entities within its radius, linearly falling off to zero at the
// radius edge. It runs in the Input phase so it reads the events made
// readable before the tick; the BeforeSync swap replaces them before
// the Simulation phase runs.
type DetonationEvent struct {
	OriginX, OriginY, OriginZ float64
	Radius                    float64
	Damage                    float64
}

type damageModule struct{}

func (m *damageModule) Name() string            { return "damage" }
func (m *damageModule) Policy() scheduler.Policy { return scheduler.Every() }
func (m *damageModule) Phase() scheduler.Phase   { return scheduler.Input }
func (m *damageModule) Tick(v *view.View, dt float64) error {
	buf, err := v.GetCommandBuffer()
	if err != nil {
		return err
	}
	events, err := eventbus.Consume[DetonationEvent](v.Bus(), "detonation")
	if err != nil {
		return err
	}
	victims, err := store.With[Health](store.With[Position](v.Query())).Entities()
	if err != nil {
		return err
	}
	for _, ev := range events {
		for _, e := range victims {
			pos, err := view.GetComponentRO[Position](v, e)
			if err != nil {
				continue
			}
			dx, dy, dz := pos.X-ev.OriginX, pos.Y-ev.OriginY, pos.Z-ev.OriginZ
			view.ReleaseRO[Position](v, e)
			d := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if d >= ev.Radius {
				continue
			}
			falloff := 1 - d/ev.Radius
			h, err := view.GetComponentRO[Health](v, e)
			if err != nil {
				continue
			}
			newHP := h.HP - ev.Damage*falloff
			view.ReleaseRO[Health](v, e)
			cmdbuf.Set(buf, e, Health{HP: newHP})
		}
	}
	return nil
}

func TestS2DetonationAppliesFalloffDamage(t *testing.T) {
	r := store.New()
	store.RegisterComponent[Position](r, entity.KindValue)
	store.RegisterComponent[Health](r, entity.KindValue)

	victim := r.CreateEntity()
	require.NoError(t, store.AddComponent(r, victim, Position{X: 10, Y: 0, Z: 0}))
	require.NoError(t, store.AddComponent(r, victim, Health{HP: 100}))

	bus := eventbus.New()
	require.NoError(t, eventbus.Publish(bus, "detonation", DetonationEvent{
		OriginX: 0, OriginY: 0, OriginZ: 0, Radius: 20, Damage: 50,
	}))
	bus.SwapBuffers()

	log := logging.New("s2", "error", "text")
	host := scheduler.New(r, bus, log, 0.1)
	host.Register(&damageModule{})

	require.NoError(t, host.Tick())

	h, err := store.GetComponentRO[Health](r, victim)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, h.HP, 1e-9)
	store.ReleaseRO[Health](r, victim)
}
