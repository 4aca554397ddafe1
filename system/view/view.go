// Package view implements the Simulation View (spec §4.4): the
// capability-restricted façade modules receive each tick. It exposes
// read access and query building directly against the repository, routes
// structural mutation through a command buffer, and refuses to hand one
// out at all for read-only views. GetComponentRW is the one direct write
// path.
package view

import (
	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/eventbus"
	"github.com/fdpkit/fdp/system/store"
)

// View is handed to a module's Tick method. It is a thin façade: all
// state lives in the repository, bus and buffer it wraps, so Views are
// cheap to construct per module per tick.
type View struct {
	repo   *store.Repository
	bus    *eventbus.Bus
	buf    *cmdbuf.Buffer // nil for a read-only view
	tick   int64
	timeS  float64
}

// New constructs a mutable view over repo/bus, backed by buf for
// deferred mutation.
func New(repo *store.Repository, bus *eventbus.Bus, buf *cmdbuf.Buffer, tick int64, timeS float64) *View {
	return &View{repo: repo, bus: bus, buf: buf, tick: tick, timeS: timeS}
}

// ReadOnly constructs a view with no command buffer; GetCommandBuffer
// on it always fails with Misuse (spec §4.4).
func ReadOnly(repo *store.Repository, bus *eventbus.Bus, tick int64, timeS float64) *View {
	return &View{repo: repo, bus: bus, tick: tick, timeS: timeS}
}

// Tick returns the current tick number.
func (v *View) Tick() int64 { return v.tick }

// Time returns simulated seconds elapsed.
func (v *View) Time() float64 { return v.timeS }

// Bus returns the scoped event bus handle.
func (v *View) Bus() *eventbus.Bus { return v.bus }

// IsAlive reports whether e is alive in the underlying repository.
func (v *View) IsAlive(e entity.Entity) bool { return v.repo.IsAlive(e) }

// HasComponent reports whether e carries T.
func HasComponent[T any](v *View, e entity.Entity) bool {
	return store.HasComponent[T](v.repo, e)
}

// GetComponentRO returns a shared, read-only borrow of e's T.
func GetComponentRO[T any](v *View, e entity.Entity) (*T, error) {
	return store.GetComponentRO[T](v.repo, e)
}

// ReleaseRO releases a borrow obtained through GetComponentRO.
func ReleaseRO[T any](v *View, e entity.Entity) {
	store.ReleaseRO[T](v.repo, e)
}

// GetComponentRW returns an exclusive, mutable borrow of e's T. Modules
// that declare themselves read-only must not call this; nothing in the
// view or in the scheduler prevents it, and a read-only view allows it
// too.
func GetComponentRW[T any](v *View, e entity.Entity) (*T, error) {
	return store.GetComponentRW[T](v.repo, e)
}

// ReleaseRW releases a borrow obtained through GetComponentRW.
func ReleaseRW[T any](v *View, e entity.Entity) {
	store.ReleaseRW[T](v.repo, e)
}

// GetSingleton returns T's singleton value, if set.
func GetSingleton[T any](v *View) (T, bool) {
	return store.GetSingleton[T](v.repo)
}

// Query starts a fluent query against the underlying repository.
func (v *View) Query() *store.Query {
	return store.NewQuery(v.repo)
}

// GetCommandBuffer returns the view's command buffer for deferred
// mutation. Fails with Misuse if the view was constructed read-only.
func (v *View) GetCommandBuffer() (*cmdbuf.Buffer, error) {
	if v.buf == nil {
		return nil, errkind.Misused("GetCommandBuffer: view is read-only")
	}
	return v.buf, nil
}
