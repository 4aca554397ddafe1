// Package cmdbuf implements the command buffer (spec §4.2): the only
// path by which module code may perform structural or data mutation on
// the Entity Repository. Mutations are recorded as small tagged
// closures during a phase and replayed atomically at the phase
// boundary, so that readers iterating a Query during the same phase
// never observe a torn repository.
//
// This mirrors the teacher's dependency manager (system/core/
// dependency.go), which also separates "record requirements" from "a
// later, single resolution pass" rather than mutating state as
// requirements are discovered.
package cmdbuf

import (
	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/store"
)

// Policy controls how Playback behaves when a recorded op fails.
type Policy int

const (
	// Lenient runs every recorded op regardless of earlier failures,
	// collecting every error into the Result. Use for simulation phases
	// where one module's bad command shouldn't block every other
	// module's.
	Lenient Policy = iota
	// Strict aborts playback at the first failing op. Use for
	// replay/recorder contexts where a command stream is expected to be
	// internally consistent and any failure indicates corruption.
	Strict
)

// op is one recorded, not-yet-applied mutation.
type op struct {
	label string
	apply func(*store.Repository) error
}

// Buffer accumulates ops during a phase for later, atomic application.
// The scheduler hands one Buffer to every module of a phase and plays it
// back at the end of that phase. A Buffer has no internal locking,
// matching the single-threaded world of spec §5.
type Buffer struct {
	ops []op
}

// New returns an empty command buffer.
func New() *Buffer {
	return &Buffer{}
}

// Len reports the number of recorded, unplayed ops.
func (b *Buffer) Len() int { return len(b.ops) }

// Reset discards all recorded ops without applying them.
func (b *Buffer) Reset() { b.ops = b.ops[:0] }

// Spawn records creation of a new entity. The allocated handle is not
// known until playback; out receives it once the op runs.
func Spawn(b *Buffer, out *entity.Entity) {
	b.ops = append(b.ops, op{
		label: "spawn",
		apply: func(r *store.Repository) error {
			*out = r.CreateEntity()
			return nil
		},
	})
}

// Destroy records destruction of e.
func Destroy(b *Buffer, e entity.Entity) {
	b.ops = append(b.ops, op{
		label: "destroy",
		apply: func(r *store.Repository) error {
			return r.DestroyEntity(e)
		},
	})
}

// Add records attaching v to e. Fails at playback time if e is dead or
// already carries T.
func Add[T any](b *Buffer, e entity.Entity, v T) {
	b.ops = append(b.ops, op{
		label: "add",
		apply: func(r *store.Repository) error {
			return store.AddComponent(r, e, v)
		},
	})
}

// Set records attaching-or-replacing v on e.
func Set[T any](b *Buffer, e entity.Entity, v T) {
	b.ops = append(b.ops, op{
		label: "set",
		apply: func(r *store.Repository) error {
			return store.SetComponent(r, e, v)
		},
	})
}

// Remove records detaching T from e.
func Remove[T any](b *Buffer, e entity.Entity) {
	b.ops = append(b.ops, op{
		label: "remove",
		apply: func(r *store.Repository) error {
			return store.RemoveComponent[T](r, e)
		},
	})
}

// Mutate records an arbitrary read-modify-write of e's T, applied with
// an exclusive borrow at playback time. Use when a module wants to
// update a component in place rather than replace it wholesale.
func Mutate[T any](b *Buffer, e entity.Entity, fn func(*T)) {
	b.ops = append(b.ops, op{
		label: "mutate",
		apply: func(r *store.Repository) error {
			v, err := store.GetComponentRW[T](r, e)
			if err != nil {
				return err
			}
			defer store.ReleaseRW[T](r, e)
			fn(v)
			return nil
		},
	})
}

// Result reports the outcome of a Playback.
type Result struct {
	Applied int
	Failed  []FailedOp
}

// FailedOp describes one op that failed during playback.
type FailedOp struct {
	Index int
	Label string
	Err   error
}

// OK reports whether every op applied cleanly.
func (res Result) OK() bool { return len(res.Failed) == 0 }

// Playback applies every recorded op to r in recording order, then
// resets b. Under Lenient, a failing op is skipped and recorded in
// Result.Failed; under Strict, playback stops at the first failure and
// the remaining ops are left unapplied (and are discarded along with
// the ones that did apply, since the buffer is reset unconditionally).
func Playback(b *Buffer, r *store.Repository, policy Policy) Result {
	var res Result
	for i, o := range b.ops {
		if err := o.apply(r); err != nil {
			res.Failed = append(res.Failed, FailedOp{Index: i, Label: o.label, Err: err})
			if policy == Strict {
				break
			}
			continue
		}
		res.Applied++
	}
	b.Reset()
	return res
}

// FirstInvariant returns the first recorded failure whose kind is
// errkind.Invariant, or nil if none. Callers use this to decide whether
// a Lenient playback should still poison the world.
func (res Result) FirstInvariant() error {
	for _, f := range res.Failed {
		if errkind.Is(f.Err, errkind.Invariant) {
			return f.Err
		}
	}
	return nil
}
