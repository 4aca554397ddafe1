// Package store implements the Entity Repository (spec §3, §4.1): entity
// allocation with generational handles, typed component storage with
// per-component and global versioning, RO/RW borrow tracking, a fluent
// query builder, and a singleton slot independent of any entity.
//
// Entity-typed component access is exposed as generic free functions
// (RegisterComponent, AddComponent, GetComponentRO, ...) operating on a
// *Repository, since Go methods cannot themselves be generic; this keeps
// the typed call sites (AddComponent[Position](repo, e, v)) compile-time
// checked while the Repository itself stores components behind a
// type-erased anyStore interface (system/store/component_store.go).
package store

import (
	"reflect"
	"sync/atomic"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

type slot struct {
	generation uint32
	alive      bool
}

// Repository is the world's single source of truth for entities and their
// components. It is owned by exactly one world and must only be accessed
// from that world's thread (spec §5); it has no internal locking.
type Repository struct {
	slots    []slot
	freeList []uint32

	typeOf    map[reflect.Type]entity.TypeID
	typeKind  []entity.Kind
	typeNames []string
	stores    []anyStore // indexed by TypeID

	singletons map[entity.TypeID]any

	globalVersion uint64

	// iterating counts live query cursors; >0 forbids structural
	// mutation directly on the repository (spec §4.1).
	iterating int
}

// New creates an empty Repository. Index 0 is reserved for entity.Null
// and is never allocated.
func New() *Repository {
	r := &Repository{
		slots:      []slot{{generation: 0, alive: false}}, // index 0 reserved
		typeOf:     make(map[reflect.Type]entity.TypeID),
		singletons: make(map[entity.TypeID]any),
	}
	return r
}

// GlobalVersion returns the monotonic structural-change counter (spec §3:
// "global version is strictly monotonic").
func (r *Repository) GlobalVersion() uint64 {
	return atomic.LoadUint64(&r.globalVersion)
}

func (r *Repository) bumpGlobalVersion() {
	atomic.AddUint64(&r.globalVersion, 1)
}

// CreateEntity allocates a new entity, recycling the most recently freed
// slot if one exists. Privileged (non-module) callers may call this directly;
// module code must go through the command buffer (spec §4.1, §5).
func (r *Repository) CreateEntity() entity.Entity {
	if r.iterating > 0 {
		panic(errkind.Misused("CreateEntity called while a query is iterating"))
	}
	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.slots[idx].alive = true
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{generation: 0, alive: true})
	}
	r.bumpGlobalVersion()
	return entity.Entity{Index: idx, Generation: r.slots[idx].generation}
}

// DestroyEntity tears down an entity and all of its components, advancing
// the slot's generation so stale handles fail IsAlive forever after.
func (r *Repository) DestroyEntity(e entity.Entity) error {
	if r.iterating > 0 {
		return errkind.Misused("DestroyEntity called while a query is iterating")
	}
	if !r.IsAlive(e) {
		return errkind.NotFoundf("entity %s is not alive", e)
	}
	for _, s := range r.stores {
		if s != nil {
			s.removeEntity(e.Index)
		}
	}
	r.slots[e.Index].alive = false
	r.slots[e.Index].generation++
	r.freeList = append(r.freeList, e.Index)
	r.bumpGlobalVersion()
	return nil
}

// IsAlive reports whether e's generation matches the live slot (spec §3
// invariant).
func (r *Repository) IsAlive(e entity.Entity) bool {
	if e.Index == 0 || int(e.Index) >= len(r.slots) {
		return false
	}
	s := r.slots[e.Index]
	return s.alive && s.generation == e.Generation
}

// LiveEntities returns all currently-alive entities in ascending index
// order. Used by the flight recorder's hashing pass and by diagnostics.
func (r *Repository) LiveEntities() []entity.Entity {
	out := make([]entity.Entity, 0, len(r.slots))
	for idx, s := range r.slots {
		if s.alive {
			out = append(out, entity.Entity{Index: uint32(idx), Generation: s.generation})
		}
	}
	return out
}

// EntityCount returns the number of currently-alive entities.
func (r *Repository) EntityCount() int {
	n := 0
	for _, s := range r.slots {
		if s.alive {
			n++
		}
	}
	return n
}

// Dispose releases repository-owned resources. Component stores are
// cleared, not deallocated mid-run (spec §5); Dispose is for world
// teardown.
func (r *Repository) Dispose() {
	r.stores = nil
	r.slots = nil
	r.freeList = nil
	r.typeOf = make(map[reflect.Type]entity.TypeID)
	r.singletons = make(map[entity.TypeID]any)
}

func typeOfT[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

// RegisterComponent assigns a stable TypeID to T (in registration order)
// and creates its backing store. Registering the same T twice returns the
// existing id.
func RegisterComponent[T any](r *Repository, kind entity.Kind) entity.TypeID {
	rt := typeOfT[T]()
	if id, ok := r.typeOf[rt]; ok {
		return id
	}
	id := entity.TypeID(len(r.stores))
	r.typeOf[rt] = id
	r.typeKind = append(r.typeKind, kind)
	r.typeNames = append(r.typeNames, rt.String())
	r.stores = append(r.stores, newTypedStore[T](id, kind))
	return id
}

// TypeIDOf returns the TypeID for T, if registered.
func TypeIDOf[T any](r *Repository) (entity.TypeID, bool) {
	id, ok := r.typeOf[typeOfT[T]()]
	return id, ok
}

// TypeName returns the registered name for a TypeID, or "" if unknown.
func (r *Repository) TypeName(id entity.TypeID) string {
	if int(id) >= len(r.typeNames) {
		return ""
	}
	return r.typeNames[id]
}

// TypeKind returns the registered Kind for a TypeID.
func (r *Repository) TypeKind(id entity.TypeID) (entity.Kind, bool) {
	if int(id) >= len(r.typeKind) {
		return 0, false
	}
	return r.typeKind[id], true
}

func storeFor[T any](r *Repository) (*typedStore[T], entity.TypeID, error) {
	id, ok := TypeIDOf[T](r)
	if !ok {
		return nil, 0, errkind.Misused("component type not registered: " + typeOfT[T]().String())
	}
	ts, ok := r.stores[id].(*typedStore[T])
	if !ok {
		return nil, id, errkind.Invariantf("store type mismatch for type id %d", id)
	}
	return ts, id, nil
}

// AddComponent attaches v to e. Returns NotFound if e is not alive,
// Misuse if T is unregistered, Conflict if e already carries T.
func AddComponent[T any](r *Repository, e entity.Entity, v T) error {
	if !r.IsAlive(e) {
		return errkind.NotFoundf("AddComponent: entity %s not alive", e)
	}
	ts, _, err := storeFor[T](r)
	if err != nil {
		return err
	}
	if ts.has(e.Index) {
		return errkind.Conflicted("component already present on entity " + e.String())
	}
	ts.add(e, v)
	r.bumpGlobalVersion()
	return nil
}

// SetComponent replaces the value of T on e, attaching it if absent. This
// matches the command buffer's Set semantics (spec §4.2), which are more
// permissive than the repository's raw Add.
func SetComponent[T any](r *Repository, e entity.Entity, v T) error {
	if !r.IsAlive(e) {
		return errkind.NotFoundf("SetComponent: entity %s not alive", e)
	}
	ts, _, err := storeFor[T](r)
	if err != nil {
		return err
	}
	if !ts.has(e.Index) {
		ts.add(e, v)
		r.bumpGlobalVersion()
		return nil
	}
	ts.set(e.Index, v)
	return nil
}

// RemoveComponent detaches T from e. A no-op error (NotFound) is returned
// if it was never present.
func RemoveComponent[T any](r *Repository, e entity.Entity) error {
	ts, _, err := storeFor[T](r)
	if err != nil {
		return err
	}
	if !ts.has(e.Index) {
		return errkind.NotFoundf("component not present on entity %s", e)
	}
	ts.remove(e.Index)
	r.bumpGlobalVersion()
	return nil
}

// HasComponent reports whether e carries T. Unregistered T reports false.
func HasComponent[T any](r *Repository, e entity.Entity) bool {
	ts, _, err := storeFor[T](r)
	if err != nil {
		return false
	}
	return ts.has(e.Index)
}

// GetComponentRO returns a shared, read-only borrow of e's T. Multiple RO
// borrows may be outstanding simultaneously.
func GetComponentRO[T any](r *Repository, e entity.Entity) (*T, error) {
	ts, _, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}
	if err := ts.borrowRO(e.Index); err != nil {
		return nil, err
	}
	v, ok := ts.get(e.Index)
	if !ok {
		ts.releaseRO(e.Index)
		return nil, errkind.NotFoundf("component not present on entity %s", e)
	}
	return v, nil
}

// ReleaseRO releases a borrow acquired by GetComponentRO.
func ReleaseRO[T any](r *Repository, e entity.Entity) {
	if ts, _, err := storeFor[T](r); err == nil {
		ts.releaseRO(e.Index)
	}
}

// GetComponentRW returns an exclusive, mutable borrow of e's T. A second
// concurrent RW or RO borrow of the same (entity, type) fails with Misuse
// (spec §4.1).
func GetComponentRW[T any](r *Repository, e entity.Entity) (*T, error) {
	ts, _, err := storeFor[T](r)
	if err != nil {
		return nil, err
	}
	if err := ts.borrowRW(e.Index); err != nil {
		return nil, err
	}
	v, ok := ts.get(e.Index)
	if !ok {
		ts.releaseRW(e.Index)
		return nil, errkind.NotFoundf("component not present on entity %s", e)
	}
	ts.bumpVersion(e.Index)
	return v, nil
}

// ReleaseRW releases a borrow acquired by GetComponentRW.
func ReleaseRW[T any](r *Repository, e entity.Entity) {
	if ts, _, err := storeFor[T](r); err == nil {
		ts.releaseRW(e.Index)
	}
}

// ComponentVersion returns the per-component version counter for e's T.
func ComponentVersion[T any](r *Repository, e entity.Entity) (uint64, bool) {
	ts, _, err := storeFor[T](r)
	if err != nil {
		return 0, false
	}
	return ts.versionOf(e.Index)
}

// SetSingleton stores v at T's reserved singleton slot, independent of
// any entity.
func SetSingleton[T any](r *Repository, v T) {
	id := RegisterComponent[T](r, entity.KindValue)
	r.singletons[id] = v
}

// GetSingleton returns T's singleton value, if one has been set.
func GetSingleton[T any](r *Repository) (T, bool) {
	var zero T
	id, ok := TypeIDOf[T](r)
	if !ok {
		return zero, false
	}
	v, ok := r.singletons[id]
	if !ok {
		return zero, false
	}
	return v.(T), true
}
