package store

import (
	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

// anyStore is the type-erased interface the Repository holds per
// registered component type, so that structural operations (entity
// destruction, queries choosing a driver store) can operate without
// knowing T.
type anyStore interface {
	typeID() entity.TypeID
	kind() entity.Kind
	has(idx uint32) bool
	len() int
	removeEntity(idx uint32)
	entitiesAscending() []entity.Entity
}

// typedStore is a dense array indexed by a per-entity slot table (a
// sparse set), exactly as spec §4.1 describes: O(1) add/remove/lookup,
// ascending-index iteration over the dense array's entity column.
type typedStore[T any] struct {
	id   entity.TypeID
	k    entity.Kind
	mode entity.Kind

	sparse map[uint32]int // entity index -> dense index
	dense  []T
	owner  []entity.Entity // dense index -> owning entity
	vers   []uint64        // dense index -> component version

	roBorrow map[uint32]int  // entity index -> outstanding shared borrows
	rwBorrow map[uint32]bool // entity index -> outstanding exclusive borrow
}

func newTypedStore[T any](id entity.TypeID, kind entity.Kind) *typedStore[T] {
	return &typedStore[T]{
		id:       id,
		k:        kind,
		sparse:   make(map[uint32]int),
		roBorrow: make(map[uint32]int),
		rwBorrow: make(map[uint32]bool),
	}
}

func (s *typedStore[T]) typeID() entity.TypeID { return s.id }
func (s *typedStore[T]) kind() entity.Kind     { return s.k }
func (s *typedStore[T]) len() int              { return len(s.dense) }

func (s *typedStore[T]) has(idx uint32) bool {
	_, ok := s.sparse[idx]
	return ok
}

func (s *typedStore[T]) add(e entity.Entity, v T) {
	di := len(s.dense)
	s.dense = append(s.dense, v)
	s.owner = append(s.owner, e)
	s.vers = append(s.vers, 1)
	s.sparse[e.Index] = di
}

func (s *typedStore[T]) set(idx uint32, v T) {
	di, ok := s.sparse[idx]
	if !ok {
		return
	}
	s.dense[di] = v
	s.vers[di]++
}

func (s *typedStore[T]) get(idx uint32) (*T, bool) {
	di, ok := s.sparse[idx]
	if !ok {
		return nil, false
	}
	return &s.dense[di], true
}

func (s *typedStore[T]) versionOf(idx uint32) (uint64, bool) {
	di, ok := s.sparse[idx]
	if !ok {
		return 0, false
	}
	return s.vers[di], true
}

func (s *typedStore[T]) bumpVersion(idx uint32) {
	if di, ok := s.sparse[idx]; ok {
		s.vers[di]++
	}
}

// remove detaches idx's component, swapping the last dense element into
// its place (classic sparse-set removal) to keep the dense array packed.
func (s *typedStore[T]) remove(idx uint32) {
	di, ok := s.sparse[idx]
	if !ok {
		return
	}
	last := len(s.dense) - 1
	if di != last {
		s.dense[di] = s.dense[last]
		s.owner[di] = s.owner[last]
		s.vers[di] = s.vers[last]
		s.sparse[s.owner[di].Index] = di
	}
	s.dense = s.dense[:last]
	s.owner = s.owner[:last]
	s.vers = s.vers[:last]
	delete(s.sparse, idx)
	delete(s.roBorrow, idx)
	delete(s.rwBorrow, idx)
}

func (s *typedStore[T]) removeEntity(idx uint32) {
	s.remove(idx)
}

// entitiesAscending returns the entities carrying this component, sorted
// by index, for deterministic query iteration (spec §4.1 invariant 6).
func (s *typedStore[T]) entitiesAscending() []entity.Entity {
	out := make([]entity.Entity, len(s.owner))
	copy(out, s.owner)
	insertionSortByIndex(out)
	return out
}

func insertionSortByIndex(es []entity.Entity) {
	for i := 1; i < len(es); i++ {
		v := es[i]
		j := i - 1
		for j >= 0 && es[j].Index > v.Index {
			es[j+1] = es[j]
			j--
		}
		es[j+1] = v
	}
}

// borrowRO acquires a shared borrow. Fails if an exclusive borrow is
// outstanding on the same (entity, type) (spec §4.1).
func (s *typedStore[T]) borrowRO(idx uint32) error {
	if s.rwBorrow[idx] {
		return errkind.Misused("RO borrow conflicts with an outstanding RW borrow")
	}
	s.roBorrow[idx]++
	return nil
}

func (s *typedStore[T]) releaseRO(idx uint32) {
	if n := s.roBorrow[idx]; n > 0 {
		if n == 1 {
			delete(s.roBorrow, idx)
		} else {
			s.roBorrow[idx] = n - 1
		}
	}
}

// borrowRW acquires an exclusive borrow. Fails if any RO or RW borrow is
// already outstanding on the same (entity, type).
func (s *typedStore[T]) borrowRW(idx uint32) error {
	if s.rwBorrow[idx] {
		return errkind.Misused("RW borrow conflicts with an outstanding RW borrow")
	}
	if s.roBorrow[idx] > 0 {
		return errkind.Misused("RW borrow conflicts with an outstanding RO borrow")
	}
	s.rwBorrow[idx] = true
	return nil
}

func (s *typedStore[T]) releaseRW(idx uint32) {
	delete(s.rwBorrow, idx)
}
