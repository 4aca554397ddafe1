package store

import (
	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

// Query is a fluent, read-only view over entities carrying a set of
// required components and none of a set of excluded ones (spec §4.1).
// Iteration order is always ascending entity index, regardless of which
// store happens to drive the scan, so results are deterministic across
// runs and across repository internals.
type Query struct {
	r        *Repository
	with     []entity.TypeID
	without  []entity.TypeID
	err      error
}

// NewQuery starts a query against r.
func NewQuery(r *Repository) *Query {
	return &Query{r: r}
}

// With requires T to be present. Unregistered T poisons the query with a
// Misuse error surfaced at Each/Entities time.
func With[T any](q *Query) *Query {
	id, ok := TypeIDOf[T](q.r)
	if !ok {
		q.err = notRegistered[T]()
		return q
	}
	q.with = append(q.with, id)
	return q
}

// Without excludes entities carrying T.
func Without[T any](q *Query) *Query {
	id, ok := TypeIDOf[T](q.r)
	if !ok {
		q.err = notRegistered[T]()
		return q
	}
	q.without = append(q.without, id)
	return q
}

func notRegistered[T any]() error {
	return errNotRegistered(typeOfT[T]().String())
}

func errNotRegistered(name string) error {
	return errkind.Misused("query: component type not registered: " + name)
}

// driverStore picks the smallest required store to scan, minimizing the
// number of has()-checks against the other required/excluded stores.
func (q *Query) driverStore() anyStore {
	var best anyStore
	bestLen := -1
	for _, id := range q.with {
		s := q.r.stores[id]
		if bestLen == -1 || s.len() < bestLen {
			best = s
			bestLen = s.len()
		}
	}
	return best
}

// Entities evaluates the query and returns the matching entities in
// ascending index order.
func (q *Query) Entities() ([]entity.Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.with) == 0 {
		return nil, errNotRegistered("Query requires at least one With[T]")
	}
	driver := q.driverStore()
	candidates := driver.entitiesAscending()

	out := make([]entity.Entity, 0, len(candidates))
candidate:
	for _, e := range candidates {
		for _, id := range q.with {
			if !q.r.stores[id].has(e.Index) {
				continue candidate
			}
		}
		for _, id := range q.without {
			if q.r.stores[id].has(e.Index) {
				continue candidate
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Each evaluates the query and invokes fn once per matching entity, in
// ascending index order. Structural mutation of r from within fn is
// forbidden; Each holds the repository's iteration guard for its
// duration so CreateEntity/DestroyEntity panic or error if called
// re-entrantly (spec §4.1).
func (q *Query) Each(fn func(entity.Entity) error) error {
	es, err := q.Entities()
	if err != nil {
		return err
	}
	q.r.iterating++
	defer func() { q.r.iterating-- }()
	for _, e := range es {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Count evaluates the query and returns the number of matching entities.
// It builds the same slice Entities returns and reports its length.
func (q *Query) Count() (int, error) {
	es, err := q.Entities()
	if err != nil {
		return 0, err
	}
	return len(es), nil
}
