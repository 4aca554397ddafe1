// Package hierarchy maintains the dirty-tracked, topologically sorted
// (children-before-parent) traversal list over entities carrying a Node
// component (spec §4.6). The traversal order is stored as components,
// never pointers (spec §9), and recomputed only when marked dirty.
//
// The topological walk itself is grounded on system/core/dependency.go's
// DependencyManager.ResolveOrder: both are a visited-set traversal over a parent/child relation that must tolerate cycles
// without looping forever, reporting the offending nodes instead of
// panicking.
package hierarchy

import (
	"sort"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
	"github.com/fdpkit/fdp/system/store"
)

// Node is the hierarchy-membership component. Parent == entity.Null
// marks a root.
type Node struct {
	Parent      entity.Entity
	FirstChild  entity.Entity
	NextSibling entity.Entity
}

// SortedData is the singleton exposing the current children-before-
// parent order. Modules needing hierarchy order read this rather than
// walking Node themselves.
type SortedData struct {
	Order []entity.Entity
	Dirty bool
}

// MarkDirty flags the singleton for recomputation on the next Recompute
// call. Structural hierarchy edits (reparent, attach, detach) should
// call this.
func MarkDirty(r *store.Repository) {
	if _, ok := store.TypeIDOf[SortedData](r); !ok {
		store.RegisterComponent[SortedData](r, entity.KindManaged)
	}
	sd, ok := store.GetSingleton[SortedData](r)
	if !ok {
		sd = SortedData{}
	}
	sd.Dirty = true
	store.SetSingleton(r, sd)
}

// CycleDiagnostic describes one cycle encountered and skipped during
// Recompute. Root is entity.Null for an entity that no root reaches.
type CycleDiagnostic struct {
	Root   entity.Entity
	Entity entity.Entity
}

// Recompute rebuilds the singleton's Order by a post-order traversal
// from every root (Parent == Null), in ascending root-entity-index
// order (spec §4.6). It is a no-op if the singleton is not Dirty.
// A child edge leading back to an entity already on the current path is
// not followed and is reported in cycles. Entities that no root reaches
// (such as a cycle with no root above it) are left out of Order and each
// reported in cycles with Root set to entity.Null. All acyclic entries
// reachable from roots still appear.
func Recompute(r *store.Repository) (cycles []CycleDiagnostic, err error) {
	sd, ok := store.GetSingleton[SortedData](r)
	if !ok || !sd.Dirty {
		return nil, nil
	}

	nodeType, ok := store.TypeIDOf[Node](r)
	if !ok {
		sd.Order = nil
		sd.Dirty = false
		store.SetSingleton(r, sd)
		return nil, nil
	}
	_ = nodeType

	q := store.With[Node](store.NewQuery(r))
	all, qerr := q.Entities()
	if qerr != nil {
		return nil, errkind.Invariantf("hierarchy: %v", qerr)
	}

	var roots []entity.Entity
	for _, e := range all {
		n, gerr := store.GetComponentRO[Node](r, e)
		if gerr != nil {
			continue
		}
		isRoot := n.Parent.IsNull()
		store.ReleaseRO[Node](r, e)
		if isRoot {
			roots = append(roots, e)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Index < roots[j].Index })

	order := make([]entity.Entity, 0, len(all))
	visiting := make(map[entity.Entity]bool)
	visited := make(map[entity.Entity]bool)

	// walk performs a post-order traversal, adding e to order after all
	// of its children. On revisiting an entity already on the current
	// path (a cycle), that single offending entity is skipped: its
	// ancestors and unrelated siblings are still traversed normally, so
	// only the cyclic edge is lost rather than the whole subtree's
	// ancestry.
	var walk func(e entity.Entity, root entity.Entity)
	walk = func(e entity.Entity, root entity.Entity) {
		if visiting[e] {
			cycles = append(cycles, CycleDiagnostic{Root: root, Entity: e})
			return
		}
		if visited[e] {
			return
		}
		visiting[e] = true

		n, gerr := store.GetComponentRO[Node](r, e)
		if gerr == nil {
			child := n.FirstChild
			store.ReleaseRO[Node](r, e)
			for !child.IsNull() {
				walk(child, root)
				cn, cerr := store.GetComponentRO[Node](r, child)
				if cerr != nil {
					break
				}
				next := cn.NextSibling
				store.ReleaseRO[Node](r, child)
				child = next
			}
		}

		visiting[e] = false
		visited[e] = true
		order = append(order, e)
	}

	for _, root := range roots {
		walk(root, root)
	}
	for _, e := range all {
		if !visited[e] {
			cycles = append(cycles, CycleDiagnostic{Root: entity.Null, Entity: e})
		}
	}

	sd.Order = order
	sd.Dirty = false
	store.SetSingleton(r, sd)
	return cycles, nil
}
