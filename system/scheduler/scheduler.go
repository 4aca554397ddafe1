// Package scheduler implements the Module Host (spec §4.5): phase-
// ordered, single-threaded cooperative execution of modules against a
// world's repository, command buffer and event bus.
//
// Grounded on system/core/engine.go's Engine (module registration,
// ordered invocation, per-call telemetry) and lifecycle.go's
// Start/Stop sequencing, generalized from the teacher's domain-capability
// dispatch (AccountEngine, ComputeEngine, ...) to tick-phase dispatch.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/eventbus"
	"github.com/fdpkit/fdp/system/store"
	"github.com/fdpkit/fdp/system/view"
)

// Phase is a named slot within a tick. Order is fixed by spec §4.5.
type Phase string

const (
	Input      Phase = "Input"
	BeforeSync Phase = "BeforeSync"
	Simulation Phase = "Simulation"
	AfterSync  Phase = "AfterSync"
	Output     Phase = "Output"
)

// phaseOrder is the fixed execution order of phases each tick.
var phaseOrder = []Phase{Input, BeforeSync, Simulation, AfterSync, Output}

// alwaysSwaps reports whether a phase always swaps the event bus at its
// boundary, per spec §4.5 step 2c ("BeforeSync and AfterSync always
// swap").
func alwaysSwaps(p Phase) bool {
	return p == BeforeSync || p == AfterSync
}

// PolicyKind classifies how often a module's Tick is due.
type PolicyKind int

const (
	// EveryTick runs on every scheduler tick.
	EveryTick PolicyKind = iota
	// FixedInterval runs once every N ticks.
	FixedInterval
	// SlowBackground runs once every N ticks, intended for low-priority
	// maintenance work; distinguished from FixedInterval only by
	// convention (its N is typically much larger).
	SlowBackground
)

// Policy controls a module's execution rate.
type Policy struct {
	Kind     PolicyKind
	Interval int64 // ticks between runs, for FixedInterval/SlowBackground
}

// Every returns the every-tick policy.
func Every() Policy { return Policy{Kind: EveryTick} }

// EveryN returns a fixed-interval policy firing once every n ticks.
func EveryN(n int64) Policy { return Policy{Kind: FixedInterval, Interval: n} }

// SlowEveryN returns a slow-background policy firing once every n ticks.
func SlowEveryN(n int64) Policy { return Policy{Kind: SlowBackground, Interval: n} }

// Due reports whether a module with this policy should run at tick.
func (p Policy) Due(tick int64) bool {
	switch p.Kind {
	case EveryTick:
		return true
	case FixedInterval, SlowBackground:
		if p.Interval <= 0 {
			return true
		}
		return tick%p.Interval == 0
	default:
		return true
	}
}

// Module is the contract every scheduled unit implements (spec §4.5's
// IModule).
type Module interface {
	Name() string
	Policy() Policy
	Phase() Phase
	Tick(v *view.View, dt float64) error
}

// RequiredComponents is an optional extension: modules that need
// component types auto-registered on first bind implement it.
type RequiredComponents interface {
	GetRequiredComponents(r *store.Repository)
}

// TickStats carries the per-tick telemetry spec §4.5 step 3 requires.
type TickStats struct {
	Tick      int64
	Durations map[string]time.Duration
	Overruns  []string
}

// Observer receives per-tick telemetry.
type Observer interface {
	OnTick(stats TickStats)
}

type registered struct {
	mod   Module
	order int
}

// Host schedules modules into their declared phases and drives ticks.
type Host struct {
	repo     *store.Repository
	bus      *eventbus.Bus
	log      *logging.Logger
	byPhase  map[Phase][]registered
	nextOrd  int
	tick     int64
	timeS    float64
	dt       float64
	poisoned error
	observer Observer
}

// New constructs a Host over repo/bus ticking at fixedDeltaSeconds.
func New(repo *store.Repository, bus *eventbus.Bus, log *logging.Logger, fixedDeltaSeconds float64) *Host {
	return &Host{
		repo:    repo,
		bus:     bus,
		log:     log,
		byPhase: make(map[Phase][]registered),
		dt:      fixedDeltaSeconds,
	}
}

// SetObserver installs the per-tick telemetry observer.
func (h *Host) SetObserver(o Observer) { h.observer = o }

// Register adds m to its declared phase, in registration order. Ties
// within a phase are broken by Name at dispatch time (spec §4.5).
func (h *Host) Register(m Module) {
	if rc, ok := m.(RequiredComponents); ok {
		rc.GetRequiredComponents(h.repo)
	}
	h.byPhase[m.Phase()] = append(h.byPhase[m.Phase()], registered{mod: m, order: h.nextOrd})
	h.nextOrd++
}

// Poisoned reports whether an Invariant error has permanently disabled
// the host (spec §7).
func (h *Host) Poisoned() error { return h.poisoned }

// Tick advances the tick counter and simulated time, then runs every
// phase in order (spec §4.5). It is a no-op returning the poison error
// if the host is already poisoned.
func (h *Host) Tick() error {
	if h.poisoned != nil {
		return h.poisoned
	}
	h.tick++
	h.timeS += h.dt

	stats := TickStats{Tick: h.tick, Durations: make(map[string]time.Duration)}

	for _, phase := range phaseOrder {
		mods := append([]registered(nil), h.byPhase[phase]...)
		sort.SliceStable(mods, func(i, j int) bool {
			if mods[i].order != mods[j].order {
				return mods[i].order < mods[j].order
			}
			return mods[i].mod.Name() < mods[j].mod.Name()
		})

		buf := cmdbuf.New()
		for _, rm := range mods {
			if !rm.mod.Policy().Due(h.tick) {
				continue
			}
			v := view.New(h.repo, h.bus, buf, h.tick, h.timeS)
			start := time.Now()
			err := rm.mod.Tick(v, h.dt)
			stats.Durations[rm.mod.Name()] += time.Since(start)
			if err != nil {
				h.log.DiagnosticErr(h.tick, rm.mod.Name(), err)
				if errkind.Is(err, errkind.Invariant) {
					h.poisoned = err
					return err
				}
			}
		}

		res := cmdbuf.Playback(buf, h.repo, cmdbuf.Lenient)
		for _, f := range res.Failed {
			h.log.Diagnostic(h.tick, string(phase), errkind.KindOf(f.Err), f.Err.Error())
			if inv := res.FirstInvariant(); inv != nil {
				h.poisoned = inv
				return inv
			}
		}

		if alwaysSwaps(phase) {
			h.bus.SwapBuffers()
		}
	}

	h.bus.SwapBuffers() // end-of-tick swap: publications become visible next tick

	if h.observer != nil {
		h.observer.OnTick(stats)
	}
	return nil
}

// Now reports the current tick number and simulated time.
func (h *Host) Now() (tick int64, timeS float64) { return h.tick, h.timeS }

// String renders the host's current schedule for diagnostics.
func (h *Host) String() string {
	return fmt.Sprintf("Host{tick=%d time=%.3f poisoned=%v}", h.tick, h.timeS, h.poisoned != nil)
}
