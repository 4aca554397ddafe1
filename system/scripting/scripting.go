// Package scripting implements a goja-backed scheduler module (spec
// §4.5's Module contract) so simulation logic can be authored in
// JavaScript instead of Go — useful for data-driven gameplay/oracle
// modules that should not require a recompile to change.
//
// Directly grounded on system/tee/script_engine.go's gojaScriptEngine:
// same per-invocation VM creation, the same console.log capture via
// goja.FunctionCall, generalized from one-shot script evaluation to a
// per-tick JavaScript tick(ctx) entry point.
package scripting

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/scheduler"
	"github.com/fdpkit/fdp/system/view"
)

// ScriptedModule adapts a JavaScript source string into a
// scheduler.Module. The script must define a global function
// `tick(ctx)`; ctx carries {tick, dt, time}, and a global console.log
// is wired to the log capture, mirroring script_engine.go's console.log
// shim.
type ScriptedModule struct {
	name   string
	phase  scheduler.Phase
	policy scheduler.Policy
	source string

	logs []string
}

// New compiles source (checked eagerly so a syntax error surfaces at
// registration time, not at the first tick) into a module named name,
// running in phase at the given policy.
func New(name string, phase scheduler.Phase, policy scheduler.Policy, source string) (*ScriptedModule, error) {
	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, errkind.Wrap(errkind.Misuse, "scripting: source does not compile", err)
	}
	return &ScriptedModule{name: name, phase: phase, policy: policy, source: source}, nil
}

func (m *ScriptedModule) Name() string            { return m.name }
func (m *ScriptedModule) Phase() scheduler.Phase  { return m.phase }
func (m *ScriptedModule) Policy() scheduler.Policy { return m.policy }

// Logs returns console.log output captured during the most recent Tick.
func (m *ScriptedModule) Logs() []string { return m.logs }

// Tick runs a fresh VM per invocation (script_engine.go's pattern: no
// state survives across calls unless the module owns a component
// holding it), exposing tick/dt/time on ctx and a console.log binding.
func (m *ScriptedModule) Tick(v *view.View, dt float64) error {
	vm := goja.New()
	m.logs = m.logs[:0]

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		line := ""
		for i, p := range parts {
			if i > 0 {
				line += " "
			}
			line += p
		}
		m.logs = append(m.logs, line)
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return errkind.Wrap(errkind.Invariant, "scripting: failed to bind console.log", err)
	}
	if err := vm.Set("console", console); err != nil {
		return errkind.Wrap(errkind.Invariant, "scripting: failed to bind console", err)
	}

	ctx := vm.NewObject()
	_ = ctx.Set("tick", v.Tick())
	_ = ctx.Set("dt", dt)
	_ = ctx.Set("time", v.Time())

	if _, err := vm.RunString(m.source); err != nil {
		return errkind.Wrap(errkind.Misuse, fmt.Sprintf("scripting: module %s failed to load", m.name), err)
	}

	tickFn, ok := goja.AssertFunction(vm.Get("tick"))
	if !ok {
		return errkind.Misused(fmt.Sprintf("scripting: module %s does not define tick(ctx)", m.name))
	}
	if _, err := tickFn(goja.Undefined(), ctx); err != nil {
		return errkind.Wrap(errkind.Misuse, fmt.Sprintf("scripting: module %s tick() threw", m.name), err)
	}
	return nil
}
