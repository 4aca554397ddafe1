// Per-module policy overrides loaded from YAML, grounded on pkg/config/
// config.go's yaml.v3 struct-tag decoding of service configuration,
// adapted here to a small module-name -> Policy table so deployments
// can retune execution cadence without recompiling.
package scheduler

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fdpkit/fdp/internal/obs/errkind"
)

// PolicyOverride is one YAML entry: a module name and its desired
// execution rate.
type PolicyOverride struct {
	Module   string `yaml:"module"`
	Kind     string `yaml:"kind"`     // "every" | "interval" | "slow"
	Interval int64  `yaml:"interval"` // ticks, for interval/slow
}

// PolicyConfig is the top-level YAML document shape.
type PolicyConfig struct {
	Overrides []PolicyOverride `yaml:"overrides"`
}

// LoadPolicyConfig reads and parses a YAML policy override file.
func LoadPolicyConfig(path string) (*PolicyConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Invariant, "scheduler: failed to read policy config", err)
	}
	var cfg PolicyConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errkind.Wrap(errkind.Invariant, "scheduler: failed to parse policy config", err)
	}
	return &cfg, nil
}

// ToPolicy converts one override entry to a runtime Policy.
func (o PolicyOverride) ToPolicy() (Policy, error) {
	switch o.Kind {
	case "every":
		return Every(), nil
	case "interval":
		return EveryN(o.Interval), nil
	case "slow":
		return SlowEveryN(o.Interval), nil
	default:
		return Policy{}, errkind.Misused("scheduler: unknown policy kind " + o.Kind)
	}
}

// AsMap indexes overrides by module name for O(1) lookup at
// registration time.
func (c *PolicyConfig) AsMap() (map[string]Policy, error) {
	out := make(map[string]Policy, len(c.Overrides))
	for _, o := range c.Overrides {
		p, err := o.ToPolicy()
		if err != nil {
			return nil, err
		}
		out[o.Module] = p
	}
	return out, nil
}
