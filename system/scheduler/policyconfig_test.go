package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	yamlDoc := `
overrides:
  - module: physics
    kind: every
  - module: ai
    kind: interval
    interval: 5
  - module: autosave
    kind: slow
    interval: 600
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadPolicyConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Overrides, 3)

	m, err := cfg.AsMap()
	require.NoError(t, err)
	assert.Equal(t, Every(), m["physics"])
	assert.Equal(t, EveryN(5), m["ai"])
	assert.Equal(t, SlowEveryN(600), m["autosave"])
}

func TestLoadPolicyConfigRejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overrides:\n  - module: x\n    kind: bogus\n"), 0o644))

	cfg, err := LoadPolicyConfig(path)
	require.NoError(t, err)
	_, err = cfg.AsMap()
	assert.Error(t, err)
}
