package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Governance.GlobalDeadline)
	assert.Equal(t, 2*time.Second, cfg.Governance.EvaluatorTimeout)
	assert.Equal(t, 3, cfg.Governance.Breaker.FailureThreshold)
	assert.Empty(t, cfg.Ledger.Path)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9999"
logging:
  level: debug
governance:
  global_deadline: 8s
  evaluator_timeout: 3s
ledger:
  path: /var/lib/arbiter/ledger.jsonl
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8*time.Second, cfg.Governance.GlobalDeadline)
	assert.Equal(t, 3*time.Second, cfg.Governance.EvaluatorTimeout)
	assert.Equal(t, "/var/lib/arbiter/ledger.jsonl", cfg.Ledger.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBITER_LISTEN_ADDR", ":7777")
	t.Setenv("ARBITER_LOG_LEVEL", "warn")
	t.Setenv("ARBITER_LEDGER_PATH", "/tmp/chain.jsonl")
	t.Setenv("ARBITER_GLOBAL_DEADLINE", "12s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/chain.jsonl", cfg.Ledger.Path)
	assert.Equal(t, 12*time.Second, cfg.Governance.GlobalDeadline)
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: verbose\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestEvaluatorTimeoutExceedsDeadline(t *testing.T) {
	path := writeConfig(t, `
governance:
  global_deadline: 1s
  evaluator_timeout: 5s
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds global_deadline")
}

func TestEvaluatorListMustCoverAllRoles(t *testing.T) {
	path := writeConfig(t, `
evaluators:
  - role: narrative-coherence
    threshold: 4.0
    domain_min: 0
    domain_max: 5
`)
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "missing evaluator")
}

func TestEvaluatorListRejectsUnknownRole(t *testing.T) {
	path := writeConfig(t, `
evaluators:
  - role: vibes
    threshold: 1.0
    domain_min: 0
    domain_max: 5
`)
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestEvaluatorListRejectsDuplicateRole(t *testing.T) {
	path := writeConfig(t, `
evaluators:
  - role: fairness
    threshold: 0.9
    domain_min: 0
    domain_max: 1
  - role: fairness
    threshold: 0.8
    domain_min: 0
    domain_max: 1
`)
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "duplicate role")
}

func TestEvaluatorThresholdOutsideDomain(t *testing.T) {
	path := writeConfig(t, `
evaluators:
  - role: fairness
    threshold: 2.0
    domain_min: 0
    domain_max: 1
`)
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "outside metric domain")
}

func TestSpecsDefaultsCanonicalOrder(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	specs := cfg.Specs()
	require.Len(t, specs, 5)
	for i, role := range domain.Roles() {
		assert.Equal(t, role, specs[i].Role)
		assert.Equal(t, 2*time.Second, specs[i].Timeout)
	}
	assert.InDelta(t, 4.0, specs[0].Threshold, 1e-9)
	assert.InDelta(t, 1.5, specs[1].Threshold, 1e-9)
	assert.InDelta(t, 0.95, specs[2].Threshold, 1e-9)
}

func TestSpecsFromConfiguredList(t *testing.T) {
	path := writeConfig(t, `
governance:
  global_deadline: 10s
  evaluator_timeout: 4s
evaluators:
  - role: narrative-coherence
    address: http://coherence:8080
    threshold: 3.5
    domain_min: 0
    domain_max: 5
    timeout: 1s
  - role: truth-safety
    threshold: 1.5
    domain_min: 0
    domain_max: 3
  - role: fairness
    threshold: 0.95
    domain_min: 0
    domain_max: 1
  - role: legal-risk
    domain_min: 0
    domain_max: 1
  - role: transparency
    threshold: 0.5
    domain_min: 0
    domain_max: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	specs := cfg.Specs()
	require.Len(t, specs, 5)
	assert.Equal(t, domain.RoleCoherence, specs[0].Role)
	assert.Equal(t, "http://coherence:8080", specs[0].Address)
	assert.Equal(t, time.Second, specs[0].Timeout)
	// Per-evaluator timeout falls back to the governance default.
	assert.Equal(t, 4*time.Second, specs[1].Timeout)
	assert.Equal(t, "truth-safety", specs[1].Name)
}

func TestWatcherReportsChanges(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	w, err := NewWatcher(path, discardLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))
	// The watcher only logs; give the debounce a moment so Close does not
	// race the pending check.
	time.Sleep(250 * time.Millisecond)
}
