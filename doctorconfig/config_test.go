package doctorconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20*time.Second, cfg.MetricsGranularity)
	assert.Equal(t, 20, cfg.MetricsRollingSize)
	assert.Equal(t, int64(10), cfg.HealthThresholdRequest)
}

func TestNewAppliesOptionsInOrder(t *testing.T) {
	cfg, err := New(
		WithMetricsWindow(5*time.Second, 12),
		WithRecoveryTimes(1*time.Second, 30*time.Second),
		WithThresholds(5, 0.2, 0.3, 0.4),
	)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MetricsGranularity)
	assert.Equal(t, 12, cfg.MetricsRollingSize)
	assert.Equal(t, 1*time.Second, cfg.HealthMinRecoveryTime)
	assert.Equal(t, 30*time.Second, cfg.HealthMaxRecoveryTime)
	assert.Equal(t, int64(5), cfg.HealthThresholdRequest)
	assert.Equal(t, 0.2, cfg.HealthThresholdTimeout)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(WithMetricsWindow(0, 12))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := Default()
	cfg.HealthThresholdTimeout = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsNonPositiveMaxRecovery(t *testing.T) {
	cfg := Default()
	cfg.HealthMaxRecoveryTime = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestWithEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DOCTOR_METRICS_GRANULARITY", "5s")
	t.Setenv("DOCTOR_HEALTH_THRESHOLD_REQUEST", "42")

	cfg, err := New(WithEnv())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.MetricsGranularity)
	assert.Equal(t, int64(42), cfg.HealthThresholdRequest)
}

func TestWithEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("DOCTOR_METRICS_GRANULARITY", "not-a-duration")

	cfg, err := New(WithEnv())
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.MetricsGranularity, "an unparsable override must leave the default in place")
}

func TestLoadCopiesOnlyRecognizedKeys(t *testing.T) {
	cfg := Default()
	err := cfg.Load(map[string]interface{}{
		"HEALTH_THRESHOLD_REQUEST": int64(99),
		"SOME_UNKNOWN_KEY":         "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.HealthThresholdRequest)
}

func TestLoadAcceptsMixedNumericTypes(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Load(map[string]interface{}{
		"METRICS_ROLLINGSIZE":     float64(15),
		"HEALTH_THRESHOLD_TIMEOUT": "0.25",
		"HEALTH_MIN_RECOVERY_TIME": 5,
	}))
	assert.Equal(t, 15, cfg.MetricsRollingSize)
	assert.Equal(t, 0.25, cfg.HealthThresholdTimeout)
	assert.Equal(t, 5*time.Second, cfg.HealthMinRecoveryTime)
}

func TestLoadRejectsUnsupportedValueType(t *testing.T) {
	cfg := Default()
	err := cfg.Load(map[string]interface{}{"METRICS_ROLLINGSIZE": []int{1, 2}})
	assert.Error(t, err)
}
