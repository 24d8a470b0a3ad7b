// Package doctorconfig holds the immutable configuration record consumed by
// the metrics and breaker packages. New starts from defaults and applies
// functional options in the order given, later ones overriding earlier
// ones; environment variables are read by the WithEnv option, so their
// priority relative to other options depends on where WithEnv appears.
package doctorconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/doctor-go/doctor/doctorlog"
)

// ErrInvalidConfig is the sentinel wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid doctor configuration")

// Config is the fixed, enumerated set of tunables for the metrics window
// and the health-tester thresholds. Unknown keys passed to Load are
// ignored; only these eight fields are ever read.
type Config struct {
	// MetricsGranularity is the width of one RollingCounter slot.
	MetricsGranularity time.Duration `env:"DOCTOR_METRICS_GRANULARITY" default:"20s"`
	// MetricsRollingSize is the number of slots per RollingCounter.
	MetricsRollingSize int `env:"DOCTOR_METRICS_ROLLINGSIZE" default:"20"`

	// HealthMinRecoveryTime is how long an endpoint must stay LOCKED,
	// once healthy, before the first probe is released.
	HealthMinRecoveryTime time.Duration `env:"DOCTOR_HEALTH_MIN_RECOVERY_TIME" default:"20s"`
	// HealthMaxRecoveryTime is when RECOVER unconditionally unlocks.
	HealthMaxRecoveryTime time.Duration `env:"DOCTOR_HEALTH_MAX_RECOVERY_TIME" default:"120s"`

	// HealthThresholdRequest is the minimum request volume per window
	// before ratio checks apply.
	HealthThresholdRequest int64 `env:"DOCTOR_HEALTH_THRESHOLD_REQUEST" default:"10"`
	// HealthThresholdTimeout is the timeout-ratio ceiling.
	HealthThresholdTimeout float64 `env:"DOCTOR_HEALTH_THRESHOLD_TIMEOUT" default:"0.5"`
	// HealthThresholdSysExc is the system-error-ratio ceiling.
	HealthThresholdSysExc float64 `env:"DOCTOR_HEALTH_THRESHOLD_SYS_EXC" default:"0.5"`
	// HealthThresholdUnknownExc is the unknown-error-ratio ceiling.
	HealthThresholdUnknownExc float64 `env:"DOCTOR_HEALTH_THRESHOLD_UNKWN_EXC" default:"0.5"`

	logger doctorlog.Logger
}

// Option configures a Config during New.
type Option func(*Config) error

// Default returns the configuration record with the defaults from the
// specification's external-interfaces table.
func Default() Config {
	return Config{
		MetricsGranularity:        20 * time.Second,
		MetricsRollingSize:        20,
		HealthMinRecoveryTime:     20 * time.Second,
		HealthMaxRecoveryTime:     120 * time.Second,
		HealthThresholdRequest:    10,
		HealthThresholdTimeout:    0.5,
		HealthThresholdSysExc:     0.5,
		HealthThresholdUnknownExc: 0.5,
		logger:                    doctorlog.NoOp{},
	}
}

// New builds a Config from defaults, then applies opts in order. Use
// WithLogger first if you want construction itself logged.
func New(opts ...Option) (Config, error) {
	cfg := Default()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithLogger attaches a logger used for Load/LoadFromEnv diagnostics.
func WithLogger(logger doctorlog.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			logger = doctorlog.NoOp{}
		}
		c.logger = logger
		return nil
	}
}

// WithMetricsWindow sets the rolling-window shape directly.
func WithMetricsWindow(granularity time.Duration, rollingSize int) Option {
	return func(c *Config) error {
		c.MetricsGranularity = granularity
		c.MetricsRollingSize = rollingSize
		return nil
	}
}

// WithRecoveryTimes sets the LOCKED minimum hold and RECOVER ceiling.
func WithRecoveryTimes(min, max time.Duration) Option {
	return func(c *Config) error {
		c.HealthMinRecoveryTime = min
		c.HealthMaxRecoveryTime = max
		return nil
	}
}

// WithThresholds sets the request-volume gate and the three error ratios.
func WithThresholds(requests int64, timeout, sysExc, unknownExc float64) Option {
	return func(c *Config) error {
		c.HealthThresholdRequest = requests
		c.HealthThresholdTimeout = timeout
		c.HealthThresholdSysExc = sysExc
		c.HealthThresholdUnknownExc = unknownExc
		return nil
	}
}

// WithEnv overlays recognized environment variables onto the config.
func WithEnv() Option {
	return func(c *Config) error {
		return c.loadFromEnv()
	}
}

// loadFromEnv copies recognized DOCTOR_* environment variables, logging
// each successfully parsed override at debug level. Unset or unparsable
// variables are left untouched (a parse failure is logged as a warning,
// not an error — the caller keeps the previous value).
func (c *Config) loadFromEnv() error {
	logger := c.logger
	if logger == nil {
		logger = doctorlog.NoOp{}
	}

	if v := os.Getenv("DOCTOR_METRICS_GRANULARITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MetricsGranularity = d
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "metrics_granularity", "source": "DOCTOR_METRICS_GRANULARITY"})
		} else {
			logger.Warn("invalid duration in environment variable", map[string]interface{}{"DOCTOR_METRICS_GRANULARITY": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_METRICS_ROLLINGSIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MetricsRollingSize = n
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "metrics_rollingsize", "source": "DOCTOR_METRICS_ROLLINGSIZE"})
		} else {
			logger.Warn("invalid integer in environment variable", map[string]interface{}{"DOCTOR_METRICS_ROLLINGSIZE": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_MIN_RECOVERY_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HealthMinRecoveryTime = d
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_min_recovery_time", "source": "DOCTOR_HEALTH_MIN_RECOVERY_TIME"})
		} else {
			logger.Warn("invalid duration in environment variable", map[string]interface{}{"DOCTOR_HEALTH_MIN_RECOVERY_TIME": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_MAX_RECOVERY_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HealthMaxRecoveryTime = d
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_max_recovery_time", "source": "DOCTOR_HEALTH_MAX_RECOVERY_TIME"})
		} else {
			logger.Warn("invalid duration in environment variable", map[string]interface{}{"DOCTOR_HEALTH_MAX_RECOVERY_TIME": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_THRESHOLD_REQUEST"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.HealthThresholdRequest = n
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_threshold_request", "source": "DOCTOR_HEALTH_THRESHOLD_REQUEST"})
		} else {
			logger.Warn("invalid integer in environment variable", map[string]interface{}{"DOCTOR_HEALTH_THRESHOLD_REQUEST": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_THRESHOLD_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HealthThresholdTimeout = f
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_threshold_timeout", "source": "DOCTOR_HEALTH_THRESHOLD_TIMEOUT"})
		} else {
			logger.Warn("invalid float in environment variable", map[string]interface{}{"DOCTOR_HEALTH_THRESHOLD_TIMEOUT": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_THRESHOLD_SYS_EXC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HealthThresholdSysExc = f
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_threshold_sys_exc", "source": "DOCTOR_HEALTH_THRESHOLD_SYS_EXC"})
		} else {
			logger.Warn("invalid float in environment variable", map[string]interface{}{"DOCTOR_HEALTH_THRESHOLD_SYS_EXC": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("DOCTOR_HEALTH_THRESHOLD_UNKWN_EXC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.HealthThresholdUnknownExc = f
			logger.Debug("configuration loaded", map[string]interface{}{"setting": "health_threshold_unkwn_exc", "source": "DOCTOR_HEALTH_THRESHOLD_UNKWN_EXC"})
		} else {
			logger.Warn("invalid float in environment variable", map[string]interface{}{"DOCTOR_HEALTH_THRESHOLD_UNKWN_EXC": v, "error": err.Error()})
		}
	}
	return nil
}

// recognizedKeys is the exact field set Load will copy from an external
// source; everything else is silently ignored.
var recognizedKeys = map[string]bool{
	"METRICS_GRANULARITY":        true,
	"METRICS_ROLLINGSIZE":        true,
	"HEALTH_MIN_RECOVERY_TIME":   true,
	"HEALTH_MAX_RECOVERY_TIME":   true,
	"HEALTH_THRESHOLD_REQUEST":   true,
	"HEALTH_THRESHOLD_TIMEOUT":   true,
	"HEALTH_THRESHOLD_SYS_EXC":   true,
	"HEALTH_THRESHOLD_UNKWN_EXC": true,
}

// Load copies only the recognized keys from an untyped external settings
// object (e.g. decoded YAML/JSON) onto the config. Unrecognized keys are
// ignored rather than treated as an error.
func (c *Config) Load(settings map[string]interface{}) error {
	for k, v := range settings {
		if !recognizedKeys[k] {
			continue
		}
		if err := c.setField(k, v); err != nil {
			return fmt.Errorf("doctorconfig: load %s: %w", k, err)
		}
	}
	return nil
}

func (c *Config) setField(key string, v interface{}) error {
	switch key {
	case "METRICS_GRANULARITY":
		d, err := toDuration(v)
		if err != nil {
			return err
		}
		c.MetricsGranularity = d
	case "METRICS_ROLLINGSIZE":
		n, err := toInt(v)
		if err != nil {
			return err
		}
		c.MetricsRollingSize = n
	case "HEALTH_MIN_RECOVERY_TIME":
		d, err := toDuration(v)
		if err != nil {
			return err
		}
		c.HealthMinRecoveryTime = d
	case "HEALTH_MAX_RECOVERY_TIME":
		d, err := toDuration(v)
		if err != nil {
			return err
		}
		c.HealthMaxRecoveryTime = d
	case "HEALTH_THRESHOLD_REQUEST":
		n, err := toInt(v)
		if err != nil {
			return err
		}
		c.HealthThresholdRequest = int64(n)
	case "HEALTH_THRESHOLD_TIMEOUT":
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		c.HealthThresholdTimeout = f
	case "HEALTH_THRESHOLD_SYS_EXC":
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		c.HealthThresholdSysExc = f
	case "HEALTH_THRESHOLD_UNKWN_EXC":
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		c.HealthThresholdUnknownExc = f
	}
	return nil
}

func toDuration(v interface{}) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case string:
		return time.ParseDuration(t)
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unsupported integer value %v (%T)", v, v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unsupported float value %v (%T)", v, v)
	}
}

// Validate rejects configurations that would make RollingCounter or
// HealthTester construction unsafe (negative window, zero granularity,
// ratios outside [0,1]).
func (c Config) Validate() error {
	if c.MetricsGranularity <= 0 {
		return fmt.Errorf("%w: metrics granularity must be positive, got %v", ErrInvalidConfig, c.MetricsGranularity)
	}
	if c.MetricsRollingSize <= 0 {
		return fmt.Errorf("%w: metrics rolling size must be positive, got %d", ErrInvalidConfig, c.MetricsRollingSize)
	}
	if c.HealthMinRecoveryTime < 0 {
		return fmt.Errorf("%w: min recovery time must be non-negative, got %v", ErrInvalidConfig, c.HealthMinRecoveryTime)
	}
	if c.HealthMaxRecoveryTime <= 0 {
		return fmt.Errorf("%w: max recovery time must be positive, got %v", ErrInvalidConfig, c.HealthMaxRecoveryTime)
	}
	if c.HealthThresholdRequest < 0 {
		return fmt.Errorf("%w: threshold request must be non-negative, got %d", ErrInvalidConfig, c.HealthThresholdRequest)
	}
	for name, ratio := range map[string]float64{
		"timeout":   c.HealthThresholdTimeout,
		"sys_exc":   c.HealthThresholdSysExc,
		"unkwn_exc": c.HealthThresholdUnknownExc,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%w: threshold %s must be in [0,1], got %v", ErrInvalidConfig, name, ratio)
		}
	}
	return nil
}
