// Monitoring configuration - logging and alerting settings.
package config

import "time"

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// HighLatencyThreshold flags slow requests in the log (0 = default 5s).
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
