// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:    Warn when request exceeds threshold
//   - FlagSigningFailure: Error when the signature oracle fails
//   - FlagProviderError:  Warn on upstream 4xx/5xx responses
//   - FlagPanic:          Error on recovered panics
package monitoring

import "time"

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, provider string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("provider", provider).
		Msg("high_latency")
}

// FlagSigningFailure logs a signature oracle failure.
func (am *AlertManager) FlagSigningFailure(requestID, provider string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("provider", provider).
		Err(err).
		Msg("signing_failed")
}

// FlagProviderError logs upstream provider error.
func (am *AlertManager) FlagProviderError(requestID, provider string, statusCode int) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("provider", provider).
		Int("status", statusCode).
		Msg("provider_error")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Msg("panic_recovered")
}

// FlagUpstreamTimeout logs upstream timeout.
func (am *AlertManager) FlagUpstreamTimeout(requestID, provider string, timeout time.Duration) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("provider", provider).
		Dur("timeout", timeout).
		Msg("upstream_timeout")
}
