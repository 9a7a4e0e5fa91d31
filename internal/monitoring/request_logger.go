// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:   Request received from client
//   - LogOutgoing:   Request forwarded to backend provider
//   - LogResponse:   Response sent to client
//   - LogCompletion: Finished pipeline run with usage counters
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// OutgoingRequestInfo contains outgoing request information.
type OutgoingRequestInfo struct {
	RequestID string
	Provider  string
	Model     string
	Dialect   string
	BodySize  int
}

// LogOutgoing logs a request forwarded to a backend.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Str("dialect", info.Dialect).
		Int("body_size", info.BodySize).
		Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// CompletionInfo contains one finished pipeline run.
type CompletionInfo struct {
	RequestID        string
	Provider         string
	Model            string
	Mode             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	StreamError      string
	Latency          time.Duration
}

// LogCompletion logs a finished pipeline run.
func (rl *RequestLogger) LogCompletion(info *CompletionInfo) {
	event := rl.logger.Info().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Str("mode", info.Mode).
		Str("finish_reason", info.FinishReason).
		Int("prompt_tokens", info.PromptTokens).
		Int("completion_tokens", info.CompletionTokens).
		Dur("latency", info.Latency)
	if info.StreamError != "" {
		event = event.Str("stream_error", info.StreamError)
	}
	event.Msg("completion")
}
