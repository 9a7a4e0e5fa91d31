// Chat completion handler - the POST /v1/chat/completions front door.
//
// FLOW: decode and validate the canonical request, resolve the provider from
// the composite model name, then run either the streaming or the aggregate
// pipeline. Failures before the backend stream opens return clean JSON
// errors; once streaming has begun, failures are reported in-band and the
// response still terminates with the sentinel.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/candor-ai/chat-gateway/internal/backend"
	"github.com/candor-ai/chat-gateway/internal/monitoring"
	"github.com/candor-ai/chat-gateway/internal/protocol"
	"github.com/candor-ai/chat-gateway/internal/sse"
	"github.com/candor-ai/chat-gateway/internal/store"
	"github.com/candor-ai/chat-gateway/internal/stream"
)

// maxRequestBody caps inbound request bodies.
const maxRequestBody = 10 << 20

func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := monitoring.RequestIDFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req protocol.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.alerts.FlagInvalidRequest(requestID, "malformed json")
		g.writeError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if reason, ok := validate(&req); !ok {
		g.alerts.FlagInvalidRequest(requestID, reason)
		g.writeError(w, reason, http.StatusBadRequest)
		return
	}

	providerName, _ := req.SplitModel()
	descriptor, ok := g.registry.Get(providerName)
	if !ok {
		// Misconfiguration, not client fault: the model catalog offered a
		// provider the registry does not carry.
		log.Error().Str("provider", providerName).Msg("model names an unconfigured provider")
		g.writeError(w, "provider not configured: "+providerName, http.StatusInternalServerError)
		return
	}

	g.requestLogger.LogOutgoing(&monitoring.OutgoingRequestInfo{
		RequestID: requestID,
		Provider:  descriptor.Name,
		Model:     req.Model,
		Dialect:   descriptor.Dialect,
		BodySize:  len(body),
	})

	start := time.Now()
	if req.Stream {
		g.serveStream(w, r, &req, descriptor, requestID, start)
	} else {
		g.serveAggregate(w, r, &req, descriptor, requestID, start)
	}
}

// validate enforces the canonical request contract.
func validate(req *protocol.ChatRequest) (string, bool) {
	switch {
	case req.Model == "":
		return "model is required", false
	case len(req.Messages) == 0:
		return "messages must not be empty", false
	case req.LastUserContent() == "":
		return "at least one user message with content is required", false
	}
	provider, name := req.SplitModel()
	if provider == "" || name == "" {
		return "model must be a provider/name identifier", false
	}
	return "", true
}

func (g *Gateway) serveStream(w http.ResponseWriter, r *http.Request, req *protocol.ChatRequest, d *backend.Descriptor, requestID string, start time.Time) {
	sse.PrepareHeaders(w.Header())

	summary, err := g.orchestrator.Stream(r.Context(), req, d, sse.NewWriter(w))
	if err != nil {
		// Nothing was written yet; downgrade to a plain JSON error.
		g.flagPipelineError(requestID, d.Name, err)
		g.writeError(w, err.Error(), statusForError(err))
		return
	}

	g.finishRequest(summary, http.StatusOK, start)
}

func (g *Gateway) serveAggregate(w http.ResponseWriter, r *http.Request, req *protocol.ChatRequest, d *backend.Descriptor, requestID string, start time.Time) {
	resp, summary, err := g.orchestrator.Aggregate(r.Context(), req, d)
	if err != nil {
		g.flagPipelineError(requestID, d.Name, err)
		g.writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("failed to write aggregate response")
	}

	g.finishRequest(summary, http.StatusOK, start)
}

// flagPipelineError raises the matching alert for a pre-stream failure.
func (g *Gateway) flagPipelineError(requestID, provider string, err error) {
	var signErr *backend.SigningError
	if errors.As(err, &signErr) {
		g.alerts.FlagSigningFailure(requestID, provider, err)
		return
	}
	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		g.alerts.FlagProviderError(requestID, provider, httpErr.StatusCode)
		return
	}
	log.Warn().Err(err).Str("provider", provider).Msg("pipeline failed")
}

// finishRequest records metrics, the completion log line and the store row.
func (g *Gateway) finishRequest(s *stream.Summary, status int, start time.Time) {
	latency := time.Since(start)

	g.metrics.RecordCompletion(s.Mode, s.Usage.PromptTokens, s.Usage.CompletionTokens, s.ErrMessage != "")
	g.requestLogger.LogCompletion(&monitoring.CompletionInfo{
		RequestID:        s.RequestID,
		Provider:         s.Provider,
		Model:            s.Model,
		Mode:             s.Mode,
		FinishReason:     s.FinishReason,
		PromptTokens:     s.Usage.PromptTokens,
		CompletionTokens: s.Usage.CompletionTokens,
		StreamError:      s.ErrMessage,
		Latency:          latency,
	})

	if g.requestLog == nil {
		return
	}
	// The client may already be gone; give the insert its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.requestLog.Insert(ctx, &store.Record{
		RequestID:        s.RequestID,
		Provider:         s.Provider,
		Model:            s.Model,
		Mode:             s.Mode,
		StatusCode:       status,
		PromptTokens:     s.Usage.PromptTokens,
		CompletionTokens: s.Usage.CompletionTokens,
		TotalTokens:      s.Usage.TotalTokens,
		DurationMS:       latency.Milliseconds(),
		ErrorMessage:     s.ErrMessage,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to persist request log row")
	}
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"providers": g.registry.Names(),
		"counters":  g.metrics.Stats(),
	})
}
