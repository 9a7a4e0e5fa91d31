// Stream orchestrator - wires builder, parser, normalizer and emitter into
// the two request pipelines.
//
// FLOW: connect builds and fires the backend call (always streaming) and
// verifies the status before anything reaches the client. Stream forwards
// chunks as events normalize; Aggregate drains the same pipeline silently and
// emits one object. Pre-stream failures surface as typed errors; mid-stream
// failures flush buffered state, emit the error and finish chunks, and still
// end with the sentinel. The client connection is never left half-open.
package stream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/candor-ai/chat-gateway/internal/backend"
	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/protocol"
	"github.com/candor-ai/chat-gateway/internal/sse"
)

// Read at most this much of an error response body for diagnostics.
const maxErrorBody = 2048

// TokenEstimator counts prompt and completion tokens when a backend reports
// no usage of its own.
type TokenEstimator interface {
	CountMessages(model string, messages []protocol.Message) int
	CountText(model, text string) int
}

// Summary describes one completed pipeline run, for logging and the request
// store.
type Summary struct {
	RequestID    string
	Provider     string
	Model        string
	Mode         string
	FinishReason string
	Usage        protocol.Usage
	ThreadID     string
	ErrMessage   string
}

// Orchestrator runs request pipelines. Safe for concurrent use; all
// per-request state lives in the pipeline, not here.
type Orchestrator struct {
	builder   *backend.Builder
	client    *http.Client
	clock     Clock
	estimator TokenEstimator
}

// NewOrchestrator wires an orchestrator. client may be nil for the default;
// estimator may be nil to skip usage estimation.
func NewOrchestrator(builder *backend.Builder, client *http.Client, clock Clock, estimator TokenEstimator) *Orchestrator {
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Orchestrator{
		builder:   builder,
		client:    client,
		clock:     clock,
		estimator: estimator,
	}
}

// connect builds the envelope, fires the backend call and verifies the
// status. The returned cancel func must be called when the stream is done.
func (o *Orchestrator) connect(ctx context.Context, req *protocol.ChatRequest, d *backend.Descriptor) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if d.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
	}

	env, err := o.builder.Build(ctx, req, d)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	httpReq, err := o.builder.HTTPRequest(ctx, d, env)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, &backend.TransportError{Provider: d.Name, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, nil, &backend.HTTPError{Provider: d.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, cancel, nil
}

// Stream runs the incremental pipeline, writing canonical frames to w.
// Errors returned happened before any client-visible output; once streaming
// begins all failures are reported in-band and the sentinel is still written.
func (o *Orchestrator) Stream(ctx context.Context, req *protocol.ChatRequest, d *backend.Descriptor, w *sse.Writer) (*Summary, error) {
	resp, cancel, err := o.connect(ctx, req, d)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	normalizer := NewNormalizer(o.clock)
	emitter := NewEmitter(req.Model, o.clock)

	if err := w.WriteEvent(emitter.RoleChunk()); err != nil {
		return nil, clientGone(d.Name, err)
	}

	writeErr := o.drain(ctx, resp.Body, d, normalizer, func(u Update) error {
		return w.WriteEvent(emitter.Chunk(u))
	})

	for _, u := range normalizer.Close() {
		if writeErr != nil {
			break
		}
		writeErr = w.WriteEvent(emitter.Chunk(u))
	}

	acc := normalizer.Accumulator()
	if writeErr == nil {
		writeErr = w.WriteEvent(emitter.FinishChunk(finishReason(acc)))
	}
	if writeErr == nil {
		writeErr = w.WriteDone()
	}
	if writeErr != nil {
		log.Debug().Err(writeErr).Str("provider", d.Name).Msg("client write failed mid-stream")
	}

	return o.summary(req, d, emitter, acc, "stream"), nil
}

// Aggregate runs the draining pipeline and returns one response object.
func (o *Orchestrator) Aggregate(ctx context.Context, req *protocol.ChatRequest, d *backend.Descriptor) (*protocol.ChatCompletionResponse, *Summary, error) {
	resp, cancel, err := o.connect(ctx, req, d)
	if err != nil {
		return nil, nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	normalizer := NewNormalizer(o.clock)
	emitter := NewEmitter(req.Model, o.clock)

	if err := o.drain(ctx, resp.Body, d, normalizer, nil); err != nil {
		return nil, nil, err
	}
	normalizer.Close()

	acc := normalizer.Accumulator()
	summary := o.summary(req, d, emitter, acc, "aggregate")
	return emitter.Aggregate(acc, summary.Usage), summary, nil
}

// drain reads backend events until the stream is terminal or exhausted,
// feeding each normalizer update to emit (nil in aggregate mode). Parser
// failures mid-stream are logged and end the drain; they never abort the
// flush/finish sequence already streaming to the client.
func (o *Orchestrator) drain(ctx context.Context, body io.Reader, d *backend.Descriptor, n *Normalizer, emit func(Update) error) error {
	decoder := sse.NewDecoder(body)
	for {
		ev, err := decoder.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Err(err).Str("provider", d.Name).Msg("backend stream ended abnormally")
			}
			return nil
		}

		var updates []Update
		var terminal bool
		switch d.Dialect {
		case config.DialectOpenAI:
			updates, terminal = n.ApplyOpenAI(ev)
		default:
			updates, terminal = n.Apply(ev)
		}

		for _, u := range updates {
			if emit == nil {
				continue
			}
			if err := emit(u); err != nil {
				return clientGone(d.Name, err)
			}
		}
		if terminal {
			return nil
		}
	}
}

// summary finalizes usage counters and collects the run's bookkeeping.
func (o *Orchestrator) summary(req *protocol.ChatRequest, d *backend.Descriptor, e *Emitter, acc *Accumulator, mode string) *Summary {
	usage := acc.Usage
	if !acc.UsageReported && o.estimator != nil {
		usage.PromptTokens = o.estimator.CountMessages(req.Model, req.Messages)
		usage.CompletionTokens = o.estimator.CountText(req.Model, acc.Text.String())
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &Summary{
		RequestID:    e.ID(),
		Provider:     d.Name,
		Model:        req.Model,
		Mode:         mode,
		FinishReason: finishReason(acc),
		Usage:        usage,
		ThreadID:     acc.ThreadID,
		ErrMessage:   acc.Err,
	}
}

func clientGone(provider string, err error) error {
	log.Debug().Err(err).Str("provider", provider).Msg("client disconnected")
	return err
}
