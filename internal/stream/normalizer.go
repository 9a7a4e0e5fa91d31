// Event normalizer - folds raw backend events into the accumulator.
//
// FLOW: Apply (dev vocabulary) or ApplyOpenAI (chat.completion.chunk frames)
// consume one event at a time and return the client-visible updates that
// event produced plus a terminal flag. Close flushes whatever is still
// buffered and emits the once-per-request side payloads.
//
// The reasoning sub-channel is buffered: fragments land in the accumulator
// immediately (so aggregate output keeps arrival order) but their emission is
// held until the buffer passes a size threshold, goes stale, or contains a
// line break. Any text-bearing event flushes the buffer first, so emitted
// content concatenates to exactly the accumulated text.
package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/candor-ai/chat-gateway/internal/protocol"
	"github.com/candor-ai/chat-gateway/internal/sse"
)

// Reasoning flush thresholds. Larger values trade latency for fewer,
// more meaningful client-visible updates.
const (
	reasoningFlushBytes    = 160
	reasoningFlushInterval = 400 * time.Millisecond
)

// UpdateKind tags one client-visible update.
type UpdateKind int

const (
	// UpdateContent carries a visible text delta.
	UpdateContent UpdateKind = iota
	// UpdatePayload carries a function-like side payload.
	UpdatePayload
	// UpdateError carries the terminal stream error message.
	UpdateError
)

// Update is one client-visible product of a normalization step.
type Update struct {
	Kind    UpdateKind
	Content string
	Payload *protocol.FunctionCall
	Message string
}

// Normalizer applies per-event-type rules to one request's accumulator.
// Not safe for concurrent use; each request owns one.
type Normalizer struct {
	acc   *Accumulator
	clock Clock

	pending   strings.Builder
	lastFlush time.Time

	sourcesSent bool
	errorSent   bool
	closed      bool
}

// NewNormalizer creates a normalizer with a fresh accumulator.
func NewNormalizer(clock Clock) *Normalizer {
	return &Normalizer{
		acc:       &Accumulator{},
		clock:     clock,
		lastFlush: clock.Now(),
	}
}

// Accumulator exposes the accumulated answer for aggregate emission.
func (n *Normalizer) Accumulator() *Accumulator { return n.acc }

// Apply folds one dev-dialect event. Returned updates are in emission order;
// terminal reports whether the stream is logically over.
func (n *Normalizer) Apply(ev sse.RawEvent) (updates []Update, terminal bool) {
	if n.acc.Finished {
		// Events after the terminal one change nothing.
		return nil, true
	}

	switch ev.Type {
	case "content", "c", "message":
		updates = n.appendVisible(ev.Data)

	case "r":
		n.acc.appendText(ev.Data)
		n.acc.appendReasoning(ev.Data)
		n.pending.WriteString(ev.Data)
		if n.shouldFlushReasoning() {
			updates = n.flushReasoning()
		}

	case "threadId":
		n.acc.ThreadID = ev.Data
	case "queryMessageId":
		n.acc.QueryMessageID = ev.Data
	case "answerMessageId":
		n.acc.AnswerMessageID = ev.Data
	case "threadTitle":
		n.acc.ThreadTitle = ev.Data

	case "sources":
		if list, ok := jsonArray(ev.Data); ok {
			n.acc.SourcesRaw = list
		} else {
			log.Warn().Str("event", ev.Type).Msg("sources payload is not a JSON array, skipped")
		}
	case "repoSources":
		if list, ok := jsonArray(ev.Data); ok {
			n.acc.RepoSourcesRaw = list
		} else {
			log.Warn().Str("event", ev.Type).Msg("repo sources payload is not a JSON array, skipped")
		}

	case "rlq", "q":
		n.acc.appendRelated(ev.Data)

	case "action":
		if gjson.Valid(ev.Data) && gjson.Parse(ev.Data).IsObject() {
			n.acc.upsertAction(ev.Data)
		} else {
			log.Warn().Msg("action payload is not a JSON object, skipped")
		}

	case "error":
		updates = n.applyError(errorMessage(ev.Data))
		terminal = true

	case "ping":
		// Keep-alive, no state.

	case "close", "done":
		n.acc.finish()
		terminal = true

	default:
		if strings.TrimSpace(ev.Data) != "" {
			log.Warn().Str("event", ev.Type).Msg("unknown event type, payload appended as text")
			updates = n.appendVisible(ev.Data)
		} else {
			log.Debug().Str("event", ev.Type).Msg("unknown empty event type, ignored")
		}
	}

	return updates, terminal
}

// ApplyOpenAI folds one chat.completion.chunk frame from an OpenAI-dialect
// backend through the same accumulator.
func (n *Normalizer) ApplyOpenAI(ev sse.RawEvent) (updates []Update, terminal bool) {
	if n.acc.Finished {
		return nil, true
	}

	data := strings.TrimSpace(ev.Data)
	if data == "[DONE]" {
		n.acc.finish()
		return nil, true
	}
	if !gjson.Valid(data) {
		log.Warn().Msg("malformed backend chunk, skipped")
		return nil, false
	}

	parsed := gjson.Parse(data)

	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		return n.applyError(errMsg.String()), true
	}

	if content := parsed.Get("choices.0.delta.content"); content.Exists() && content.String() != "" {
		updates = n.appendVisible(content.String())
	}
	if reason := parsed.Get("choices.0.finish_reason"); reason.Exists() && reason.String() != "" {
		n.acc.FinishReason = reason.String()
	}
	if usage := parsed.Get("usage"); usage.Exists() && usage.IsObject() {
		n.acc.Usage = protocol.Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
		n.acc.UsageReported = true
	}

	return updates, false
}

// Close ends normalization: flushes the reasoning buffer, emits the
// once-per-request side payloads, and marks the accumulator finished.
// Idempotent; a second call returns nothing.
func (n *Normalizer) Close() []Update {
	if n.closed {
		return nil
	}
	n.closed = true

	var updates []Update
	if n.pending.Len() > 0 {
		updates = append(updates, n.flushReasoning()...)
	}

	if n.acc.SourcesRaw != "" && !n.sourcesSent {
		n.sourcesSent = true
		updates = append(updates, Update{
			Kind:    UpdatePayload,
			Payload: &protocol.FunctionCall{Name: "sources", Arguments: n.acc.SourcesRaw},
		})
	}
	if n.acc.RepoSourcesRaw != "" {
		updates = append(updates, Update{
			Kind:    UpdatePayload,
			Payload: &protocol.FunctionCall{Name: "repo_sources", Arguments: n.acc.RepoSourcesRaw},
		})
	}
	if len(n.acc.Related) > 0 {
		updates = append(updates, Update{
			Kind:    UpdatePayload,
			Payload: &protocol.FunctionCall{Name: "related_questions", Arguments: relatedJSON(n.acc.Related)},
		})
	}
	if len(n.acc.Actions) > 0 {
		updates = append(updates, Update{
			Kind:    UpdatePayload,
			Payload: &protocol.FunctionCall{Name: "actions", Arguments: "[" + strings.Join(n.acc.Actions, ",") + "]"},
		})
	}

	n.acc.finish()
	return updates
}

// appendVisible is the shared path for every text-bearing event. Buffered
// reasoning flushes first so emitted deltas keep arrival order.
func (n *Normalizer) appendVisible(s string) []Update {
	updates := make([]Update, 0, 2)
	if n.pending.Len() > 0 {
		updates = append(updates, n.flushReasoning()...)
	}
	n.acc.appendText(s)
	updates = append(updates, Update{Kind: UpdateContent, Content: s})
	return updates
}

func (n *Normalizer) applyError(msg string) []Update {
	// Flush first so buffered fragments precede the error marker.
	updates := make([]Update, 0, 3)
	if n.pending.Len() > 0 {
		updates = append(updates, n.flushReasoning()...)
	}
	n.acc.setError(msg)
	if !n.errorSent {
		n.errorSent = true
		updates = append(updates, Update{Kind: UpdateError, Message: msg})
	}
	return updates
}

func (n *Normalizer) shouldFlushReasoning() bool {
	if n.pending.Len() >= reasoningFlushBytes {
		return true
	}
	if strings.Contains(n.pending.String(), "\n") {
		return true
	}
	return n.clock.Now().Sub(n.lastFlush) >= reasoningFlushInterval
}

func (n *Normalizer) flushReasoning() []Update {
	n.lastFlush = n.clock.Now()
	if n.pending.Len() == 0 {
		return nil
	}
	buffered := n.pending.String()
	n.pending.Reset()
	return []Update{{Kind: UpdateContent, Content: buffered}}
}

// jsonArray validates that data is a JSON array and returns it verbatim.
func jsonArray(data string) (string, bool) {
	trimmed := strings.TrimSpace(data)
	if gjson.Valid(trimmed) && gjson.Parse(trimmed).IsArray() {
		return trimmed, true
	}
	return "", false
}

// errorMessage extracts a human-readable message from an error payload,
// which may be a JSON object or plain text.
func errorMessage(data string) string {
	if gjson.Valid(data) {
		if msg := gjson.Get(data, "message"); msg.Exists() {
			return msg.String()
		}
		if msg := gjson.Get(data, "error"); msg.Exists() {
			return msg.String()
		}
	}
	return data
}

func relatedJSON(qs []RelatedQuestion) string {
	encoded, err := json.Marshal(qs)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode related questions")
		return "[]"
	}
	return string(encoded)
}
