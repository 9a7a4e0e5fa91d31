// Chunk emitter - serializes normalization steps and final state into the
// canonical protocol.
//
// DESIGN: One Emitter per request carries the stable chunk identifier, model
// name and creation timestamp so every frame of a response tags identically.
// The role-init chunk always precedes content; the finish chunk is produced
// exactly once by the orchestrator.
package stream

import (
	"github.com/google/uuid"

	"github.com/candor-ai/chat-gateway/internal/protocol"
)

// Emitter converts updates and accumulated state into canonical output.
type Emitter struct {
	id      string
	model   string
	created int64
}

// NewEmitter creates an emitter for one request. The model is the canonical
// composite name the client asked for, not the provider-specific identifier.
func NewEmitter(model string, clock Clock) *Emitter {
	return &Emitter{
		id:      "chatcmpl-" + uuid.NewString(),
		model:   model,
		created: clock.Now().Unix(),
	}
}

// ID returns the per-request chunk identifier.
func (e *Emitter) ID() string { return e.id }

func (e *Emitter) chunk(choice protocol.ChunkChoice) *protocol.ChatCompletionChunk {
	return &protocol.ChatCompletionChunk{
		ID:      e.id,
		Object:  protocol.ObjectChunk,
		Created: e.created,
		Model:   e.model,
		Choices: []protocol.ChunkChoice{choice},
	}
}

// RoleChunk announces the assistant role. Streaming mode sends it before any
// content chunk.
func (e *Emitter) RoleChunk() *protocol.ChatCompletionChunk {
	return e.chunk(protocol.ChunkChoice{Delta: protocol.Delta{Role: protocol.RoleAssistant}})
}

// Chunk serializes one normalizer update into a streaming frame.
func (e *Emitter) Chunk(u Update) *protocol.ChatCompletionChunk {
	switch u.Kind {
	case UpdatePayload:
		return e.chunk(protocol.ChunkChoice{Delta: protocol.Delta{FunctionCall: u.Payload}})
	case UpdateError:
		c := e.chunk(protocol.ChunkChoice{Delta: protocol.Delta{Content: "[STREAM_ERROR]: " + u.Message}})
		c.Error = u.Message
		return c
	default:
		return e.chunk(protocol.ChunkChoice{Delta: protocol.Delta{Content: u.Content}})
	}
}

// FinishChunk carries the terminal finish reason with an empty delta.
func (e *Emitter) FinishChunk(reason string) *protocol.ChatCompletionChunk {
	return e.chunk(protocol.ChunkChoice{FinishReason: reason})
}

// Aggregate builds the single response object for non-streaming mode.
func (e *Emitter) Aggregate(acc *Accumulator, usage protocol.Usage) *protocol.ChatCompletionResponse {
	return &protocol.ChatCompletionResponse{
		ID:      e.id,
		Object:  protocol.ObjectCompletion,
		Created: e.created,
		Model:   e.model,
		Choices: []protocol.Choice{{
			Message: protocol.Message{
				Role:    protocol.RoleAssistant,
				Content: acc.Text.String(),
			},
			FinishReason: finishReason(acc),
		}},
		Usage: usage,
	}
}

// finishReason resolves the terminal status: backend-reported when present,
// "stop" otherwise.
func finishReason(acc *Accumulator) string {
	if acc.FinishReason != "" {
		return acc.FinishReason
	}
	return protocol.FinishReasonStop
}
