// Package tokenizer estimates token usage for backends that report none.
//
// DESIGN: tiktoken encodings resolved by model-name prefix and cached behind
// an RWMutex; unknown models fall back to cl100k_base, and an encoding
// failure degrades to a rune-count heuristic rather than an error. Estimates
// feed usage counters only, never billing.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/candor-ai/chat-gateway/internal/protocol"
)

// Encoding names used by tiktoken.
const (
	encodingCL100kBase = "cl100k_base" // GPT-4, GPT-3.5-turbo
	encodingO200kBase  = "o200k_base"  // GPT-4o, o-series
)

// Chat-format overhead, per the common counting convention: a few tokens of
// framing per message plus priming for the assistant reply.
const (
	tokensPerMessage = 4
	tokensPerReply   = 2
)

// modelEncoding pairs a model-name prefix with its encoding.
type modelEncoding struct {
	prefix   string
	encoding string
}

// Ordered so longer prefixes match before their shorter stems.
var modelEncodings = []modelEncoding{
	{"gpt-4o", encodingO200kBase},
	{"gpt-3.5", encodingCL100kBase},
	{"gpt-4", encodingCL100kBase},
	{"chatgpt", encodingO200kBase},
	{"o1", encodingO200kBase},
	{"o3", encodingO200kBase},
}

// Estimator counts tokens with cached tiktoken encodings.
type Estimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// New creates an Estimator.
func New() *Estimator {
	return &Estimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// CountText estimates the token count of one text for a model.
func (e *Estimator) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := e.getEncoding(model)
	if err != nil {
		log.Debug().Err(err).Str("model", model).Msg("tiktoken unavailable, using rune estimate")
		return runeEstimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages estimates prompt tokens for a message list, including the
// per-message chat framing overhead.
func (e *Estimator) CountMessages(model string, messages []protocol.Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := tokensPerReply
	for _, m := range messages {
		total += tokensPerMessage
		total += e.CountText(model, m.Role)
		total += e.CountText(model, m.Content)
	}
	return total
}

// getEncoding returns the cached encoding for a model.
func (e *Estimator) getEncoding(model string) (*tiktoken.Tiktoken, error) {
	name := resolveEncoding(model)

	e.mu.RLock()
	enc, ok := e.encodings[name]
	e.mu.RUnlock()
	if ok {
		return enc, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok = e.encodings[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	e.encodings[name] = enc
	return enc, nil
}

// resolveEncoding maps a model name (possibly "provider/name" composite) to
// an encoding name.
func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	if idx := strings.Index(lower, "/"); idx != -1 {
		lower = lower[idx+1:]
	}
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return encodingCL100kBase
}

// runeEstimate approximates four characters per token.
func runeEstimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
