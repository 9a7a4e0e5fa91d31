// Package stream is the streaming normalization engine: it folds backend
// events into one accumulated answer per request and emits that state in the
// canonical protocol, incrementally or as one aggregate.
//
// DESIGN: One Accumulator per request, owned by exactly one pipeline. Text
// and reasoning are append-only until Finished flips true; after that no
// field mutates. List-valued fields (sources) are replaced wholesale, never
// appended. Usage counters are overwritten by the latest report, never
// summed.
package stream

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/candor-ai/chat-gateway/internal/protocol"
)

// RelatedQuestion is one parsed follow-up question, re-derived from the raw
// newline-delimited text every time more of it arrives.
type RelatedQuestion struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
}

// Accumulator is the single mutable aggregate for one request.
type Accumulator struct {
	Text      strings.Builder
	Reasoning strings.Builder

	// Latest backend-supplied JSON arrays, kept verbatim. Replacement, not
	// append: a later event overwrites the whole value.
	SourcesRaw     string
	RepoSourcesRaw string

	// Actions in arrival order, upserted by each object's own "type" field.
	Actions []string

	RelatedRaw string
	Related    []RelatedQuestion

	ThreadID        string
	QueryMessageID  string
	AnswerMessageID string
	ThreadTitle     string

	FinishReason  string
	Usage         protocol.Usage
	UsageReported bool

	Err      string
	Finished bool
}

func (a *Accumulator) appendText(s string) {
	if a.Finished {
		return
	}
	a.Text.WriteString(s)
}

func (a *Accumulator) appendReasoning(s string) {
	if a.Finished {
		return
	}
	a.Reasoning.WriteString(s)
}

// finish flips the terminal flag. Idempotent; the first caller wins.
func (a *Accumulator) finish() {
	a.Finished = true
}

// upsertAction inserts or replaces a raw action object, keyed by its "type"
// field. Objects without a type field are appended as-is.
func (a *Accumulator) upsertAction(raw string) {
	key := gjson.Get(raw, "type").String()
	if key != "" {
		for i, existing := range a.Actions {
			if gjson.Get(existing, "type").String() == key {
				a.Actions[i] = raw
				return
			}
		}
	}
	a.Actions = append(a.Actions, raw)
}

// appendRelated grows the raw follow-up text and re-derives the parsed list:
// split on line breaks, trim, drop empties, zero-based ids.
func (a *Accumulator) appendRelated(raw string) {
	a.RelatedRaw += raw

	lines := strings.Split(a.RelatedRaw, "\n")
	parsed := make([]RelatedQuestion, 0, len(lines))
	for _, line := range lines {
		q := strings.TrimSpace(line)
		if q == "" {
			continue
		}
		parsed = append(parsed, RelatedQuestion{ID: len(parsed), Question: q})
	}
	a.Related = parsed
}

// setError records the first stream error and appends the visible marker to
// the answer text. Later errors are logged and dropped.
func (a *Accumulator) setError(msg string) {
	if a.Err != "" {
		log.Debug().Str("message", msg).Msg("additional stream error after first, ignored")
		return
	}
	a.Err = msg
	a.appendText("[STREAM_ERROR]: " + msg)
	a.finish()
}
