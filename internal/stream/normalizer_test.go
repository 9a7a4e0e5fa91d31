package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/candor-ai/chat-gateway/internal/sse"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func contentOf(updates []Update) string {
	var b strings.Builder
	for _, u := range updates {
		if u.Kind == UpdateContent {
			b.WriteString(u.Content)
		}
	}
	return b.String()
}

func TestApply_ContentAppendsAndEmits(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, terminal := n.Apply(sse.RawEvent{Type: "content", Data: "Hello "})
	assert.False(t, terminal)
	require.Len(t, updates, 1)
	assert.Equal(t, "Hello ", updates[0].Content)

	for _, alias := range []string{"c", "message"} {
		updates, _ = n.Apply(sse.RawEvent{Type: alias, Data: "x"})
		require.Len(t, updates, 1)
	}
	assert.Equal(t, "Hello xx", n.Accumulator().Text.String())
}

func TestApply_AggregateTextIsConcatenationInArrivalOrder(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	events := []sse.RawEvent{
		{Type: "content", Data: "A"},
		{Type: "r", Data: "B"},
		{Type: "content", Data: "C"},
		{Type: "r", Data: "D"},
	}
	var streamed strings.Builder
	for _, ev := range events {
		updates, _ := n.Apply(ev)
		streamed.WriteString(contentOf(updates))
	}
	streamed.WriteString(contentOf(n.Close()))

	assert.Equal(t, "ABCD", n.Accumulator().Text.String())
	// Streamed deltas concatenate to exactly the aggregate text.
	assert.Equal(t, "ABCD", streamed.String())
	assert.Equal(t, "BD", n.Accumulator().Reasoning.String())
}

func TestApply_ReasoningHeldUntilClose(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	// Under the size threshold, no newline, no time passing: nothing emits.
	updates, _ := n.Apply(sse.RawEvent{Type: "r", Data: "thinking"})
	assert.Empty(t, updates)
	updates, _ = n.Apply(sse.RawEvent{Type: "r", Data: " harder"})
	assert.Empty(t, updates)

	// Stream end flushes the buffer exactly once.
	closed := n.Close()
	assert.Equal(t, "thinking harder", contentOf(closed))
	assert.Empty(t, n.Close())
}

func TestApply_ReasoningFlushesOnSize(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	big := strings.Repeat("a", reasoningFlushBytes)
	updates, _ := n.Apply(sse.RawEvent{Type: "r", Data: big})
	assert.Equal(t, big, contentOf(updates))
}

func TestApply_ReasoningFlushesOnNewline(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, _ := n.Apply(sse.RawEvent{Type: "r", Data: "step one\n"})
	assert.Equal(t, "step one\n", contentOf(updates))
}

func TestApply_ReasoningFlushesOnElapsedTime(t *testing.T) {
	clock := newFakeClock()
	n := NewNormalizer(clock)

	updates, _ := n.Apply(sse.RawEvent{Type: "r", Data: "slow"})
	assert.Empty(t, updates)

	clock.advance(reasoningFlushInterval)
	updates, _ = n.Apply(sse.RawEvent{Type: "r", Data: " burn"})
	assert.Equal(t, "slow burn", contentOf(updates))
}

func TestApply_ContentFlushesPendingReasoningFirst(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	n.Apply(sse.RawEvent{Type: "r", Data: "buffered"})
	updates, _ := n.Apply(sse.RawEvent{Type: "content", Data: " then text"})

	require.Len(t, updates, 2)
	assert.Equal(t, "buffered", updates[0].Content)
	assert.Equal(t, " then text", updates[1].Content)
}

func TestApply_ErrorIsTerminal(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	n.Apply(sse.RawEvent{Type: "content", Data: "partial"})

	updates, terminal := n.Apply(sse.RawEvent{Type: "error", Data: `{"message":"backend exploded"}`})
	assert.True(t, terminal)
	require.Len(t, updates, 1)
	assert.Equal(t, UpdateError, updates[0].Kind)
	assert.Equal(t, "backend exploded", updates[0].Message)

	acc := n.Accumulator()
	assert.True(t, acc.Finished)
	assert.Equal(t, "backend exploded", acc.Err)
	assert.Equal(t, "partial[STREAM_ERROR]: backend exploded", acc.Text.String())

	// Nothing after the terminal event changes state.
	updates, terminal = n.Apply(sse.RawEvent{Type: "content", Data: "too late"})
	assert.True(t, terminal)
	assert.Empty(t, updates)
	assert.Equal(t, "partial[STREAM_ERROR]: backend exploded", acc.Text.String())
}

func TestApply_ErrorPlainTextPayload(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	updates, _ := n.Apply(sse.RawEvent{Type: "error", Data: "quota exceeded"})
	require.Len(t, updates, 1)
	assert.Equal(t, "quota exceeded", updates[0].Message)
}

func TestApply_SourcesReplaceWholesaleAndEmitOnce(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	n.Apply(sse.RawEvent{Type: "sources", Data: `[{"title":"first"}]`})
	n.Apply(sse.RawEvent{Type: "sources", Data: `[{"title":"second"},{"title":"third"}]`})

	acc := n.Accumulator()
	assert.Equal(t, `[{"title":"second"},{"title":"third"}]`, acc.SourcesRaw)

	closed := n.Close()
	var payloads []Update
	for _, u := range closed {
		if u.Kind == UpdatePayload && u.Payload.Name == "sources" {
			payloads = append(payloads, u)
		}
	}
	require.Len(t, payloads, 1)
	assert.Equal(t, acc.SourcesRaw, payloads[0].Payload.Arguments)
}

func TestApply_SourcesRejectsNonArray(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	n.Apply(sse.RawEvent{Type: "sources", Data: `{"not":"a list"}`})
	assert.Empty(t, n.Accumulator().SourcesRaw)
}

func TestApply_RepoSourcesTrackedSeparately(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	n.Apply(sse.RawEvent{Type: "repoSources", Data: `[{"repo":"octo/hello"}]`})
	assert.Equal(t, `[{"repo":"octo/hello"}]`, n.Accumulator().RepoSourcesRaw)
	assert.Empty(t, n.Accumulator().SourcesRaw)
}

func TestApply_RelatedQuestionsRederivedAcrossFragments(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	// A question split across two events, plus blank lines and whitespace.
	n.Apply(sse.RawEvent{Type: "rlq", Data: "What is up?\n  Wha"})
	n.Apply(sse.RawEvent{Type: "q", Data: "t is down?\n\n"})

	related := n.Accumulator().Related
	require.Len(t, related, 2)
	assert.Equal(t, RelatedQuestion{ID: 0, Question: "What is up?"}, related[0])
	assert.Equal(t, RelatedQuestion{ID: 1, Question: "What is down?"}, related[1])
}

func TestApply_ActionUpsertKeyedByType(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	n.Apply(sse.RawEvent{Type: "action", Data: `{"type":"search","query":"a"}`})
	n.Apply(sse.RawEvent{Type: "action", Data: `{"type":"browse","url":"x"}`})
	n.Apply(sse.RawEvent{Type: "action", Data: `{"type":"search","query":"b"}`})

	actions := n.Accumulator().Actions
	require.Len(t, actions, 2)
	assert.Equal(t, "b", gjson.Get(actions[0], "query").String())
	assert.Equal(t, "browse", gjson.Get(actions[1], "type").String())
}

func TestApply_MetadataLastWriteWins(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	n.Apply(sse.RawEvent{Type: "threadId", Data: "t-1"})
	n.Apply(sse.RawEvent{Type: "threadId", Data: "t-2"})
	n.Apply(sse.RawEvent{Type: "queryMessageId", Data: "q-1"})
	n.Apply(sse.RawEvent{Type: "answerMessageId", Data: "a-1"})
	n.Apply(sse.RawEvent{Type: "threadTitle", Data: "Greetings"})

	acc := n.Accumulator()
	assert.Equal(t, "t-2", acc.ThreadID)
	assert.Equal(t, "q-1", acc.QueryMessageID)
	assert.Equal(t, "a-1", acc.AnswerMessageID)
	assert.Equal(t, "Greetings", acc.ThreadTitle)
}

func TestApply_UnknownTypeFallsBackToText(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, terminal := n.Apply(sse.RawEvent{Type: "mystery", Data: "surprise"})
	assert.False(t, terminal)
	assert.Equal(t, "surprise", contentOf(updates))
	assert.Equal(t, "surprise", n.Accumulator().Text.String())

	// Empty unknown payloads are dropped.
	updates, _ = n.Apply(sse.RawEvent{Type: "mystery", Data: "  "})
	assert.Empty(t, updates)
}

func TestApply_PingIgnored(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	updates, terminal := n.Apply(sse.RawEvent{Type: "ping", Data: ""})
	assert.Empty(t, updates)
	assert.False(t, terminal)
}

func TestApply_CloseAndDoneAreTerminal(t *testing.T) {
	for _, typ := range []string{"close", "done"} {
		n := NewNormalizer(newFakeClock())
		n.Apply(sse.RawEvent{Type: "content", Data: "hi"})

		updates, terminal := n.Apply(sse.RawEvent{Type: typ, Data: ""})
		assert.True(t, terminal, typ)
		assert.Empty(t, updates, typ)
		assert.True(t, n.Accumulator().Finished, typ)
		assert.Equal(t, "hi", n.Accumulator().Text.String(), typ)
	}
}

func TestClose_EmitsRelatedAndActionsPayloads(t *testing.T) {
	n := NewNormalizer(newFakeClock())
	n.Apply(sse.RawEvent{Type: "rlq", Data: "One?\nTwo?"})
	n.Apply(sse.RawEvent{Type: "action", Data: `{"type":"search"}`})

	names := map[string]string{}
	for _, u := range n.Close() {
		if u.Kind == UpdatePayload {
			names[u.Payload.Name] = u.Payload.Arguments
		}
	}
	assert.Equal(t, `[{"id":0,"question":"One?"},{"id":1,"question":"Two?"}]`, names["related_questions"])
	assert.Equal(t, `[{"type":"search"}]`, names["actions"])
}

func TestApplyOpenAI_DeltaContentAndDone(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, terminal := n.ApplyOpenAI(sse.RawEvent{
		Type: "message",
		Data: `{"choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
	})
	assert.False(t, terminal)
	assert.Equal(t, "Hi", contentOf(updates))

	updates, terminal = n.ApplyOpenAI(sse.RawEvent{
		Type: "message",
		Data: `{"choices":[{"index":0,"delta":{},"finish_reason":"length"}]}`,
	})
	assert.False(t, terminal)
	assert.Empty(t, updates)
	assert.Equal(t, "length", n.Accumulator().FinishReason)

	_, terminal = n.ApplyOpenAI(sse.RawEvent{Type: "message", Data: "[DONE]"})
	assert.True(t, terminal)
	assert.True(t, n.Accumulator().Finished)
}

func TestApplyOpenAI_UsageOverwrites(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	n.ApplyOpenAI(sse.RawEvent{Data: `{"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`})
	n.ApplyOpenAI(sse.RawEvent{Data: `{"usage":{"prompt_tokens":5,"completion_tokens":9,"total_tokens":14}}`})

	acc := n.Accumulator()
	assert.True(t, acc.UsageReported)
	assert.Equal(t, 9, acc.Usage.CompletionTokens)
	assert.Equal(t, 14, acc.Usage.TotalTokens)
}

func TestApplyOpenAI_ErrorFrameIsTerminal(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, terminal := n.ApplyOpenAI(sse.RawEvent{Data: `{"error":{"message":"rate limited"}}`})
	assert.True(t, terminal)
	require.Len(t, updates, 1)
	assert.Equal(t, "rate limited", updates[0].Message)
	assert.Equal(t, "rate limited", n.Accumulator().Err)
}

func TestApplyOpenAI_MalformedFrameSkipped(t *testing.T) {
	n := NewNormalizer(newFakeClock())

	updates, terminal := n.ApplyOpenAI(sse.RawEvent{Data: `{"choices": broken`})
	assert.Empty(t, updates)
	assert.False(t, terminal)
	assert.Empty(t, n.Accumulator().Text.String())
}
