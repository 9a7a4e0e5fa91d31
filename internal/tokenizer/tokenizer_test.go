package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/candor-ai/chat-gateway/internal/protocol"
)

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", encodingO200kBase},
		{"gpt-4", encodingCL100kBase},
		{"gpt-4-turbo", encodingCL100kBase},
		{"gpt-3.5-turbo", encodingCL100kBase},
		{"o1-preview", encodingO200kBase},
		{"GPT-4O", encodingO200kBase},
		{"dev-standard", encodingCL100kBase},
		// Composite names resolve on the part after the provider.
		{"openai/gpt-4o", encodingO200kBase},
		{"dev/default", encodingCL100kBase},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveEncoding(tt.model), tt.model)
	}
}

func TestRuneEstimate(t *testing.T) {
	assert.Equal(t, 0, runeEstimate(""))
	assert.Equal(t, 1, runeEstimate("abc"))
	assert.Equal(t, 1, runeEstimate("abcd"))
	assert.Equal(t, 2, runeEstimate("abcde"))
	// Multi-byte runes count as characters, not bytes.
	assert.Equal(t, 1, runeEstimate("日本語"))
}

func TestCountText_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0, New().CountText("gpt-4o", ""))
}

func TestCountMessages_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0, New().CountMessages("gpt-4o", nil))
}

func TestCountMessages_IncludesFramingOverhead(t *testing.T) {
	e := New()
	messages := []protocol.Message{{Role: protocol.RoleUser, Content: "hello"}}

	total := e.CountMessages("dev/default", messages)
	perText := e.CountText("dev/default", "user") + e.CountText("dev/default", "hello")
	assert.Equal(t, tokensPerReply+tokensPerMessage+perText, total)
}
