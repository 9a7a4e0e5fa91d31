package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/protocol"
	"github.com/candor-ai/chat-gateway/internal/signing"
)

func fixedBuilder() *Builder {
	return &Builder{
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
		NewNonce: func() string { return "nonce-1234" },
	}
}

func signedDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	signer, err := signing.NewHMACSigner("topsecret")
	require.NoError(t, err)
	return &Descriptor{
		Name:      "dev",
		Dialect:   config.DialectDev,
		Auth:      config.AuthSigned,
		BaseURL:   "https://dev.example.com/api/chat",
		DeviceID:  "device-1",
		SessionID: "sid-9",
		OSType:    "web",
		Models:    map[string]string{"default": "dev-standard"},
		Signer:    signer,
	}
}

func chatReq() *protocol.ChatRequest {
	return &protocol.ChatRequest{
		Model: "dev/default",
		Messages: []protocol.Message{
			{Role: protocol.RoleSystem, Content: "be brief"},
			{Role: protocol.RoleUser, Content: "first question"},
			{Role: protocol.RoleAssistant, Content: "first answer"},
			{Role: protocol.RoleUser, Content: "second question"},
		},
	}
}

func TestBuild_SignedHeaders(t *testing.T) {
	b := fixedBuilder()
	d := signedDescriptor(t)

	env, err := b.Build(context.Background(), chatReq(), d)
	require.NoError(t, err)

	assert.Equal(t, "https://dev.example.com/api/chat", env.URL)
	assert.Equal(t, "nonce-1234", env.Header.Get("nonce"))
	assert.Equal(t, "1700000000", env.Header.Get("timestamp"))
	assert.Equal(t, "device-1", env.Header.Get("device-id"))
	assert.Equal(t, "web", env.Header.Get("os-type"))
	assert.Equal(t, "sid-9", env.Header.Get("sid"))
	assert.Equal(t, "text/event-stream", env.Header.Get("Accept"))
	assert.Equal(t, "application/json", env.Header.Get("Content-Type"))

	// The header signature must match what the oracle produces for the same
	// tuple, with the most recent user message as content.
	want, err := d.Signer.Sign(context.Background(), "nonce-1234", 1700000000, "device-1", "second question")
	require.NoError(t, err)
	assert.Equal(t, want, env.Header.Get("sign"))
	assert.Equal(t, want, env.Signature)
}

func TestBuild_SignedWithoutSessionID(t *testing.T) {
	d := signedDescriptor(t)
	d.SessionID = ""

	env, err := fixedBuilder().Build(context.Background(), chatReq(), d)
	require.NoError(t, err)

	_, present := env.Header["Sid"]
	assert.False(t, present)
}

func TestBuild_SignsEmptyContentWhenNoUserMessage(t *testing.T) {
	d := signedDescriptor(t)
	req := &protocol.ChatRequest{
		Model:    "dev/default",
		Messages: []protocol.Message{{Role: protocol.RoleSystem, Content: "setup"}},
	}

	env, err := fixedBuilder().Build(context.Background(), req, d)
	require.NoError(t, err)

	want, err := d.Signer.Sign(context.Background(), "nonce-1234", 1700000000, "device-1", "")
	require.NoError(t, err)
	assert.Equal(t, want, env.Header.Get("sign"))
}

func TestBuild_DevBody(t *testing.T) {
	env, err := fixedBuilder().Build(context.Background(), chatReq(), signedDescriptor(t))
	require.NoError(t, err)

	body := string(env.Body)
	assert.Equal(t, "second question", gjson.Get(body, "content").String())
	assert.Equal(t, "dev-standard", gjson.Get(body, "extra.model").String())
	assert.Equal(t, "all", gjson.Get(body, "extra.searchMode").String())
	assert.Equal(t, "All", gjson.Get(body, "extra.language").String())
	assert.False(t, gjson.Get(body, "extra.expertMode").Bool())
	assert.False(t, gjson.Get(body, "threadId").Exists())
}

func TestBuild_DevBodyWithThread(t *testing.T) {
	req := chatReq()
	req.ThreadID = "thread-42"
	req.Language = "English"

	env, err := fixedBuilder().Build(context.Background(), req, signedDescriptor(t))
	require.NoError(t, err)

	body := string(env.Body)
	assert.Equal(t, "thread-42", gjson.Get(body, "threadId").String())
	assert.Equal(t, "English", gjson.Get(body, "extra.language").String())
}

func TestBuild_OpenAIBodyForcesStreaming(t *testing.T) {
	d := &Descriptor{
		Name:    "openai",
		Dialect: config.DialectOpenAI,
		Auth:    config.AuthBearer,
		BaseURL: "https://api.openai.com/v1/chat/completions",
		APIKey:  "sk-test",
	}
	req := chatReq()
	req.Model = "openai/gpt-4o"
	req.Stream = false // client wants an aggregate; the backend still streams
	req.Temperature = 0.7
	req.MaxTokens = 256

	env, err := fixedBuilder().Build(context.Background(), req, d)
	require.NoError(t, err)

	body := string(env.Body)
	assert.True(t, gjson.Get(body, "stream").Bool())
	assert.True(t, gjson.Get(body, "stream_options.include_usage").Bool())
	assert.Equal(t, "gpt-4o", gjson.Get(body, "model").String())
	assert.Equal(t, int64(4), gjson.Get(body, "messages.#").Int())
	assert.Equal(t, 0.7, gjson.Get(body, "temperature").Float())
	assert.Equal(t, int64(256), gjson.Get(body, "max_tokens").Int())
	assert.Equal(t, "Bearer sk-test", env.Header.Get("Authorization"))
	assert.Empty(t, env.Nonce)
}

func TestBuild_UnknownModel(t *testing.T) {
	req := chatReq()
	req.Model = "dev/nonexistent"

	_, err := fixedBuilder().Build(context.Background(), req, signedDescriptor(t))
	require.Error(t, err)

	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "nonexistent", me.Model)
}

func TestBuild_EmptyModelMapPassesThrough(t *testing.T) {
	d := signedDescriptor(t)
	d.Models = nil
	req := chatReq()
	req.Model = "dev/anything-goes"

	env, err := fixedBuilder().Build(context.Background(), req, d)
	require.NoError(t, err)
	assert.Equal(t, "anything-goes", gjson.Get(string(env.Body), "extra.model").String())
}

func TestHTTPRequest_CarriesHeadersAndBody(t *testing.T) {
	b := fixedBuilder()
	d := signedDescriptor(t)

	env, err := b.Build(context.Background(), chatReq(), d)
	require.NoError(t, err)

	httpReq, err := b.HTTPRequest(context.Background(), d, env)
	require.NoError(t, err)

	assert.Equal(t, "POST", httpReq.Method)
	assert.Equal(t, env.URL, httpReq.URL.String())
	assert.Equal(t, env.Header.Get("sign"), httpReq.Header.Get("sign"))
	assert.Equal(t, int64(len(env.Body)), httpReq.ContentLength)
}
