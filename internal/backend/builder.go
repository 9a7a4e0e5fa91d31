// Backend request builder - turns a canonical request into an authenticated
// outbound call.
//
// DESIGN: The builder always asks the backend for a stream, whatever the
// client requested; the client-facing mode (incremental vs aggregate) is the
// orchestrator's decision, not the backend's. Signed-header providers get a
// fresh nonce and second-granularity timestamp per call and invoke the
// signature oracle exactly once.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/protocol"
)

// Envelope is one fully assembled outbound backend call. Built once per
// request and never reused; replay protection rests on nonce uniqueness.
type Envelope struct {
	URL       string
	Header    http.Header
	Body      []byte
	Nonce     string
	Timestamp int64
	Signature string
}

// Builder assembles envelopes. The time and nonce sources are injectable so
// tests can pin them; zero values mean time.Now and random UUIDs.
type Builder struct {
	Now      func() time.Time
	NewNonce func() string
}

// NewBuilder creates a builder with real time and nonce sources.
func NewBuilder() *Builder {
	return &Builder{
		Now:      time.Now,
		NewNonce: uuid.NewString,
	}
}

// Build produces the outbound URL, headers and body for one backend call.
func (b *Builder) Build(ctx context.Context, req *protocol.ChatRequest, d *Descriptor) (*Envelope, error) {
	_, generic := req.SplitModel()
	model, err := d.ResolveModel(generic)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		URL:    d.BaseURL,
		Header: make(http.Header),
	}
	env.Header.Set("Content-Type", "application/json")
	env.Header.Set("Accept", "text/event-stream")

	switch d.Dialect {
	case config.DialectDev:
		env.Body, err = b.devBody(req, model)
	case config.DialectOpenAI:
		env.Body, err = b.openAIBody(req, model)
	default:
		err = fmt.Errorf("provider %s: unknown dialect %q", d.Name, d.Dialect)
	}
	if err != nil {
		return nil, err
	}

	switch d.Auth {
	case config.AuthBearer:
		env.Header.Set("Authorization", "Bearer "+d.APIKey)
	case config.AuthSigned:
		if err := b.signHeaders(ctx, req, d, env); err != nil {
			return nil, err
		}
	case config.AuthNone, config.AuthSigV4:
		// None needs nothing; sigv4 signs the assembled request in HTTPRequest.
	}

	return env, nil
}

// signHeaders computes the signed custom header set for one call.
func (b *Builder) signHeaders(ctx context.Context, req *protocol.ChatRequest, d *Descriptor, env *Envelope) error {
	content := req.LastUserContent()
	if content == "" {
		log.Warn().Str("provider", d.Name).Msg("no user content to sign, signing empty string")
	}

	env.Nonce = b.NewNonce()
	env.Timestamp = b.Now().Unix()

	sig, err := d.Signer.Sign(ctx, env.Nonce, env.Timestamp, d.DeviceID, content)
	if err != nil {
		return &SigningError{Provider: d.Name, Cause: err}
	}
	env.Signature = sig

	env.Header.Set("nonce", env.Nonce)
	env.Header.Set("timestamp", fmt.Sprintf("%d", env.Timestamp))
	env.Header.Set("sign", sig)
	env.Header.Set("device-id", d.DeviceID)
	env.Header.Set("os-type", d.OSType)
	if d.SessionID != "" {
		env.Header.Set("sid", d.SessionID)
	}
	return nil
}

// devBody assembles the signed-dialect body: the signed content plus an
// unsigned extra object and an optional thread identifier.
func (b *Builder) devBody(req *protocol.ChatRequest, model string) ([]byte, error) {
	language := req.Language
	if language == "" {
		language = "All"
	}

	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}

	set("content", req.LastUserContent())
	set("extra.searchMode", "all")
	set("extra.model", model)
	set("extra.expertMode", false)
	set("extra.plugins", []string{})
	set("extra.language", language)
	if req.ThreadID != "" {
		set("threadId", req.ThreadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assemble backend body: %w", err)
	}
	return body, nil
}

// openAIBody assembles a chat.completions request with streaming forced on.
func (b *Builder) openAIBody(req *protocol.ChatRequest, model string) ([]byte, error) {
	out := struct {
		Model         string             `json:"model"`
		Messages      []protocol.Message `json:"messages"`
		Stream        bool               `json:"stream"`
		StreamOptions struct {
			IncludeUsage bool `json:"include_usage"`
		} `json:"stream_options"`
		Temperature float64 `json:"temperature,omitempty"`
		TopP        float64 `json:"top_p,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
	}{
		Model:       model,
		Messages:    req.Messages,
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	out.StreamOptions.IncludeUsage = true

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backend body: %w", err)
	}
	return body, nil
}

// HTTPRequest materializes an envelope into an *http.Request bound to ctx,
// applying SigV4 signing when the descriptor requires it.
func (b *Builder) HTTPRequest(ctx context.Context, d *Descriptor, env *Envelope) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(env.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend request: %w", err)
	}
	for k, vals := range env.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	if d.Auth == config.AuthSigV4 {
		if d.SigV4 == nil || !d.SigV4.IsConfigured() {
			return nil, &SigningError{Provider: d.Name, Cause: fmt.Errorf("sigv4 credentials unavailable")}
		}
		if err := d.SigV4.SignRequest(ctx, httpReq, env.Body); err != nil {
			return nil, &SigningError{Provider: d.Name, Cause: err}
		}
	}

	return httpReq, nil
}
