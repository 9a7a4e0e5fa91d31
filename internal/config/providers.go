// Provider configuration - declares the backends the gateway can reach.
//
// DESIGN: One ProviderConfig per backend. Each names its wire dialect (how
// the response stream is parsed) and auth scheme (how the outbound request
// is authenticated) independently, so an OpenAI-compatible endpoint behind
// IAM auth is just dialect=openai + auth=sigv4.
package config

import (
	"fmt"
	"time"
)

// Auth schemes for outbound backend requests.
const (
	AuthNone   = "none"   // No authentication
	AuthBearer = "bearer" // Authorization: Bearer <api_key>
	AuthSigned = "signed" // Custom signed-header set (nonce/timestamp/sign/device-id)
	AuthSigV4  = "sigv4"  // AWS Signature Version 4
)

// Wire dialects for backend response streams.
const (
	DialectDev    = "dev"    // Named-event SSE vocabulary (content/r/sources/...)
	DialectOpenAI = "openai" // data-only SSE frames with chat.completion.chunk JSON
)

// ProviderConfig declares one backend provider.
type ProviderConfig struct {
	Name    string `yaml:"name"`     // Provider identifier, first segment of composite model names
	Dialect string `yaml:"dialect"`  // Wire dialect: dev, openai
	Auth    string `yaml:"auth"`     // Auth scheme: none, bearer, signed, sigv4
	BaseURL string `yaml:"base_url"` // Full chat endpoint URL

	// Bearer auth
	APIKey string `yaml:"api_key"` // API key for bearer auth

	// Signed-header auth
	DeviceID     string `yaml:"device_id"`     // Stable device identifier sent and signed
	DeviceSecret string `yaml:"device_secret"` // HMAC secret for the local signing oracle
	SessionID    string `yaml:"session_id"`    // Optional sid header
	OSType       string `yaml:"os_type"`       // os-type header value (default "web")

	// SigV4 auth
	Region  string `yaml:"region"`  // AWS region (falls back to environment)
	Service string `yaml:"service"` // AWS service name (default "bedrock")

	// Models maps generic model names to provider-specific identifiers.
	Models map[string]string `yaml:"models"`

	Timeout time.Duration `yaml:"timeout"` // Per-request timeout for this backend
}

// Validate checks the provider declaration.
func (p *ProviderConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	switch p.Dialect {
	case DialectDev, DialectOpenAI:
	case "":
		return fmt.Errorf("dialect is required")
	default:
		return fmt.Errorf("unknown dialect: %s", p.Dialect)
	}

	switch p.Auth {
	case AuthNone:
	case AuthBearer:
		if p.APIKey == "" {
			return fmt.Errorf("api_key is required for bearer auth")
		}
	case AuthSigned:
		if p.DeviceID == "" {
			return fmt.Errorf("device_id is required for signed auth")
		}
		if p.DeviceSecret == "" {
			return fmt.Errorf("device_secret is required for signed auth")
		}
	case AuthSigV4:
		// Region/credentials resolve from the AWS environment if unset.
	case "":
		return fmt.Errorf("auth is required")
	default:
		return fmt.Errorf("unknown auth scheme: %s", p.Auth)
	}

	return nil
}
