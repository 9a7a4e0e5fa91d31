// Package backend builds authenticated requests for upstream chat providers.
//
// DESIGN: A Descriptor is the immutable runtime form of one configured
// provider: endpoint, auth scheme, wire dialect and model mapping. The
// Registry is built once at startup from config and shared read-only across
// all request pipelines.
package backend

import (
	"fmt"
	"time"

	"github.com/candor-ai/chat-gateway/internal/config"
	"github.com/candor-ai/chat-gateway/internal/signing"
)

// Descriptor describes one backend provider. Fields are set at startup and
// never mutated afterwards.
type Descriptor struct {
	Name    string
	Dialect string
	Auth    string
	BaseURL string

	APIKey    string
	DeviceID  string
	SessionID string
	OSType    string

	Models  map[string]string
	Timeout time.Duration

	// Signer is the signature oracle for signed-header auth.
	Signer signing.Signer
	// SigV4 signs whole HTTP requests for IAM-authenticated endpoints.
	SigV4 *signing.SigV4Signer
}

// ResolveModel maps a generic model name to the provider-specific identifier.
// An empty mapping passes names through untouched; a non-empty mapping that
// lacks the name is a configuration error.
func (d *Descriptor) ResolveModel(generic string) (string, error) {
	if len(d.Models) == 0 {
		return generic, nil
	}
	if id, ok := d.Models[generic]; ok {
		return id, nil
	}
	return "", &ModelError{Provider: d.Name, Model: generic}
}

// Registry holds all configured descriptors, keyed by provider name.
// Read-only after NewRegistry returns.
type Registry struct {
	descriptors map[string]*Descriptor
}

// NewRegistry builds descriptors from provider configs, constructing each
// provider's signing oracle as needed.
func NewRegistry(providers []config.ProviderConfig) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]*Descriptor, len(providers))}

	for i := range providers {
		p := providers[i]
		d := &Descriptor{
			Name:      p.Name,
			Dialect:   p.Dialect,
			Auth:      p.Auth,
			BaseURL:   p.BaseURL,
			APIKey:    p.APIKey,
			DeviceID:  p.DeviceID,
			SessionID: p.SessionID,
			OSType:    p.OSType,
			Models:    p.Models,
			Timeout:   p.Timeout,
		}
		if d.OSType == "" {
			d.OSType = "web"
		}

		switch p.Auth {
		case config.AuthSigned:
			signer, err := signing.NewHMACSigner(p.DeviceSecret)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", p.Name, err)
			}
			d.Signer = signer
		case config.AuthSigV4:
			d.SigV4 = signing.NewSigV4Signer(p.Region, p.Service)
		}

		r.descriptors[p.Name] = d
	}

	return r, nil
}

// Get returns the descriptor for a provider name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}
