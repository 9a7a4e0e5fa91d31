package backend

import "fmt"

// SigningError reports a signature oracle failure. Fatal for the request it
// was raised on, never for the process.
type SigningError struct {
	Provider string
	Cause    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("provider %s: signing failed: %v", e.Provider, e.Cause)
}

func (e *SigningError) Unwrap() error { return e.Cause }

// ModelError reports a model name absent from a provider's model mapping.
// This is server misconfiguration, not client fault.
type ModelError struct {
	Provider string
	Model    string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("provider %s: unknown model %q", e.Provider, e.Model)
}

// HTTPError reports a non-success status from a backend, observed before any
// client-visible output was produced.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: backend returned status %d", e.Provider, e.StatusCode)
}

// TransportError reports a connection-level failure before any response was
// received.
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: backend unreachable: %v", e.Provider, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
