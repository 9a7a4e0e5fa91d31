// Package signing produces the request signatures required by signed-header
// backends.
//
// DESIGN: The signature primitive is treated as an oracle behind the Signer
// interface: given (nonce, timestamp, deviceID, content) it returns an opaque
// signature string or fails. Implementations must be safe for concurrent use;
// the request builder invokes the oracle at most once per backend call.
package signing

import "context"

// Signer computes a signature over the canonical signing tuple.
type Signer interface {
	// Sign returns the signature for one outbound backend call. The nonce is
	// unique per request and the timestamp has second granularity.
	Sign(ctx context.Context, nonce string, timestamp int64, deviceID, content string) (string, error)
}
