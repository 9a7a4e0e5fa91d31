package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// HMACSigner signs the canonical tuple with HMAC-SHA256 under a per-device
// secret. This is the local stand-in for the upstream signature oracle: same
// inputs, same opaque-string output contract.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a signer from the device secret.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

// Sign implements Signer. The tuple fields are joined with newlines before
// hashing so no field can bleed into its neighbor.
func (s *HMACSigner) Sign(_ context.Context, nonce string, timestamp int64, deviceID, content string) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	for i, part := range []string{nonce, strconv.FormatInt(timestamp, 10), deviceID, content} {
		if i > 0 {
			mac.Write([]byte{'\n'})
		}
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

var _ Signer = (*HMACSigner)(nil)
