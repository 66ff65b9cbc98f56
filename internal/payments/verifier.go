// Package payments authenticates payment gateway callbacks.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrForged is returned when a callback signature does not match.
var ErrForged = errors.New("payment signature mismatch")

// Verifier checks gateway signatures computed as
// hex(HMAC-SHA256(secret, gatewayOrderID + "|" + gatewayPaymentID)).
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns nil when the signature is authentic and ErrForged otherwise.
// A done context is reported as an error so a timed-out verification never
// passes for authentic.
func (v *Verifier) Verify(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	if len(v.secret) == 0 {
		return errors.New("verify payment: gateway secret is not configured")
	}

	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrForged
	}
	if !hmac.Equal(v.mac(gatewayOrderID, gatewayPaymentID), given) {
		return ErrForged
	}
	return nil
}

// Sign produces the signature the gateway would send for the pair.
func (v *Verifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	return hex.EncodeToString(v.mac(gatewayOrderID, gatewayPaymentID))
}

func (v *Verifier) mac(gatewayOrderID, gatewayPaymentID string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return h.Sum(nil)
}
