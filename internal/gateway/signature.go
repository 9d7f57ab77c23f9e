package gateway

import (
	"errors"
	"fmt"

	"github.com/yourorg/payment-gateway/internal/order"
)

// ErrInvalidSignature is returned when a callback payload fails verification.
// The callback must be rejected with no state change; gateways retry per
// their own policy.
var ErrInvalidSignature = errors.New("invalid callback signature")

// Verifier checks the authenticity of one gateway's callback payloads.
// Real implementations plug in HMAC/RSA verification per gateway.
type Verifier interface {
	Verify(payload map[string]any) error
}

// VerifierSet holds one Verifier per payment method.
type VerifierSet struct {
	verifiers map[order.Method]Verifier
}

// NewVerifierSet builds a set from explicit per-method verifiers.
func NewVerifierSet(verifiers map[order.Method]Verifier) *VerifierSet {
	return &VerifierSet{verifiers: verifiers}
}

// NewSimulatedVerifiers wires every supported method to a verifier that only
// requires the signature field to be present.
func NewSimulatedVerifiers() *VerifierSet {
	vs := make(map[order.Method]Verifier, len(order.Methods()))
	for _, m := range order.Methods() {
		vs[m] = SimulatedVerifier{}
	}
	return NewVerifierSet(vs)
}

// Verify dispatches to the method's verifier. A method without a verifier is
// rejected outright.
func (s *VerifierSet) Verify(m order.Method, payload map[string]any) error {
	v, ok := s.verifiers[m]
	if !ok {
		return fmt.Errorf("%w: no verifier for method %s", ErrInvalidSignature, m)
	}
	return v.Verify(payload)
}

// SimulatedVerifier accepts any payload carrying a non-empty signature.
type SimulatedVerifier struct{}

func (SimulatedVerifier) Verify(payload map[string]any) error {
	sig, _ := payload["signature"].(string)
	if sig == "" {
		return ErrInvalidSignature
	}
	return nil
}
