package ingress

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Verdict is the outcome of checking a request signature.
type Verdict int

const (
	Valid Verdict = iota
	Invalid
	Malformed
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Result carries the verdict and, for Malformed or Invalid, the reason.
type Result struct {
	Verdict Verdict
	Reason  string
}

func (r Result) OK() bool { return r.Verdict == Valid }

const (
	signatureHexLen = ed25519.SignatureSize * 2
	publicKeyHexLen = ed25519.PublicKeySize * 2
)

// Verifier checks Ed25519 signatures over timestamp||body. A verifier built
// from an empty key accepts everything and logs a warning for each request.
type Verifier struct {
	key    ed25519.PublicKey
	keyErr error
	bypass bool
}

// NewVerifier decodes the hex public key. A key that cannot be decoded does not
// fail construction; every Verify call then reports Malformed.
func NewVerifier(publicKeyHex string) *Verifier {
	if publicKeyHex == "" {
		return &Verifier{bypass: true}
	}
	key, err := decodeHex(publicKeyHex, publicKeyHexLen, "public key")
	if err != nil {
		return &Verifier{keyErr: err}
	}
	return &Verifier{key: ed25519.PublicKey(key)}
}

// Bypass reports whether verification is disabled.
func (v *Verifier) Bypass() bool { return v.bypass }

// Verify never parses body.
func (v *Verifier) Verify(signatureHex, timestamp string, body []byte) Result {
	if v.bypass {
		log.Warn().Msg("no public key configured, skipping signature verification")
		return Result{Verdict: Valid}
	}
	if v.keyErr != nil {
		return Result{Verdict: Malformed, Reason: v.keyErr.Error()}
	}
	sig, err := decodeHex(signatureHex, signatureHexLen, "signature")
	if err != nil {
		return Result{Verdict: Malformed, Reason: err.Error()}
	}

	signed := make([]byte, 0, len(timestamp)+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, body...)
	if !ed25519.Verify(v.key, signed, sig) {
		return Result{Verdict: Invalid, Reason: "signature mismatch"}
	}
	return Result{Verdict: Valid}
}

func decodeHex(s string, wantLen int, what string) ([]byte, error) {
	if len(s) != wantLen {
		return nil, errors.Errorf("%s: expected %d hex chars, got %d", what, wantLen, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", what)
	}
	return b, nil
}
