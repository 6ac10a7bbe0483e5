// Package signing implements the Signature Authenticator: it verifies
// that a caller possesses the private key whose public counterpart is
// bound to a given user id. The canonical signed message is the user id
// string itself.
package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"

	"github.com/nsl-router/nsl-router/internal/identity"
)

// Result is the outcome of an authenticate call.
type Result int

const (
	Authenticated Result = iota
	BadFormat
	Mismatch
	UnknownUser
)

// identityLookup is the narrow slice of the Identity Registry the
// authenticator depends on; it must never auto-create records.
type identityLookup interface {
	GetByID(ctx context.Context, userID string) (*identity.Record, error)
}

// Authenticator verifies Ed25519 signatures over a user id against the
// public key recorded in the Identity Registry.
type Authenticator struct {
	identities identityLookup
}

// New builds an Authenticator over the given identity lookup.
func New(identities identityLookup) *Authenticator {
	return &Authenticator{identities: identities}
}

// Authenticate verifies that sigText is a valid Ed25519 signature over
// userID's bytes, produced by the private key matching the stored public
// key. It never creates an identity record as a side effect.
func (a *Authenticator) Authenticate(ctx context.Context, userID, sigText string) (Result, error) {
	rec, err := a.identities.GetByID(ctx, userID)
	if err != nil {
		return UnknownUser, err
	}
	if rec == nil || rec.PublicKey == "" {
		return UnknownUser, nil
	}

	sig, err := DecodeSignature(sigText)
	if err != nil {
		return BadFormat, nil
	}

	pub, err := DecodePublicKey(rec.PublicKey)
	if err != nil {
		// A record with an unparseable stored key can never authenticate.
		return Mismatch, nil
	}

	if !ed25519.Verify(pub, []byte(userID), sig) {
		return Mismatch, nil
	}
	return Authenticated, nil
}

// EncodePublicKey renders an Ed25519 public key as the text form stored in
// identity records: standard base64 of the raw 32-byte key.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// DecodePublicKey parses the text form produced by EncodePublicKey.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errInvalidKeySize
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeSignature renders a raw 64-byte Ed25519 signature as the text form
// accepted on the wire.
func EncodeSignature(sig []byte) string {
	return base64.URLEncoding.EncodeToString(sig)
}

// DecodeSignature parses the text form produced by EncodeSignature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, errInvalidSignatureSize
	}
	return sig, nil
}

var (
	errInvalidKeySize       = signingError("invalid Ed25519 public key size")
	errInvalidSignatureSize = signingError("invalid Ed25519 signature size")
)

type signingError string

func (e signingError) Error() string { return string(e) }
