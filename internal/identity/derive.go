// Package identity implements the pendant identity protocol: key derivation,
// the did:key codec, and challenge-response signing. Everything here is pure
// and safe for concurrent use; nothing holds state or performs I/O.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"meldid/pkg/domainerrors"
)

// KeySource tags how a keypair came to exist. A provisioned keypair was
// minted from random at manufacture time and its seed is not recoverable; a
// PIN-derived keypair can be recomputed on any device from (chipID, PIN).
// The two are distinct identities: nothing binds a PIN to the provisioning
// seed, so downstream code must never treat them as interchangeable.
type KeySource string

const (
	SourceProvisioned KeySource = "provisioned"
	SourcePinDerived  KeySource = "pin-derived"
)

// Keypair is an ed25519 signing keypair plus its provenance tag. The private
// half is never persisted; callers hold it only for the duration of a single
// authentication attempt.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
	Source  KeySource
}

// DeriveKeypair recomputes the PIN-derived keypair for a chip. The seed is
// the SHA-256 digest of chipID||pin used directly as the ed25519 seed, so the
// same inputs yield a bit-identical keypair on every conformant
// implementation. The PIN format is the caller's concern; only chipID is
// required here.
func DeriveKeypair(chipID, pin string) (Keypair, error) {
	if chipID == "" {
		return Keypair{}, domainerrors.New(domainerrors.CodeInvalidInput, "chipID is required")
	}
	seed := sha256.Sum256([]byte(chipID + pin))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
		Source:  SourcePinDerived,
	}, nil
}

// GenerateKeypair mints a provisioning keypair from a uniformly random seed.
// Used once per chip, at manufacture/registration time.
func GenerateKeypair() (Keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return Keypair{}, domainerrors.Wrap(domainerrors.CodeInternal, "could not draw random seed", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
		Source:  SourceProvisioned,
	}, nil
}

// Fingerprint returns a short hex prefix of a public key for administrative
// display. Never a substitute for the full key in verification paths.
func Fingerprint(pub []byte) string {
	if len(pub) > 8 {
		pub = pub[:8]
	}
	return hex.EncodeToString(pub)
}
