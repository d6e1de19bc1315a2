package identity

import "crypto/ed25519"

// challengePrefix frames every proof-of-possession message. Issuer and
// verifier both call BuildChallenge; the format is never re-implemented at a
// call site, because any drift silently breaks every future verification for
// that chip.
const challengePrefix = "MELD_AUTH"

// BuildChallenge produces the canonical signing payload for a chip. The
// output is byte-identical for the same chipID on every caller.
func BuildChallenge(chipID string) []byte {
	return []byte(challengePrefix + "_" + chipID)
}

// Sign signs a challenge message with the keypair's private half.
func Sign(message []byte, priv ed25519.PrivateKey) []byte {
	return ed25519.Sign(priv, message)
}

// Verify reports whether sig is a valid signature over message by pub. It
// returns false, never an error, on malformed input or cryptographic
// mismatch: callers must not be able to distinguish "wrong signature" from
// "garbage input". Log the suspected cause separately if it matters.
func Verify(message, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
