package identity

import (
	"crypto/ed25519"
	"strings"

	mb "github.com/multiformats/go-multibase"
	varint "github.com/multiformats/go-varint"

	"meldid/pkg/domainerrors"
)

const (
	// DIDKeyPrefix indicates a decentralized identifier using the key method.
	DIDKeyPrefix = "did:key"
	// MulticodecEd25519PubKey is the ed25519-pub multicodec code. Its varint
	// encoding is the two bytes 0xed 0x01 that lead every encoded key.
	MulticodecEd25519PubKey = 0xed
)

// EncodeDID renders a 32-byte ed25519 public key as a did:key string:
// "did:key:z" + base58btc(varint(0xed) || pubkey).
func EncodeDID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", domainerrors.New(domainerrors.CodeInvalidPublicKey, "public key must be 32 bytes")
	}
	size := varint.UvarintSize(MulticodecEd25519PubKey)
	data := make([]byte, size+len(pub))
	n := varint.PutUvarint(data, MulticodecEd25519PubKey)
	copy(data[n:], pub)

	encoded, err := mb.Encode(mb.Base58BTC, data)
	if err != nil {
		return "", domainerrors.Wrap(domainerrors.CodeInternal, "multibase encode failed", err)
	}
	return DIDKeyPrefix + ":" + encoded, nil
}

// DecodeDID recovers the exact public key an EncodeDID call produced.
// Verifiers on disconnected hardware cannot ask an issuer for clarification,
// so decoding is strict: any codec other than ed25519-pub is
// unsupported_scheme, and any payload that is not valid base58btc of exactly
// 34 bytes is malformed_encoding.
func DecodeDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, DIDKeyPrefix+":") {
		return nil, domainerrors.New(domainerrors.CodeMalformedEncoding, "identifier is not a did:key")
	}
	payload := strings.TrimPrefix(did, DIDKeyPrefix+":")

	enc, data, err := mb.Decode(payload)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeMalformedEncoding, "decoding multibase", err)
	}
	if enc != mb.Base58BTC {
		return nil, domainerrors.New(domainerrors.CodeMalformedEncoding, "unexpected multibase encoding")
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, domainerrors.Wrap(domainerrors.CodeMalformedEncoding, "decoding multicodec prefix", err)
	}
	if code != MulticodecEd25519PubKey {
		return nil, domainerrors.New(domainerrors.CodeUnsupportedScheme, "multicodec prefix is not ed25519-pub")
	}
	if len(data) != n+ed25519.PublicKeySize {
		return nil, domainerrors.New(domainerrors.CodeMalformedEncoding, "decoded payload is not 34 bytes")
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, data[n:])
	return pub, nil
}
