// Package cryptoutil provides the node's signature primitives.
//
// The scheme is Ed25519: fast, deterministic, and an Edwards-curve Schnorr
// family signature. The internal packages learn about the concrete scheme
// only through the three size constants and KeyPair; cmd/evice-create-tx
// additionally builds an ed25519 key pair directly, so swapping to a
// different signature scheme means changing this file and that command.
package cryptoutil

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"fmt"
)

const (
	// PublicKeySize is the size in bytes of an Address / public key.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the size in bytes of a private key (Ed25519 encodes
	// the seed and the public key together).
	PrivateKeySize = ed25519.PrivateKeySize
	// SignatureSize is the size in bytes of a detached signature.
	SignatureSize = ed25519.SignatureSize
)

// KeyPair holds an Ed25519 public/private key pair. It is a plain value
// type: Ed25519 private keys are not external resources that need explicit
// release, but callers that serialize a KeyPair to disk are responsible for
// file permissions and secure deletion of the bytes once done with them.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair produces a fresh, uniformly random key pair backed by
// crypto/rand.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptoutil: generate key pair: %w", err)
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign returns a detached signature over message. Ed25519 signing is
// deterministic: the same key and message always produce the same bytes.
func (k KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.PrivateKey, message)
}

// Verify reports whether signature is a valid Ed25519 signature by
// publicKey over message. Any malformed input (wrong-length key or
// signature) is treated as a verification failure rather than an error.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
