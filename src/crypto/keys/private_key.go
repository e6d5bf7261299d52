package keys

import (
	"crypto/ed25519"
	"crypto/rand"
)

// GenerateKey creates a new Ed25519 key-pair from crypto/rand.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
