package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2s"
)

// Blake2s256 returns the BLAKE2s-256 digest of data.
func Blake2s256(data []byte) []byte {
	h := blake2s.Sum256(data)
	return h[:]
}

// ObjectID returns the identifier of an object given its canonical encoding:
// the lowercase hex BLAKE2s-256 digest.
func ObjectID(canonical []byte) string {
	return hex.EncodeToString(Blake2s256(canonical))
}

// ObjectIDOf canonicalizes v and returns both its identifier and its
// canonical encoding.
func ObjectIDOf(v interface{}) (string, []byte, error) {
	c, err := CanonicalMarshal(v)
	if err != nil {
		return "", nil, err
	}
	return ObjectID(c), c, nil
}
