package keys

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Sign signs the data with the private key and returns the hex encoded
// signature.
func Sign(priv ed25519.PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, data))
}

// VerifyHex checks a hex encoded signature of data against a hex encoded
// public key. Malformed keys or signatures never verify.
func VerifyHex(pubHex string, data []byte, sigHex string) bool {
	pub, err := PublicKeyFromHex(pubHex)
	if err != nil {
		return false
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, data, sig)
}
