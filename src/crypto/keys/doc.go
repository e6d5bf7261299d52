// Package keys implements the public key cryptography used by Marabu
// transactions.
//
// Every transaction output is locked to an Ed25519 public key, written on the
// wire as 64 lowercase hex characters. A transaction input unlocks the output
// it references with an Ed25519 signature, 128 hex characters, over the
// canonical encoding of the spending transaction in which every signature has
// been replaced by null.
package keys
