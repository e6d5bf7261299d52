package chain

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/marabunet/marabu/src/crypto"
)

// UTXOSet is a set of outpoint tokens.
type UTXOSet map[string]struct{}

// OutpointToken returns the canonical encoding of {"index":index,"txid":txid},
// which is how outpoints are keyed in every UTXO set.
func OutpointToken(txid string, index uint64) string {
	return `{"index":` + strconv.FormatUint(index, 10) + `,"txid":"` + txid + `"}`
}

// NewUTXOSet returns a set holding tokens.
func NewUTXOSet(tokens ...string) UTXOSet {
	s := make(UTXOSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Has ...
func (s UTXOSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Add ...
func (s UTXOSet) Add(token string) {
	s[token] = struct{}{}
}

// Remove ...
func (s UTXOSet) Remove(token string) {
	delete(s, token)
}

// AddOutputs adds one token per output of transaction txid.
func (s UTXOSet) AddOutputs(txid string, outputs []Output) {
	for i := range outputs {
		s.Add(OutpointToken(txid, uint64(i)))
	}
}

// Clone returns an independent copy of the set.
func (s UTXOSet) Clone() UTXOSet {
	c := make(UTXOSet, len(s))
	for t := range s {
		c[t] = struct{}{}
	}
	return c
}

// Equal ...
func (s UTXOSet) Equal(o UTXOSet) bool {
	if len(s) != len(o) {
		return false
	}
	for t := range s {
		if !o.Has(t) {
			return false
		}
	}
	return true
}

// Sorted returns the tokens in ascending order.
func (s UTXOSet) Sorted() []string {
	tokens := make([]string, 0, len(s))
	for t := range s {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Marshal encodes the set as a canonical JSON array of tokens.
func (s UTXOSet) Marshal() ([]byte, error) {
	return crypto.CanonicalMarshal(s.Sorted())
}

// UnmarshalUTXOSet decodes the output of Marshal.
func UnmarshalUTXOSet(data []byte) (UTXOSet, error) {
	v, err := crypto.Decode(data)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("utxo set is not an array")
	}
	s := make(UTXOSet, len(arr))
	for _, e := range arr {
		t, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("utxo token is not a string")
		}
		s.Add(t)
	}
	return s, nil
}
