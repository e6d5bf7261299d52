package chain

import (
	"fmt"
	"math/bits"

	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/crypto"
	"github.com/marabunet/marabu/src/crypto/keys"
)

// Outpoint identifies one output of a prior transaction.
type Outpoint struct {
	TxID  string `json:"txid"`
	Index uint64 `json:"index"`
}

// Token returns the UTXO set entry of the outpoint.
func (o Outpoint) Token() string {
	return OutpointToken(o.TxID, o.Index)
}

// Input spends an Outpoint. Sig is nil in the message that gets signed.
type Input struct {
	Outpoint Outpoint `json:"outpoint"`
	Sig      *string  `json:"sig"`
}

// Output locks Value atomic units to the Ed25519 key PubKey.
type Output struct {
	PubKey string `json:"pubkey"`
	Value  uint64 `json:"value"`
}

// Transaction is a payment transaction.
type Transaction struct {
	Type    string   `json:"type"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

func parseTransaction(doc map[string]interface{}) (*Transaction, error) {
	rawInputs, ok := asArray(doc["inputs"])
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "inputs is not an array")
	}
	rawOutputs, ok := asArray(doc["outputs"])
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "outputs is not an array")
	}
	if len(rawInputs) == 0 && len(rawOutputs) == 0 {
		return nil, NewProtocolError(InvalidFormat, "transaction has neither inputs nor outputs")
	}

	tx := &Transaction{
		Type:    typeTx,
		Inputs:  make([]Input, 0, len(rawInputs)),
		Outputs: make([]Output, 0, len(rawOutputs)),
	}

	for i, ri := range rawInputs {
		in, err := parseInput(ri)
		if err != nil {
			return nil, NewProtocolError(InvalidFormat, "input %d: %v", i, err)
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	outputs, err := parseOutputs(rawOutputs)
	if err != nil {
		return nil, err
	}
	tx.Outputs = outputs

	return tx, nil
}

func parseInput(v interface{}) (Input, error) {
	m, ok := asMap(v)
	if !ok {
		return Input{}, fmt.Errorf("not an object")
	}

	op, ok := asMap(m["outpoint"])
	if !ok {
		return Input{}, fmt.Errorf("missing outpoint")
	}
	if !isID(op["txid"]) {
		return Input{}, fmt.Errorf("outpoint txid is not an object id")
	}
	index, ok := asUint(op["index"])
	if !ok {
		return Input{}, fmt.Errorf("outpoint index is not a non-negative integer")
	}

	sig, ok := m["sig"].(string)
	if !ok || !common.IsHex(sig, sigLength) {
		return Input{}, fmt.Errorf("sig is not %d hex characters", sigLength)
	}

	return Input{
		Outpoint: Outpoint{TxID: op["txid"].(string), Index: index},
		Sig:      &sig,
	}, nil
}

func parseOutputs(raw []interface{}) ([]Output, error) {
	outputs := make([]Output, 0, len(raw))
	for i, ro := range raw {
		m, ok := asMap(ro)
		if !ok {
			return nil, NewProtocolError(InvalidFormat, "output %d is not an object", i)
		}
		pub, ok := m["pubkey"].(string)
		if !ok || !common.IsHex(pub, idLength) {
			return nil, NewProtocolError(InvalidFormat, "output %d pubkey is not %d hex characters", i, idLength)
		}
		value, ok := asUint(m["value"])
		if !ok {
			return nil, NewProtocolError(InvalidFormat, "output %d value is not a non-negative integer", i)
		}
		outputs = append(outputs, Output{PubKey: pub, Value: value})
	}
	return outputs, nil
}

// SigningMessage returns the bytes an input signature commits to: the
// canonical encoding of the transaction with every sig replaced by null.
func (o *Object) SigningMessage() ([]byte, error) {
	if o.Kind != PaymentKind {
		return nil, fmt.Errorf("object %s is not a payment transaction", o.ID)
	}

	stripped := make(map[string]interface{}, len(o.doc))
	for k, v := range o.doc {
		stripped[k] = v
	}

	rawInputs, _ := asArray(o.doc["inputs"])
	inputs := make([]interface{}, len(rawInputs))
	for i, ri := range rawInputs {
		m, _ := asMap(ri)
		in := make(map[string]interface{}, len(m))
		for k, v := range m {
			in[k] = v
		}
		in["sig"] = nil
		inputs[i] = in
	}
	stripped["inputs"] = inputs

	return crypto.CanonicalMarshal(stripped)
}

// txLoader resolves stored transactions by id.
type txLoader func(id string) (*Object, error)

// verifyTransaction runs the semantic checks of a payment that do not depend
// on the mempool: every outpoint resolves to a stored transaction output,
// every signature is valid for the key of the output it spends, and inputs
// cover outputs.
func verifyTransaction(obj *Object, has func(string) (bool, error), load txLoader) error {
	tx := obj.Payment

	spent := make([]Output, len(tx.Inputs))
	for i, in := range tx.Inputs {
		ok, err := has(in.Outpoint.TxID)
		if err != nil {
			return err
		}
		if !ok {
			return NewProtocolError(UnknownObject, "input %d spends unknown transaction %s", i, in.Outpoint.TxID)
		}

		prev, err := load(in.Outpoint.TxID)
		if err != nil {
			return err
		}
		if !prev.IsTransaction() {
			return NewProtocolError(InvalidTxOutpoint, "input %d points at %s which is not a transaction", i, in.Outpoint.TxID)
		}

		outputs := prev.Outputs()
		if in.Outpoint.Index >= uint64(len(outputs)) {
			return NewProtocolError(InvalidTxOutpoint, "input %d index %d out of range, %s has %d outputs",
				i, in.Outpoint.Index, in.Outpoint.TxID, len(outputs))
		}
		spent[i] = outputs[in.Outpoint.Index]
	}

	msg, err := obj.SigningMessage()
	if err != nil {
		return err
	}
	for i, in := range tx.Inputs {
		if !keys.VerifyHex(spent[i].PubKey, msg, *in.Sig) {
			return NewProtocolError(InvalidTxSignature, "input %d signature does not verify", i)
		}
	}

	var inSum, outSum, carry uint64
	seen := make(map[string]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		token := in.Outpoint.Token()
		if _, dup := seen[token]; dup {
			return NewProtocolError(InvalidTxConservation, "input %d spends %s a second time", i, token)
		}
		seen[token] = struct{}{}

		inSum, carry = bits.Add64(inSum, spent[i].Value, 0)
		if carry != 0 {
			return NewProtocolError(InvalidTxConservation, "input sum overflows")
		}
	}
	for _, out := range tx.Outputs {
		outSum, carry = bits.Add64(outSum, out.Value, 0)
		if carry != 0 {
			return NewProtocolError(InvalidTxConservation, "output sum overflows")
		}
	}

	if inSum < outSum {
		return NewProtocolError(InvalidTxConservation, "outputs %d exceed inputs %d", outSum, inSum)
	}

	return nil
}
