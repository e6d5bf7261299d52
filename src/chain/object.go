package chain

import (
	"math"
	"unicode/utf8"

	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/crypto"
)

// Kind tags the variant held by an Object.
type Kind int

const (
	// PaymentKind is a transaction with inputs.
	PaymentKind Kind = iota + 1
	// CoinbaseKind is a reward transaction with a height and no inputs.
	CoinbaseKind
	// BlockKind is a block.
	BlockKind
)

// String ...
func (k Kind) String() string {
	switch k {
	case PaymentKind:
		return "payment"
	case CoinbaseKind:
		return "coinbase"
	case BlockKind:
		return "block"
	default:
		return "unknown"
	}
}

const (
	idLength   = 64
	sigLength  = 128
	maxASCII   = 128
	typeTx     = "transaction"
	typeBlock  = "block"
	maxSafeInt = 1<<53 - 1
)

// Object is a structurally valid transaction or block together with its
// identifier and canonical encoding. Exactly one of Payment, Coinbase and
// Block is set, according to Kind.
type Object struct {
	ID        string
	Kind      Kind
	Canonical []byte

	Payment  *Transaction
	Coinbase *CoinbaseTransaction
	Block    *Block

	doc map[string]interface{}
}

// ParseObject decodes a JSON object and checks its shape.
func ParseObject(data []byte) (*Object, error) {
	v, err := crypto.Decode(data)
	if err != nil {
		return nil, NewProtocolError(InvalidFormat, "object is not valid json: %v", err)
	}
	return NewObject(v)
}

// NewObject checks the shape of a decoded JSON value and returns the typed
// object it describes. The identifier is computed over the value as received,
// including any fields this node does not interpret.
func NewObject(v interface{}) (*Object, error) {
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "object is not a json object")
	}

	id, canonical, err := crypto.ObjectIDOf(doc)
	if err != nil {
		return nil, NewProtocolError(InvalidFormat, "cannot encode object: %v", err)
	}

	obj := &Object{
		ID:        id,
		Canonical: canonical,
		doc:       doc,
	}

	typ, _ := doc["type"].(string)
	switch typ {
	case typeTx:
		if _, ok := doc["inputs"]; ok {
			obj.Kind = PaymentKind
			obj.Payment, err = parseTransaction(doc)
		} else if _, ok := doc["height"]; ok {
			obj.Kind = CoinbaseKind
			obj.Coinbase, err = parseCoinbase(doc)
		} else {
			err = NewProtocolError(InvalidFormat, "transaction %s has neither inputs nor height", id)
		}
	case typeBlock:
		obj.Kind = BlockKind
		obj.Block, err = parseBlock(doc)
	default:
		err = NewProtocolError(InvalidFormat, "unknown object type %q", typ)
	}

	if err != nil {
		return nil, err
	}

	return obj, nil
}

// Value returns the decoded JSON value of the object, suitable for embedding
// in an outgoing message.
func (o *Object) Value() map[string]interface{} {
	return o.doc
}

// IsTransaction reports whether the object is a payment or a coinbase.
func (o *Object) IsTransaction() bool {
	return o.Kind == PaymentKind || o.Kind == CoinbaseKind
}

// Outputs returns the outputs of a transaction object, or nil for blocks.
func (o *Object) Outputs() []Output {
	switch o.Kind {
	case PaymentKind:
		return o.Payment.Outputs
	case CoinbaseKind:
		return o.Coinbase.Outputs
	}
	return nil
}

/*******************************************************************************
Field helpers over decoded JSON
*******************************************************************************/

func isID(v interface{}) bool {
	s, ok := v.(string)
	return ok && common.IsHex(s, idLength)
}

func isASCII(v interface{}) bool {
	s, ok := v.(string)
	return ok && utf8.RuneCountInString(s) <= maxASCII
}

// asUint accepts the integer forms produced by the decoder, plus integral
// floats within the exactly representable range.
func asUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	case float64:
		if n >= 0 && n <= maxSafeInt && n == math.Trunc(n) {
			return uint64(n), true
		}
	}
	return 0, false
}

func asArray(v interface{}) ([]interface{}, bool) {
	a, ok := v.([]interface{})
	return a, ok
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}
