package chain

import (
	"github.com/marabunet/marabu/src/common"
)

// Block is a block header together with the ordered ids of its transactions.
// PrevID is nil only for the genesis block.
type Block struct {
	Type         string   `json:"type"`
	PrevID       *string  `json:"previd"`
	TxIDs        []string `json:"txids"`
	Created      uint64   `json:"created"`
	Target       string   `json:"T"`
	Nonce        string   `json:"nonce"`
	Miner        string   `json:"miner,omitempty"`
	Note         string   `json:"note,omitempty"`
	Contributors []string `json:"studentids,omitempty"`
}

func parseBlock(doc map[string]interface{}) (*Block, error) {
	b := &Block{Type: typeBlock}

	rawTxIDs, ok := asArray(doc["txids"])
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "txids is not an array")
	}
	b.TxIDs = make([]string, 0, len(rawTxIDs))
	for i, v := range rawTxIDs {
		if !isID(v) {
			return nil, NewProtocolError(InvalidFormat, "txids[%d] is not an object id", i)
		}
		b.TxIDs = append(b.TxIDs, v.(string))
	}

	prev, present := doc["previd"]
	if !present {
		return nil, NewProtocolError(InvalidFormat, "previd is missing")
	}
	if prev != nil {
		if !isID(prev) {
			return nil, NewProtocolError(InvalidFormat, "previd is not an object id")
		}
		p := prev.(string)
		b.PrevID = &p
	}

	created, ok := asUint(doc["created"])
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "created is not a non-negative integer")
	}
	b.Created = created

	target, ok := doc["T"].(string)
	if !ok || !common.IsHex(target, idLength) {
		return nil, NewProtocolError(InvalidFormat, "T is not %d hex characters", idLength)
	}
	b.Target = target

	nonce, ok := doc["nonce"].(string)
	if !ok || !common.IsHex(nonce, idLength) {
		return nil, NewProtocolError(InvalidFormat, "nonce is not %d hex characters", idLength)
	}
	b.Nonce = nonce

	if v, ok := doc["miner"]; ok {
		if !isASCII(v) {
			return nil, NewProtocolError(InvalidFormat, "miner must be a string of at most %d characters", maxASCII)
		}
		b.Miner = v.(string)
	}
	if v, ok := doc["note"]; ok {
		if !isASCII(v) {
			return nil, NewProtocolError(InvalidFormat, "note must be a string of at most %d characters", maxASCII)
		}
		b.Note = v.(string)
	}
	if v, ok := doc["studentids"]; ok {
		ids, ok := asArray(v)
		if !ok {
			return nil, NewProtocolError(InvalidFormat, "studentids is not an array")
		}
		for i, id := range ids {
			if !isASCII(id) {
				return nil, NewProtocolError(InvalidFormat, "studentids[%d] must be a string of at most %d characters", i, maxASCII)
			}
			b.Contributors = append(b.Contributors, id.(string))
		}
	}

	return b, nil
}

// Parent returns the parent id, or the empty string for genesis.
func (b *Block) Parent() string {
	if b.PrevID == nil {
		return ""
	}
	return *b.PrevID
}

// MeetsTarget reports whether id, read as a 256-bit number, is strictly
// below target. Both are lowercase hex of equal length, so the comparison is
// lexicographic.
func MeetsTarget(id, target string) bool {
	return len(id) == len(target) && id < target
}
