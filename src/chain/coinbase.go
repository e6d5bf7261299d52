package chain

// CoinbaseTransaction grants the block reward. It has no inputs and is only
// valid as the first transaction of a block.
type CoinbaseTransaction struct {
	Type    string   `json:"type"`
	Height  uint64   `json:"height"`
	Outputs []Output `json:"outputs"`
}

func parseCoinbase(doc map[string]interface{}) (*CoinbaseTransaction, error) {
	height, ok := asUint(doc["height"])
	if !ok {
		return nil, NewProtocolError(InvalidFormat, "coinbase height is not a non-negative integer")
	}

	rawOutputs, ok := asArray(doc["outputs"])
	if !ok || len(rawOutputs) == 0 {
		return nil, NewProtocolError(InvalidFormat, "coinbase must have at least one output")
	}

	outputs, err := parseOutputs(rawOutputs)
	if err != nil {
		return nil, err
	}

	return &CoinbaseTransaction{
		Type:    typeTx,
		Height:  height,
		Outputs: outputs,
	}, nil
}

// Total returns the sum of the coinbase outputs and whether it fits in a
// uint64.
func (c *CoinbaseTransaction) Total() (uint64, bool) {
	var total uint64
	for _, out := range c.Outputs {
		next := total + out.Value
		if next < total {
			return 0, false
		}
		total = next
	}
	return total, true
}
