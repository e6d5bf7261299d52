package node

import (
	"regexp"

	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/crypto"
)

// Message types of the gossip protocol.
const (
	HelloType       = "hello"
	GetPeersType    = "getpeers"
	PeersType       = "peers"
	GetObjectType   = "getobject"
	IHaveObjectType = "ihaveobject"
	ObjectType      = "object"
	GetMempoolType  = "getmempool"
	MempoolType     = "mempool"
	GetChainTipType = "getchaintip"
	ChainTipType    = "chaintip"
	ErrorType       = "error"
)

var versionRegexp = regexp.MustCompile(`^0\.9\.[0-9]+$`)

// message is implemented by every decoded protocol message.
type message interface {
	messageType() string
}

// HelloMessage opens every connection.
type HelloMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Agent   string `json:"agent,omitempty"`
}

// GetPeersMessage asks for known peer addresses.
type GetPeersMessage struct {
	Type string `json:"type"`
}

// PeersMessage carries peer addresses.
type PeersMessage struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

// GetObjectMessage asks for an object by id.
type GetObjectMessage struct {
	Type     string `json:"type"`
	ObjectID string `json:"objectid"`
}

// IHaveObjectMessage announces a newly validated object.
type IHaveObjectMessage struct {
	Type     string `json:"type"`
	ObjectID string `json:"objectid"`
}

// ObjectMessage carries an object. Object is the decoded JSON value; it is
// parsed by the chain, not here.
type ObjectMessage struct {
	Type   string                 `json:"type"`
	Object map[string]interface{} `json:"object"`
}

// GetMempoolMessage asks for the mempool.
type GetMempoolMessage struct {
	Type string `json:"type"`
}

// MempoolMessage lists the transactions of a mempool.
type MempoolMessage struct {
	Type  string   `json:"type"`
	TxIDs []string `json:"txids"`
}

// GetChainTipMessage asks for the chain tip.
type GetChainTipMessage struct {
	Type string `json:"type"`
}

// ChainTipMessage names the tip of the sender.
type ChainTipMessage struct {
	Type    string `json:"type"`
	BlockID string `json:"blockid"`
}

// ErrorMessage reports a protocol error to a peer.
type ErrorMessage struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (m *HelloMessage) messageType() string       { return HelloType }
func (m *GetPeersMessage) messageType() string    { return GetPeersType }
func (m *PeersMessage) messageType() string       { return PeersType }
func (m *GetObjectMessage) messageType() string   { return GetObjectType }
func (m *IHaveObjectMessage) messageType() string { return IHaveObjectType }
func (m *ObjectMessage) messageType() string      { return ObjectType }
func (m *GetMempoolMessage) messageType() string  { return GetMempoolType }
func (m *MempoolMessage) messageType() string     { return MempoolType }
func (m *GetChainTipMessage) messageType() string { return GetChainTipType }
func (m *ChainTipMessage) messageType() string    { return ChainTipType }
func (m *ErrorMessage) messageType() string       { return ErrorType }

/*******************************************************************************
Constructors
*******************************************************************************/

func newHelloMessage(agent string, protocolVersion string) *HelloMessage {
	return &HelloMessage{Type: HelloType, Version: protocolVersion, Agent: agent}
}

func newPeersMessage(addrs []string) *PeersMessage {
	if addrs == nil {
		addrs = []string{}
	}
	return &PeersMessage{Type: PeersType, Peers: addrs}
}

func newGetObjectMessage(id string) *GetObjectMessage {
	return &GetObjectMessage{Type: GetObjectType, ObjectID: id}
}

func newIHaveObjectMessage(id string) *IHaveObjectMessage {
	return &IHaveObjectMessage{Type: IHaveObjectType, ObjectID: id}
}

func newObjectMessage(obj *chain.Object) *ObjectMessage {
	return &ObjectMessage{Type: ObjectType, Object: obj.Value()}
}

func newMempoolMessage(txids []string) *MempoolMessage {
	if txids == nil {
		txids = []string{}
	}
	return &MempoolMessage{Type: MempoolType, TxIDs: txids}
}

func newChainTipMessage(blockID string) *ChainTipMessage {
	return &ChainTipMessage{Type: ChainTipType, BlockID: blockID}
}

func newErrorMessage(err chain.ProtocolError) *ErrorMessage {
	return &ErrorMessage{Type: ErrorType, Name: string(err.Kind), Message: err.Msg}
}

/*******************************************************************************
Decoding
*******************************************************************************/

// decodeMessage parses one line received from a peer. Every failure is an
// INVALID_FORMAT ProtocolError.
func decodeMessage(payload []byte) (message, error) {
	v, err := crypto.Decode(payload)
	if err != nil {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "message is not valid json")
	}

	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "message is not a json object")
	}

	typ, ok := doc["type"].(string)
	if !ok {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "message has no type")
	}

	switch typ {
	case HelloType:
		hello, err := decodeHello(doc)
		if err != nil {
			return nil, err
		}
		return hello, nil
	case GetPeersType:
		return &GetPeersMessage{Type: typ}, nil
	case PeersType:
		addrs, err := stringList(doc, "peers")
		if err != nil {
			return nil, err
		}
		return &PeersMessage{Type: typ, Peers: addrs}, nil
	case GetObjectType, IHaveObjectType:
		id, ok := doc["objectid"].(string)
		if !ok || !common.IsHex(id, 64) {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "%s: objectid is not an object id", typ)
		}
		if typ == GetObjectType {
			return &GetObjectMessage{Type: typ, ObjectID: id}, nil
		}
		return &IHaveObjectMessage{Type: typ, ObjectID: id}, nil
	case ObjectType:
		obj, ok := doc["object"].(map[string]interface{})
		if !ok {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "object: object is not a json object")
		}
		return &ObjectMessage{Type: typ, Object: obj}, nil
	case GetMempoolType:
		return &GetMempoolMessage{Type: typ}, nil
	case MempoolType:
		txids, err := stringList(doc, "txids")
		if err != nil {
			return nil, err
		}
		for _, id := range txids {
			if !common.IsHex(id, 64) {
				return nil, chain.NewProtocolError(chain.InvalidFormat, "mempool: %q is not an object id", id)
			}
		}
		return &MempoolMessage{Type: typ, TxIDs: txids}, nil
	case GetChainTipType:
		return &GetChainTipMessage{Type: typ}, nil
	case ChainTipType:
		id, ok := doc["blockid"].(string)
		if !ok || !common.IsHex(id, 64) {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "chaintip: blockid is not an object id")
		}
		return &ChainTipMessage{Type: typ, BlockID: id}, nil
	case ErrorType:
		name, ok := doc["name"].(string)
		if !ok {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "error: name is not a string")
		}
		msg, _ := doc["message"].(string)
		return &ErrorMessage{Type: typ, Name: name, Message: msg}, nil
	default:
		return nil, chain.NewProtocolError(chain.InvalidFormat, "unknown message type %q", typ)
	}
}

func decodeHello(doc map[string]interface{}) (*HelloMessage, error) {
	ver, ok := doc["version"].(string)
	if !ok {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "hello: version is not a string")
	}
	if !versionRegexp.MatchString(ver) {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "hello: unsupported version %q", ver)
	}

	hello := &HelloMessage{Type: HelloType, Version: ver}
	if a, present := doc["agent"]; present {
		agent, ok := a.(string)
		if !ok {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "hello: agent is not a string")
		}
		hello.Agent = agent
	}
	return hello, nil
}

func stringList(doc map[string]interface{}, key string) ([]string, error) {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return nil, chain.NewProtocolError(chain.InvalidFormat, "%s is not an array", key)
	}
	res := make([]string, 0, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, chain.NewProtocolError(chain.InvalidFormat, "%s[%d] is not a string", key, i)
		}
		res = append(res, s)
	}
	return res, nil
}
