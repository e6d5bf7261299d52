package chain

import (
	"errors"
	"fmt"
)

// ErrorKind is the name of a protocol error as it appears in the "name" field
// of an error message.
type ErrorKind string

// Protocol error kinds.
const (
	InvalidFormat         ErrorKind = "INVALID_FORMAT"
	InvalidGenesis        ErrorKind = "INVALID_GENESIS"
	InvalidBlockPow       ErrorKind = "INVALID_BLOCK_POW"
	InvalidBlockTimestamp ErrorKind = "INVALID_BLOCK_TIMESTAMP"
	InvalidBlockCoinbase  ErrorKind = "INVALID_BLOCK_COINBASE"
	InvalidTxOutpoint     ErrorKind = "INVALID_TX_OUTPOINT"
	InvalidTxSignature    ErrorKind = "INVALID_TX_SIGNATURE"
	InvalidTxConservation ErrorKind = "INVALID_TX_CONSERVATION"
	UnknownObject         ErrorKind = "UNKNOWN_OBJECT"
	UnfindableObject      ErrorKind = "UNFINDABLE_OBJECT"
	InvalidHandshake      ErrorKind = "INVALID_HANDSHAKE"
)

// ProtocolError is a validation failure that is reported to the peer that
// sent the offending message. It is never fatal to the node.
type ProtocolError struct {
	Kind ErrorKind
	Msg  string
}

// NewProtocolError ...
func NewProtocolError(kind ErrorKind, format string, args ...interface{}) ProtocolError {
	return ProtocolError{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Error ...
func (e ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// AsProtocolError extracts a ProtocolError from err, following wrapped
// errors.
func AsProtocolError(err error) (ProtocolError, bool) {
	var perr ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}
	return perr, false
}

// IsProtocolError checks that err is a ProtocolError of the given kind.
func IsProtocolError(err error, kind ErrorKind) bool {
	perr, ok := AsProtocolError(err)
	return ok && perr.Kind == kind
}
