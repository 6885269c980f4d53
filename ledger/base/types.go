package base

import (
	"math/big"
)

// BlockInfo is the identity of a block, immutable once created
type BlockInfo struct {
	Height    int64
	Hash      []byte
	PrevHash  []byte
	Timestamp int64
	Generator Address
}

// TxInfo is the identity of a transaction within a block
type TxInfo struct {
	Hash      []byte
	Index     int32
	Origin    Address
	Timestamp int64
}

// MsgInfo is the identity of the current message call
type MsgInfo struct {
	Sender Address
	Value  *big.Int
}
