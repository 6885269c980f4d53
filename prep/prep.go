// Package prep stores P-Rep registrations and the two slot term history
// under a dedicated key space of the state database.
package prep

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	lbase "github.com/prismchain/prism/ledger/base"
)

const (
	// prepKeyPrefix leads every P-Rep record key inside the prep table
	prepKeyPrefix byte = 0x00
	// prepKeySize is the exact P-Rep record key length, prefix plus address
	prepKeySize = 1 + lbase.AddressSize
)

// record format versions, chosen by the protocol revision in effect
const (
	prepVersion0 = iota
	prepVersion1
)

var (
	ErrPRepNotFound    = errors.New("prep not found")
	ErrCorruptedRecord = errors.New("corrupted prep record")
)

// PRepStatus is the registration state of a P-Rep
type PRepStatus uint64

const (
	StatusActive PRepStatus = iota
	StatusUnregistered
	StatusDisqualified
)

// PRep is one registered P-Rep. Block production stats are carried only
// by version 1 records, older records decode them as zero.
type PRep struct {
	Address         lbase.Address
	Status          PRepStatus
	PublicKey       []byte
	IRep            *big.Int
	IRepBlockHeight uint64
	TotalBlocks     uint64
	ValidatedBlocks uint64
}

// Clone returns an independent copy, safe to mutate without touching
// the receiver
func (t *PRep) Clone() *PRep {
	clone := *t
	if t.PublicKey != nil {
		clone.PublicKey = append([]byte(nil), t.PublicKey...)
	}
	if t.IRep != nil {
		clone.IRep = new(big.Int).Set(t.IRep)
	}
	return &clone
}

// MakeKey builds the record key of an address, always prepKeySize bytes
func MakeKey(addr lbase.Address) []byte {
	key := make([]byte, 0, prepKeySize)
	key = append(key, prepKeyPrefix)
	return append(key, addr.Bytes()...)
}

// IsPRepKey reports whether key has the exact shape of a P-Rep record
// key, anything else under the table is a different kind of record
func IsPRepKey(key []byte) bool {
	return len(key) == prepKeySize && key[0] == prepKeyPrefix
}

type prepRecordV0 struct {
	Version         uint64
	Address         lbase.Address
	Status          uint64
	PublicKey       []byte
	IRep            *big.Int
	IRepBlockHeight uint64
}

type prepRecordV1 struct {
	Version         uint64
	Address         lbase.Address
	Status          uint64
	PublicKey       []byte
	IRep            *big.Int
	IRepBlockHeight uint64
	TotalBlocks     uint64
	ValidatedBlocks uint64
}

// versionFor picks the record version written under a protocol revision
func versionFor(revision int) uint64 {
	if revision >= lbase.RevisionIISS {
		return prepVersion1
	}
	return prepVersion0
}

// Bytes encodes the record in the version of the given revision
func (t *PRep) Bytes(revision int) ([]byte, error) {
	irep := t.IRep
	if irep == nil {
		irep = new(big.Int)
	}

	switch versionFor(revision) {
	case prepVersion0:
		return rlp.EncodeToBytes(&prepRecordV0{
			Version:         prepVersion0,
			Address:         t.Address,
			Status:          uint64(t.Status),
			PublicKey:       t.PublicKey,
			IRep:            irep,
			IRepBlockHeight: t.IRepBlockHeight,
		})
	default:
		return rlp.EncodeToBytes(&prepRecordV1{
			Version:         prepVersion1,
			Address:         t.Address,
			Status:          uint64(t.Status),
			PublicKey:       t.PublicKey,
			IRep:            irep,
			IRepBlockHeight: t.IRepBlockHeight,
			TotalBlocks:     t.TotalBlocks,
			ValidatedBlocks: t.ValidatedBlocks,
		})
	}
}

// PRepFromBytes decodes a stored record, dispatching on its version field
func PRepFromBytes(value []byte) (*PRep, error) {
	var head struct {
		Version uint64
		Rest    []rlp.RawValue `rlp:"tail"`
	}
	if err := rlp.DecodeBytes(value, &head); err != nil {
		return nil, fmt.Errorf("%w: decode header failed.err:%v", ErrCorruptedRecord, err)
	}

	switch head.Version {
	case prepVersion0:
		var record prepRecordV0
		if err := rlp.DecodeBytes(value, &record); err != nil {
			return nil, fmt.Errorf("%w: decode v0 failed.err:%v", ErrCorruptedRecord, err)
		}
		return &PRep{
			Address:         record.Address,
			Status:          PRepStatus(record.Status),
			PublicKey:       record.PublicKey,
			IRep:            record.IRep,
			IRepBlockHeight: record.IRepBlockHeight,
		}, nil
	case prepVersion1:
		var record prepRecordV1
		if err := rlp.DecodeBytes(value, &record); err != nil {
			return nil, fmt.Errorf("%w: decode v1 failed.err:%v", ErrCorruptedRecord, err)
		}
		return &PRep{
			Address:         record.Address,
			Status:          PRepStatus(record.Status),
			PublicKey:       record.PublicKey,
			IRep:            record.IRep,
			IRepBlockHeight: record.IRepBlockHeight,
			TotalBlocks:     record.TotalBlocks,
			ValidatedBlocks: record.ValidatedBlocks,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorruptedRecord, head.Version)
	}
}
