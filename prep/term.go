package prep

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	lbase "github.com/prismchain/prism/ledger/base"
)

// Term is one calculation period of the consensus schedule: its sequence
// number, its block range and the validator set elected for it. The
// field order of the encoded form is a compatibility contract.
type Term struct {
	Sequence         uint64
	StartBlockHeight uint64
	Period           uint64
	IRep             *big.Int
	RRep             *big.Int
	Validators       []lbase.Address
}

// EndBlockHeight returns the last block height covered by the term
func (t *Term) EndBlockHeight() uint64 {
	return t.StartBlockHeight + t.Period - 1
}

func (t *Term) Bytes() ([]byte, error) {
	record := *t
	if record.IRep == nil {
		record.IRep = new(big.Int)
	}
	if record.RRep == nil {
		record.RRep = new(big.Int)
	}
	return rlp.EncodeToBytes(&record)
}

func TermFromBytes(value []byte) (*Term, error) {
	term := new(Term)
	if err := rlp.DecodeBytes(value, term); err != nil {
		return nil, fmt.Errorf("%w: decode term failed.err:%v", ErrCorruptedRecord, err)
	}
	return term, nil
}
