// Package iiss produces the reward calculation records of each committed
// block: the per block produce info, and the period header plus governance
// variables whenever a calculation period rotates.
package iiss

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/prep"
	sbase "github.com/prismchain/prism/state/base"
	"github.com/prismchain/prism/state/rcdb"
	"github.com/prismchain/prism/state/wal"
	"github.com/prismchain/prism/storage"
)

const headerVersion = 0

// record keys inside the reward calc database
var headerKey = []byte("HD")

// nextCalcHeightKey tracks the period bookkeeping in the state meta table
var nextCalcHeightKey = []byte("iiss.calcNextBlockHeight")

// MakeGVKey builds the governance variable record key of a block height
func MakeGVKey(blockHeight int64) []byte {
	key := make([]byte, 2+8)
	copy(key, "GV")
	binary.BigEndian.PutUint64(key[2:], uint64(blockHeight))
	return key
}

type headerRecord struct {
	Version     uint64
	BlockHeight uint64
}

type gvRecord struct {
	BlockHeight uint64
	IRep        *big.Int
	RRep        *big.Int
}

type produceRecord struct {
	Generator  lbase.Address
	Validators []lbase.Address
}

// Delegator derives the reward calc records of a block commit. The
// records go into the rc batch of the block's WAL backup and into the
// current reward calc database.
type Delegator struct {
	meta       storage.Database
	preps      *prep.Storage
	calcPeriod int64
	log        logger.Logger
}

func NewDelegator(db storage.Database, preps *prep.Storage, calcPeriod int64,
	log logger.Logger) (*Delegator, error) {
	if db == nil || preps == nil {
		return nil, fmt.Errorf("create iiss delegator failed because storage is nil")
	}
	if calcPeriod <= 0 {
		return nil, fmt.Errorf("create iiss delegator failed because calc period is %d", calcPeriod)
	}
	return &Delegator{
		meta:       storage.NewTable(db, lbase.MetaTablePrefix),
		preps:      preps,
		calcPeriod: calcPeriod,
		log:        log,
	}, nil
}

// GenesisUpdateDB opens the first calculation period: it seeds the period
// bookkeeping and emits the header and governance variable records.
func (t *Delegator) GenesisUpdateDB(ctx *sbase.ExecCtx, block *lbase.BlockInfo) ([]wal.Record, error) {
	if err := t.putNextCalcHeight(block.Height); err != nil {
		return nil, err
	}
	return t.periodRecords(ctx, block)
}

// UpdateDB derives the rc records of a non-genesis block: the block
// produce info every block, plus the period records when the block
// crosses the next calculation height.
func (t *Delegator) UpdateDB(ctx *sbase.ExecCtx, block *lbase.BlockInfo) ([]wal.Record, error) {
	records := make([]wal.Record, 0, 3)

	produce, err := t.produceRecordOf(ctx, block)
	if err != nil {
		return nil, err
	}
	if produce != nil {
		records = append(records, *produce)
	}

	nextCalcHeight, err := t.getNextCalcHeight()
	if err != nil {
		return nil, err
	}
	if block.Height <= nextCalcHeight {
		return records, nil
	}

	if err = t.putNextCalcHeight(block.Height); err != nil {
		return nil, err
	}
	periodRecords, err := t.periodRecords(ctx, block)
	if err != nil {
		return nil, err
	}
	t.log.Info("calc period rotated", "height", block.Height,
		"nextCalcHeight", block.Height+t.calcPeriod)
	return append(records, periodRecords...), nil
}

// NextCalcHeight returns the height after which the period rotates,
// zero when genesis has not run yet
func (t *Delegator) NextCalcHeight() (int64, error) {
	return t.getNextCalcHeight()
}

func (t *Delegator) periodRecords(ctx *sbase.ExecCtx, block *lbase.BlockInfo) ([]wal.Record, error) {
	header, err := rlp.EncodeToBytes(&headerRecord{
		Version:     headerVersion,
		BlockHeight: uint64(block.Height),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rc header failed.err:%v", err)
	}

	irep, rrep := new(big.Int), new(big.Int)
	_, term, err := t.preps.GetTerms(ctx)
	if err != nil {
		return nil, err
	}
	if term != nil {
		irep, rrep = term.IRep, term.RRep
	}
	gv, err := rlp.EncodeToBytes(&gvRecord{
		BlockHeight: uint64(block.Height),
		IRep:        irep,
		RRep:        rrep,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rc gv failed.err:%v", err)
	}

	return []wal.Record{
		{Key: headerKey, Value: header},
		{Key: MakeGVKey(block.Height), Value: gv},
	}, nil
}

// produceRecordOf builds the block produce info from the current term's
// validator set, skipped while no term is in effect
func (t *Delegator) produceRecordOf(ctx *sbase.ExecCtx, block *lbase.BlockInfo) (*wal.Record, error) {
	_, term, err := t.preps.GetTerms(ctx)
	if err != nil {
		return nil, err
	}
	if term == nil || len(term.Validators) == 0 {
		return nil, nil
	}

	value, err := rlp.EncodeToBytes(&produceRecord{
		Generator:  block.Generator,
		Validators: term.Validators,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rc produce info failed.err:%v", err)
	}
	return &wal.Record{
		Key:   rcdb.MakeBlockProduceInfoKey(block.Height),
		Value: value,
	}, nil
}

func (t *Delegator) getNextCalcHeight() (int64, error) {
	value, err := t.meta.Get(nextCalcHeightKey)
	if storage.ErrNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get next calc height failed.err:%v", err)
	}
	var height uint64
	if err = rlp.DecodeBytes(value, &height); err != nil {
		return 0, fmt.Errorf("decode next calc height failed.err:%v", err)
	}
	return int64(height), nil
}

func (t *Delegator) putNextCalcHeight(blockHeight int64) error {
	value, err := rlp.EncodeToBytes(uint64(blockHeight + t.calcPeriod))
	if err != nil {
		return fmt.Errorf("encode next calc height failed.err:%v", err)
	}
	return t.meta.Put(nextCalcHeightKey, value)
}
