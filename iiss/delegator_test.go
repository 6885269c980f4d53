package iiss

import (
	"bytes"
	"math/big"
	"path/filepath"
	"testing"

	xconf "github.com/prismchain/prism/common/config"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/logger"
	"github.com/prismchain/prism/prep"
	sbase "github.com/prismchain/prism/state/base"
	"github.com/prismchain/prism/state/rcdb"
	"github.com/prismchain/prism/state/wal"
	"github.com/prismchain/prism/storage/leveldb"
)

const testCalcPeriod = 100

func newTestDelegator(t *testing.T) (*Delegator, *prep.Storage, *sbase.ExecCtx) {
	logger.InitLogWithConf(logger.GetDefLogConf(), t.TempDir())
	log, err := logger.NewLogger("", "test")
	if err != nil {
		t.Fatal(err)
	}

	db, err := leveldb.NewLDBDatabase(filepath.Join(t.TempDir(), "state"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	preps := prep.NewStorage(db)
	delegator, err := NewDelegator(db, preps, testCalcPeriod, log)
	if err != nil {
		t.Fatal("create delegator failed", err)
	}

	ctx, err := sbase.NewExecCtx(&xconf.EnvConf{}, lbase.LatestRevision)
	if err != nil {
		t.Fatal(err)
	}
	return delegator, preps, ctx
}

func putTestTerm(t *testing.T, preps *prep.Storage, ctx *sbase.ExecCtx) *prep.Term {
	addr, _ := lbase.AddressFromHex("0x00000000000000000000000000000000000000aa")
	term := &prep.Term{
		Sequence:         1,
		StartBlockHeight: 1,
		Period:           testCalcPeriod,
		IRep:             big.NewInt(50000),
		RRep:             big.NewInt(1200),
		Validators:       []lbase.Address{addr},
	}
	if err := preps.PutTerms(ctx, nil, term); err != nil {
		t.Fatal(err)
	}
	return term
}

func hasKey(records []wal.Record, key []byte) bool {
	for _, record := range records {
		if bytes.Equal(record.Key, key) {
			return true
		}
	}
	return false
}

func TestGenesisUpdateDB(t *testing.T) {
	delegator, _, ctx := newTestDelegator(t)
	block := &lbase.BlockInfo{Height: 0}

	records, err := delegator.GenesisUpdateDB(ctx, block)
	if err != nil {
		t.Fatal("genesis update failed", err)
	}
	if !hasKey(records, headerKey) || !hasKey(records, MakeGVKey(0)) {
		t.Error("genesis should emit header and gv records", records)
	}

	next, err := delegator.NextCalcHeight()
	if err != nil || next != testCalcPeriod {
		t.Error("next calc height wrong", next, err)
	}
}

func TestUpdateDBWithinPeriod(t *testing.T) {
	delegator, preps, ctx := newTestDelegator(t)
	putTestTerm(t, preps, ctx)

	if _, err := delegator.GenesisUpdateDB(ctx, &lbase.BlockInfo{Height: 0}); err != nil {
		t.Fatal(err)
	}

	block := &lbase.BlockInfo{Height: 50}
	records, err := delegator.UpdateDB(ctx, block)
	if err != nil {
		t.Fatal("update failed", err)
	}
	if len(records) != 1 || !hasKey(records, rcdb.MakeBlockProduceInfoKey(50)) {
		t.Error("mid period block should emit only produce info", records)
	}

	next, _ := delegator.NextCalcHeight()
	if next != testCalcPeriod {
		t.Error("mid period block must not advance the period", next)
	}
}

func TestUpdateDBPeriodRotation(t *testing.T) {
	delegator, preps, ctx := newTestDelegator(t)
	putTestTerm(t, preps, ctx)

	if _, err := delegator.GenesisUpdateDB(ctx, &lbase.BlockInfo{Height: 0}); err != nil {
		t.Fatal(err)
	}

	block := &lbase.BlockInfo{Height: testCalcPeriod + 1}
	records, err := delegator.UpdateDB(ctx, block)
	if err != nil {
		t.Fatal("update failed", err)
	}
	if !hasKey(records, rcdb.MakeBlockProduceInfoKey(block.Height)) ||
		!hasKey(records, headerKey) || !hasKey(records, MakeGVKey(block.Height)) {
		t.Error("rotation block should emit produce info, header and gv", records)
	}

	next, _ := delegator.NextCalcHeight()
	if next != block.Height+testCalcPeriod {
		t.Error("rotation must advance the period", next)
	}
}

func TestUpdateDBWithoutTerm(t *testing.T) {
	delegator, _, ctx := newTestDelegator(t)

	if _, err := delegator.GenesisUpdateDB(ctx, &lbase.BlockInfo{Height: 0}); err != nil {
		t.Fatal(err)
	}

	// no term in effect, nothing to attribute block production to
	records, err := delegator.UpdateDB(ctx, &lbase.BlockInfo{Height: 10})
	if err != nil {
		t.Fatal("update failed", err)
	}
	if len(records) != 0 {
		t.Error("no produce info without a term", records)
	}
}
