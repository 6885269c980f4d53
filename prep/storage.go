package prep

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/prismchain/prism/common/cache"
	lbase "github.com/prismchain/prism/ledger/base"
	sbase "github.com/prismchain/prism/state/base"
	"github.com/prismchain/prism/storage"
)

// hot record cache size, roughly the active validator set plus candidates
const prepCacheSize = 200

// keys inside the prep table, next to the 0x00 prefixed record keys
var (
	registrationFeeKey = []byte("prf")
	termKeys           = [2][]byte{[]byte("term0"), []byte("term1")}
)

const feeRecordVersion = 0

type feeRecord struct {
	Version uint64
	Fee     *big.Int
}

// Storage is the P-Rep view over the state database
type Storage struct {
	table           storage.Database
	recordCache     *cache.LRUCache
	registrationFee *big.Int
}

func NewStorage(db storage.Database) *Storage {
	return &Storage{
		table:       storage.NewTable(db, lbase.PRepTablePrefix),
		recordCache: cache.NewLRUCache(prepCacheSize),
	}
}

// Open bootstraps the registration fee: the stored value wins, the
// default is written only on first open. Calling Open again is a no-op.
func (t *Storage) Open(ctx *sbase.ExecCtx, defaultFee *big.Int) error {
	stored, err := t.getRegistrationFee()
	if err != nil {
		return err
	}
	if stored != nil {
		t.registrationFee = stored
		return nil
	}

	if defaultFee == nil {
		defaultFee = new(big.Int)
	}
	if err = t.putRegistrationFee(defaultFee); err != nil {
		return err
	}
	t.registrationFee = defaultFee
	return nil
}

// RegistrationFee returns the fee cached by Open
func (t *Storage) RegistrationFee() *big.Int {
	return t.registrationFee
}

func (t *Storage) getRegistrationFee() (*big.Int, error) {
	value, err := t.table.Get(registrationFeeKey)
	if storage.ErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get registration fee failed.err:%v", err)
	}

	var record feeRecord
	if err = rlp.DecodeBytes(value, &record); err != nil {
		return nil, fmt.Errorf("%w: decode fee failed.err:%v", ErrCorruptedRecord, err)
	}
	if record.Version != feeRecordVersion {
		return nil, fmt.Errorf("%w: unknown fee version %d", ErrCorruptedRecord, record.Version)
	}
	return record.Fee, nil
}

func (t *Storage) putRegistrationFee(fee *big.Int) error {
	value, err := rlp.EncodeToBytes(&feeRecord{Version: feeRecordVersion, Fee: fee})
	if err != nil {
		return fmt.Errorf("encode fee failed.err:%v", err)
	}
	return t.table.Put(registrationFeeKey, value)
}

// GetPRep loads the record of an address. The stored address is cross
// checked against the key address, a mismatch means a corrupted store.
func (t *Storage) GetPRep(ctx *sbase.ExecCtx, addr lbase.Address) (*PRep, error) {
	if cached, ok := t.recordCache.Get(addr.Hex()); ok {
		return cached.(*PRep).Clone(), nil
	}

	value, err := t.table.Get(MakeKey(addr))
	if storage.ErrNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrPRepNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get prep failed.addr:%s,err:%v", addr, err)
	}

	prep, err := PRepFromBytes(value)
	if err != nil {
		return nil, err
	}
	if !prep.Address.Equal(addr) {
		return nil, fmt.Errorf("%w: address mismatch, key %s record %s",
			ErrCorruptedRecord, addr, prep.Address)
	}
	t.recordCache.Add(addr.Hex(), prep)
	// the caller owns the returned record, the cached one stays pristine
	return prep.Clone(), nil
}

// PutPRep writes the record in the version of the context revision
func (t *Storage) PutPRep(ctx *sbase.ExecCtx, prep *PRep) error {
	value, err := prep.Bytes(ctx.Revision)
	if err != nil {
		return fmt.Errorf("encode prep failed.addr:%s,err:%v", prep.Address, err)
	}
	// drop the cached copy, the stored version may differ from it
	t.recordCache.Del(prep.Address.Hex())
	return t.table.Put(MakeKey(prep.Address), value)
}

func (t *Storage) DeletePRep(ctx *sbase.ExecCtx, addr lbase.Address) error {
	t.recordCache.Del(addr.Hex())
	return t.table.Delete(MakeKey(addr))
}

// GetPRepIterator walks the P-Rep records in key order. Keys of any
// other shape under the table are skipped, they are not P-Rep records.
func (t *Storage) GetPRepIterator() *PRepIterator {
	return &PRepIterator{
		it: t.table.NewIteratorWithPrefix([]byte{prepKeyPrefix}),
	}
}

// PRepIterator yields decoded P-Rep records. A decode failure stops the
// walk and surfaces via Error.
type PRepIterator struct {
	it      storage.Iterator
	current *PRep
	err     error
}

func (t *PRepIterator) Next() bool {
	if t.err != nil {
		return false
	}
	for t.it.Next() {
		if !IsPRepKey(t.it.Key()) {
			continue
		}
		prep, err := PRepFromBytes(t.it.Value())
		if err != nil {
			t.err = err
			return false
		}
		t.current = prep
		return true
	}
	return false
}

func (t *PRepIterator) Value() *PRep {
	return t.current
}

func (t *PRepIterator) Error() error {
	if t.err != nil {
		return t.err
	}
	return t.it.Error()
}

func (t *PRepIterator) Release() {
	t.it.Release()
}

// GetTerms returns the previous and the current term. An absent slot
// decodes to nil.
func (t *Storage) GetTerms(ctx *sbase.ExecCtx) (prevTerm, term *Term, err error) {
	prevTerm, err = t.getTerm(termKeys[0])
	if err != nil {
		return nil, nil, err
	}
	term, err = t.getTerm(termKeys[1])
	if err != nil {
		return nil, nil, err
	}
	return prevTerm, term, nil
}

// PutTerms writes the two term slots pairwise, nil slots are left
// untouched
func (t *Storage) PutTerms(ctx *sbase.ExecCtx, prevTerm, term *Term) error {
	for i, slot := range [2]*Term{prevTerm, term} {
		if slot == nil {
			continue
		}
		value, err := slot.Bytes()
		if err != nil {
			return fmt.Errorf("encode term failed.err:%v", err)
		}
		if err = t.table.Put(termKeys[i], value); err != nil {
			return fmt.Errorf("put term failed.err:%v", err)
		}
	}
	return nil
}

func (t *Storage) getTerm(key []byte) (*Term, error) {
	value, err := t.table.Get(key)
	if storage.ErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get term failed.err:%v", err)
	}
	return TermFromBytes(value)
}
