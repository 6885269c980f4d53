// Package wal implements the per block write ahead log used for
// crash recovery and rollback. A log file covers the batched mutations
// destined for the state database and the reward calculation database,
// tagged with the identity of the block they belong to.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/prismchain/prism/common/metrics"
	lbase "github.com/prismchain/prism/ledger/base"
	"github.com/prismchain/prism/storage"
)

const walVersion = 0

// ExpectedBatchCount is the batch count of a well formed log:
// one state batch and one reward calc batch
const ExpectedBatchCount = 2

var walMagic = []byte("PWAL")

var (
	ErrCorruptedWAL  = errors.New("corrupted wal file")
	ErrHeaderMissing = errors.New("wal header not written")
	ErrBatchMissing  = errors.New("wal batch not found")
)

// WALState is the state flag bitset recorded with a log
type WALState uint32

const (
	// StateCalcPeriodEndBlock marks that the block ends a calculation period
	StateCalcPeriodEndBlock WALState = 1 << iota
)

// DBType tags which database a batch belongs to
type DBType uint8

const (
	DBTypeState DBType = iota
	DBTypeRC
)

func (t DBType) String() string {
	switch t {
	case DBTypeState:
		return "state"
	case DBTypeRC:
		return "rc"
	}
	return "unknown"
}

// Record is a single pending mutation. Delete set means the key is
// removed, otherwise Value is written.
type Record struct {
	Key    []byte
	Value  []byte
	Delete bool
}

type walHeader struct {
	Version   uint32
	State     uint32
	Height    uint64
	Hash      []byte
	PrevHash  []byte
	Timestamp uint64
	Generator []byte
}

// Writer appends a header and batch frames to a new log file
type Writer struct {
	file       *os.File
	headerDone bool
}

func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create wal file failed.path:%s,err:%v", path, err)
	}
	return &Writer{file: file}, nil
}

// WriteHeader must be called exactly once before any batch
func (w *Writer) WriteHeader(state WALState, block *lbase.BlockInfo) error {
	if w.headerDone {
		return fmt.Errorf("wal header already written")
	}
	if block == nil {
		return fmt.Errorf("nil block for wal header")
	}

	header := &walHeader{
		Version:   walVersion,
		State:     uint32(state),
		Height:    uint64(block.Height),
		Hash:      block.Hash,
		PrevHash:  block.PrevHash,
		Timestamp: uint64(block.Timestamp),
		Generator: block.Generator.Bytes(),
	}
	raw, err := rlp.EncodeToBytes(header)
	if err != nil {
		return fmt.Errorf("encode wal header failed.err:%v", err)
	}

	if _, err = w.file.Write(walMagic); err != nil {
		return err
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(raw)))
	if _, err = w.file.Write(size[:]); err != nil {
		return err
	}
	if _, err = w.file.Write(raw); err != nil {
		return err
	}

	w.headerDone = true
	return nil
}

// WriteBatch appends one batch frame. Frames are applied in write order
// on replay, so the caller controls replay ordering here.
func (w *Writer) WriteBatch(tag DBType, records []Record) error {
	if !w.headerDone {
		return ErrHeaderMissing
	}

	raw, err := rlp.EncodeToBytes(records)
	if err != nil {
		return fmt.Errorf("encode wal batch failed.err:%v", err)
	}
	compressed := snappy.Encode(nil, raw)

	frame := make([]byte, 5+len(compressed))
	frame[0] = byte(tag)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(compressed)))
	copy(frame[5:], compressed)

	if _, err = w.file.Write(frame); err != nil {
		return fmt.Errorf("write wal batch failed.err:%v", err)
	}

	metrics.WALBytesCounter.WithLabelValues(tag.String()).Add(float64(len(frame)))
	return nil
}

func (w *Writer) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type walBatch struct {
	tag     DBType
	records []Record
}

// Reader decodes a log file written by Writer
type Reader struct {
	file    *os.File
	state   WALState
	block   *lbase.BlockInfo
	batches []walBatch
}

func NewReader() *Reader {
	return &Reader{}
}

// Open reads and decodes the whole log file.
// A log covers a single block so the content is small enough to hold.
func (r *Reader) Open(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open wal file failed.path:%s,err:%v", path, err)
	}
	r.file = file

	if err = r.readHeader(); err != nil {
		return err
	}
	return r.readBatches()
}

func (r *Reader) readHeader() error {
	magic := make([]byte, len(walMagic))
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return ErrCorruptedWAL
	}
	if string(magic) != string(walMagic) {
		return ErrCorruptedWAL
	}

	var size [4]byte
	if _, err := io.ReadFull(r.file, size[:]); err != nil {
		return ErrCorruptedWAL
	}
	raw := make([]byte, binary.BigEndian.Uint32(size[:]))
	if _, err := io.ReadFull(r.file, raw); err != nil {
		return ErrCorruptedWAL
	}

	header := new(walHeader)
	if err := rlp.DecodeBytes(raw, header); err != nil {
		return ErrCorruptedWAL
	}
	if header.Version != walVersion {
		return fmt.Errorf("unsupported wal version:%d", header.Version)
	}

	generator, err := lbase.AddressFromBytes(header.Generator)
	if err != nil {
		return ErrCorruptedWAL
	}
	r.state = WALState(header.State)
	r.block = &lbase.BlockInfo{
		Height:    int64(header.Height),
		Hash:      header.Hash,
		PrevHash:  header.PrevHash,
		Timestamp: int64(header.Timestamp),
		Generator: generator,
	}
	return nil
}

func (r *Reader) readBatches() error {
	for {
		var head [5]byte
		_, err := io.ReadFull(r.file, head[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ErrCorruptedWAL
		}

		compressed := make([]byte, binary.BigEndian.Uint32(head[1:5]))
		if _, err = io.ReadFull(r.file, compressed); err != nil {
			return ErrCorruptedWAL
		}
		raw, err := snappy.Decode(nil, compressed)
		if err != nil {
			return ErrCorruptedWAL
		}

		var records []Record
		if err = rlp.DecodeBytes(raw, &records); err != nil {
			return ErrCorruptedWAL
		}
		r.batches = append(r.batches, walBatch{tag: DBType(head[0]), records: records})
	}
}

// State returns the state flag bitset of the log
func (r *Reader) State() WALState {
	return r.state
}

// Block returns the identity of the block the log was captured for
func (r *Reader) Block() *lbase.BlockInfo {
	return r.block
}

// BatchCount returns the count of batch frames in the log
func (r *Reader) BatchCount() int {
	return len(r.batches)
}

// Batch returns the records of the first batch tagged with tag
func (r *Reader) Batch(tag DBType) ([]Record, error) {
	for _, batch := range r.batches {
		if batch.tag == tag {
			return batch.records, nil
		}
	}
	return nil, fmt.Errorf("%w:%s", ErrBatchMissing, tag)
}

// ApplyTo replays the batch tagged with tag into db as one atomic write
func (r *Reader) ApplyTo(db storage.Database, tag DBType) error {
	records, err := r.Batch(tag)
	if err != nil {
		return err
	}

	batch := db.NewBatch()
	for _, rec := range records {
		if rec.Delete {
			if err := batch.Delete(rec.Key); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put(rec.Key, rec.Value); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
