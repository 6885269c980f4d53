// Package leveldb wraps goleveldb as the default kv database driver
package leveldb

import (
	"fmt"
	"sync"

	"github.com/prismchain/prism/storage"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LDBDatabase is a leveldb instance implementing storage.Database
type LDBDatabase struct {
	fn string
	db *leveldb.DB
}

// NewLDBDatabase opens a leveldb instance at path with default options
func NewLDBDatabase(path string, options map[string]interface{}) (*LDBDatabase, error) {
	ldb := new(LDBDatabase)
	if err := ldb.Open(path, options); err != nil {
		return nil, err
	}
	return ldb, nil
}

func setDefaultOptions(options map[string]interface{}) {
	if _, ok := options["cache"]; !ok {
		options["cache"] = 16
	}
	if _, ok := options["fds"]; !ok {
		options["fds"] = 16
	}
}

// Open opens an instance of LDB with parameters (ldb path and other options)
func (ldb *LDBDatabase) Open(path string, options map[string]interface{}) error {
	if options == nil {
		options = make(map[string]interface{})
	}
	setDefaultOptions(options)
	cache := options["cache"].(int)
	fds := options["fds"].(int)

	// Open the db and recover any potential corruptions
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: fds,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	// (Re)check for errors and abort if opening of the db failed
	if err != nil {
		return fmt.Errorf("open leveldb failed.path:%s,err:%v", path, err)
	}
	ldb.fn = path
	ldb.db = db
	return nil
}

// Path returns the path to the database directory
func (ldb *LDBDatabase) Path() string {
	return ldb.fn
}

func (ldb *LDBDatabase) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LDBDatabase) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (ldb *LDBDatabase) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LDBDatabase) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LDBDatabase) Close() {
	ldb.db.Close()
}

func (ldb *LDBDatabase) NewBatch() storage.Batch {
	return &ldbBatch{
		db:    ldb.db,
		batch: new(leveldb.Batch),
		keys:  make(map[string]struct{}),
	}
}

func (ldb *LDBDatabase) NewIteratorWithRange(start []byte, limit []byte) storage.Iterator {
	return &ldbIterator{
		iter: ldb.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil),
	}
}

func (ldb *LDBDatabase) NewIteratorWithPrefix(prefix []byte) storage.Iterator {
	return &ldbIterator{
		iter: ldb.db.NewIterator(util.BytesPrefix(prefix), nil),
	}
}

// ldbBatch collects puts and deletes and writes them atomically
type ldbBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	keys  map[string]struct{}
	size  int
	mutex sync.Mutex
}

func (b *ldbBatch) Put(key []byte, value []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.batch.Put(key, value)
	b.keys[string(key)] = struct{}{}
	b.size += len(value)
	return nil
}

func (b *ldbBatch) Delete(key []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.batch.Delete(key)
	b.keys[string(key)] = struct{}{}
	b.size++
	return nil
}

// PutIfAbsent puts a key-value pair only if the key was not written in this batch
func (b *ldbBatch) PutIfAbsent(key []byte, value []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.keys[string(key)]; ok {
		return fmt.Errorf("duplicated key in batch.key:%x", key)
	}
	b.batch.Put(key, value)
	b.keys[string(key)] = struct{}{}
	b.size += len(value)
	return nil
}

// Exist reports whether the key was already written in this batch
func (b *ldbBatch) Exist(key []byte) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	_, ok := b.keys[string(key)]
	return ok
}

func (b *ldbBatch) ValueSize() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.size
}

// Write applies the batch atomically, a reader never observes a part of it
func (b *ldbBatch) Write() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.db.Write(b.batch, nil)
}

func (b *ldbBatch) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.batch.Reset()
	b.keys = make(map[string]struct{})
	b.size = 0
}

type ldbIterator struct {
	iter iterator.Iterator
}

func (it *ldbIterator) Key() []byte {
	return it.iter.Key()
}

func (it *ldbIterator) Value() []byte {
	return it.iter.Value()
}

func (it *ldbIterator) Next() bool {
	return it.iter.Next()
}

func (it *ldbIterator) Prev() bool {
	return it.iter.Prev()
}

func (it *ldbIterator) First() bool {
	return it.iter.First()
}

func (it *ldbIterator) Last() bool {
	return it.iter.Last()
}

func (it *ldbIterator) Error() error {
	return it.iter.Error()
}

func (it *ldbIterator) Release() {
	it.iter.Release()
}
