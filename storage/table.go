package storage

// table wraps a Database with a key prefix so multiple sub tables
// can share one physical database
type table struct {
	db     Database
	prefix string
}

// NewTable returns a Database view in which every key is prepended with prefix
func NewTable(db Database, prefix string) Database {
	return &table{
		db:     db,
		prefix: prefix,
	}
}

func (t *table) wrap(key []byte) []byte {
	return append([]byte(t.prefix), key...)
}

func (t *table) Open(path string, options map[string]interface{}) error {
	return t.db.Open(path, options)
}

func (t *table) Put(key []byte, value []byte) error {
	return t.db.Put(t.wrap(key), value)
}

func (t *table) Get(key []byte) ([]byte, error) {
	return t.db.Get(t.wrap(key))
}

func (t *table) Has(key []byte) (bool, error) {
	return t.db.Has(t.wrap(key))
}

func (t *table) Delete(key []byte) error {
	return t.db.Delete(t.wrap(key))
}

func (t *table) Close() {
	// the underlying database is shared, owner closes it
}

func (t *table) NewBatch() Batch {
	return &tableBatch{batch: t.db.NewBatch(), prefix: t.prefix}
}

func (t *table) NewIteratorWithRange(start []byte, limit []byte) Iterator {
	return &tableIterator{
		iter:   t.db.NewIteratorWithRange(t.wrap(start), t.wrap(limit)),
		prefix: len(t.prefix),
	}
}

func (t *table) NewIteratorWithPrefix(prefix []byte) Iterator {
	return &tableIterator{
		iter:   t.db.NewIteratorWithPrefix(t.wrap(prefix)),
		prefix: len(t.prefix),
	}
}

type tableBatch struct {
	batch  Batch
	prefix string
}

func (t *tableBatch) wrap(key []byte) []byte {
	return append([]byte(t.prefix), key...)
}

func (t *tableBatch) ValueSize() int {
	return t.batch.ValueSize()
}

func (t *tableBatch) Write() error {
	return t.batch.Write()
}

func (t *tableBatch) Reset() {
	t.batch.Reset()
}

func (t *tableBatch) Put(key []byte, value []byte) error {
	return t.batch.Put(t.wrap(key), value)
}

func (t *tableBatch) Delete(key []byte) error {
	return t.batch.Delete(t.wrap(key))
}

func (t *tableBatch) PutIfAbsent(key []byte, value []byte) error {
	return t.batch.PutIfAbsent(t.wrap(key), value)
}

func (t *tableBatch) Exist(key []byte) bool {
	return t.batch.Exist(t.wrap(key))
}

type tableIterator struct {
	iter   Iterator
	prefix int
}

func (t *tableIterator) Key() []byte {
	key := t.iter.Key()
	if len(key) < t.prefix {
		return nil
	}
	return key[t.prefix:]
}

func (t *tableIterator) Value() []byte {
	return t.iter.Value()
}

func (t *tableIterator) Next() bool {
	return t.iter.Next()
}

func (t *tableIterator) Prev() bool {
	return t.iter.Prev()
}

func (t *tableIterator) Last() bool {
	return t.iter.Last()
}

func (t *tableIterator) First() bool {
	return t.iter.First()
}

func (t *tableIterator) Error() error {
	return t.iter.Error()
}

func (t *tableIterator) Release() {
	t.iter.Release()
}
