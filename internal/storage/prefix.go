package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// Each record family (eligibility, events, ledger) lives in its own
// namespace within a single underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: cloneBytes(prefix)}
}

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }

// ForEach iterates over keys in this namespace. Keys passed to fn have the
// namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close is a no-op; the inner DB owns the lifecycle.
func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a namespaced batch. Writes are atomic only when the inner
// DB implements Batcher.
func (p *PrefixDB) NewBatch() Batch {
	if b, ok := p.inner.(Batcher); ok {
		return &prefixBatch{inner: b.NewBatch(), db: p}
	}
	return &prefixBatch{db: p}
}

type prefixBatch struct {
	inner Batch // nil: apply writes one by one on Commit
	db    *PrefixDB
	ops   []memoryOp
}

func (pb *prefixBatch) Put(key, value []byte) error {
	if pb.inner != nil {
		return pb.inner.Put(pb.db.key(key), value)
	}
	v := cloneBytes(value)
	if v == nil {
		v = []byte{}
	}
	pb.ops = append(pb.ops, memoryOp{key: string(key), value: v})
	return nil
}

func (pb *prefixBatch) Delete(key []byte) error {
	if pb.inner != nil {
		return pb.inner.Delete(pb.db.key(key))
	}
	pb.ops = append(pb.ops, memoryOp{key: string(key)})
	return nil
}

func (pb *prefixBatch) Commit() error {
	if pb.inner != nil {
		return pb.inner.Commit()
	}
	for _, op := range pb.ops {
		var err error
		if op.value == nil {
			err = pb.db.Delete([]byte(op.key))
		} else {
			err = pb.db.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	pb.ops = nil
	return nil
}
