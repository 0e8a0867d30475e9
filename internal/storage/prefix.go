package storage

// PrefixDB namespaces a DB by prepending a fixed prefix to every key.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB wraps inner under prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: append([]byte{}, prefix...)}
}

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }
func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }
func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }
func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }

// ForEach iterates within the namespace. Keys passed to fn have the
// namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close is a no-op; the inner DB owns its lifecycle.
func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a namespaced batch. It is atomic when the inner DB is a
// Batcher and applies writes one by one otherwise.
func (p *PrefixDB) NewBatch() Batch {
	if b, ok := p.inner.(Batcher); ok {
		return &prefixBatch{inner: b.NewBatch(), db: p}
	}
	return &prefixBatch{db: p}
}

type prefixBatch struct {
	inner Batch // nil when the inner DB cannot batch
	db    *PrefixDB
	ops   []memoryOp
}

func (b *prefixBatch) Put(key, value []byte) error {
	if b.inner != nil {
		return b.inner.Put(b.db.key(key), value)
	}
	b.ops = append(b.ops, memoryOp{key: string(key), value: append([]byte{}, value...)})
	return nil
}

func (b *prefixBatch) Delete(key []byte) error {
	if b.inner != nil {
		return b.inner.Delete(b.db.key(key))
	}
	b.ops = append(b.ops, memoryOp{key: string(key)})
	return nil
}

func (b *prefixBatch) Commit() error {
	if b.inner != nil {
		return b.inner.Commit()
	}
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			err = b.db.Delete([]byte(op.key))
		} else {
			err = b.db.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
