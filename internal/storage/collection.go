package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// index is a secondary lookup kept in its own bucket. Entries are keyed by
// value + 0x00 + primary key so a cursor walks them in value order.
type index[T any] struct {
	name  string
	value func(*T) []byte
}

type collection[T any] struct {
	name    string
	key     func(*T) []byte
	indexes []index[T]
}

func (c collection[T]) bucket() []byte {
	return []byte(c.name)
}

func (c collection[T]) indexBucket(name string) []byte {
	return []byte(c.name + ".idx." + name)
}

func (c collection[T]) buckets() [][]byte {
	out := [][]byte{c.bucket()}
	for _, idx := range c.indexes {
		out = append(out, c.indexBucket(idx.name))
	}
	return out
}

func (c collection[T]) records(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(c.bucket())
	if b == nil {
		return nil, fmt.Errorf("bucket %s missing", c.name)
	}
	return b, nil
}

func (c collection[T]) get(tx *bolt.Tx, key []byte) (*T, error) {
	b, err := c.records(tx)
	if err != nil {
		return nil, err
	}
	data := b.Get(key)
	if data == nil {
		return nil, nil
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", c.name, key, err)
	}
	return &rec, nil
}

func (c collection[T]) exists(tx *bolt.Tx, key []byte) bool {
	b := tx.Bucket(c.bucket())
	return b != nil && b.Get(key) != nil
}

// put writes rec and refreshes its index entries. With insertOnly an
// existing key is reported as ErrConflict.
func (c collection[T]) put(tx *bolt.Tx, rec *T, insertOnly bool) error {
	b, err := c.records(tx)
	if err != nil {
		return err
	}
	key := c.key(rec)
	if len(key) == 0 {
		return fmt.Errorf("%s: empty key", c.name)
	}

	if old := b.Get(key); old != nil {
		if insertOnly {
			return fmt.Errorf("%s/%s: %w", c.name, key, ErrConflict)
		}
		var prev T
		if err := json.Unmarshal(old, &prev); err == nil {
			if err := c.unindex(tx, key, &prev); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := b.Put(key, data); err != nil {
		return err
	}
	return c.reindex(tx, key, rec)
}

func (c collection[T]) remove(tx *bolt.Tx, key []byte) error {
	b, err := c.records(tx)
	if err != nil {
		return err
	}
	old := b.Get(key)
	if old == nil {
		return nil
	}
	var prev T
	if err := json.Unmarshal(old, &prev); err == nil {
		if err := c.unindex(tx, key, &prev); err != nil {
			return err
		}
	}
	return b.Delete(key)
}

func (c collection[T]) reindex(tx *bolt.Tx, key []byte, rec *T) error {
	for _, idx := range c.indexes {
		ib := tx.Bucket(c.indexBucket(idx.name))
		if ib == nil {
			continue
		}
		if err := ib.Put(indexKey(idx.value(rec), key), key); err != nil {
			return err
		}
	}
	return nil
}

func (c collection[T]) unindex(tx *bolt.Tx, key []byte, rec *T) error {
	for _, idx := range c.indexes {
		ib := tx.Bucket(c.indexBucket(idx.name))
		if ib == nil {
			continue
		}
		if err := ib.Delete(indexKey(idx.value(rec), key)); err != nil {
			return err
		}
	}
	return nil
}

// all returns every record in primary key order.
func (c collection[T]) all(tx *bolt.Tx) ([]*T, error) {
	b, err := c.records(tx)
	if err != nil {
		return nil, err
	}
	var out []*T
	err = b.ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decoding %s/%s: %w", c.name, k, err)
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

// scan walks an index. A nil value visits every entry; otherwise only
// entries whose indexed value equals value.
func (c collection[T]) scan(tx *bolt.Tx, indexName string, value []byte, reverse bool) ([]*T, error) {
	ib := tx.Bucket(c.indexBucket(indexName))
	if ib == nil {
		return nil, fmt.Errorf("index %s.%s missing", c.name, indexName)
	}

	var keys [][]byte
	var prefix []byte
	if value != nil {
		prefix = append(append([]byte{}, value...), 0)
	}

	cur := ib.Cursor()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		keys = append(keys, append([]byte{}, v...))
	}
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	out := make([]*T, 0, len(keys))
	for _, key := range keys {
		rec, err := c.get(tx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// scanRange walks index entries whose value lies in [from, to). A nil to
// leaves the range open-ended.
func (c collection[T]) scanRange(tx *bolt.Tx, indexName string, from, to []byte) ([]*T, error) {
	ib := tx.Bucket(c.indexBucket(indexName))
	if ib == nil {
		return nil, fmt.Errorf("index %s.%s missing", c.name, indexName)
	}

	var out []*T
	cur := ib.Cursor()
	for k, v := cur.Seek(from); k != nil; k, v = cur.Next() {
		if to != nil && bytes.Compare(k, to) >= 0 {
			break
		}
		rec, err := c.get(tx, v)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// clear deletes every record and index entry. Bucket sequences survive so
// auto-increment keys stay monotonic.
func (c collection[T]) clear(tx *bolt.Tx) error {
	for _, name := range c.buckets() {
		b := tx.Bucket(name)
		if b == nil {
			continue
		}
		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte{}, k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c collection[T]) count(tx *bolt.Tx) int {
	b := tx.Bucket(c.bucket())
	if b == nil {
		return 0
	}
	return b.Stats().KeyN
}

func indexKey(value, key []byte) []byte {
	out := make([]byte, 0, len(value)+1+len(key))
	out = append(out, value...)
	out = append(out, 0)
	return append(out, key...)
}

// timeValue encodes t so byte order matches chronological order.
func timeValue(t time.Time) []byte {
	buf := make([]byte, 8)
	if t.IsZero() {
		return buf
	}
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano())^(1<<63))
	return buf
}

func uint64Key(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
