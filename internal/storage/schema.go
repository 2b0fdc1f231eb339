package storage

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the newest schema this binary knows how to create.
const SchemaVersion = 2

var (
	metaBucket       = []byte("metadata")
	schemaVersionKey = []byte("schema_version")
	partitionsBucket = []byte("cache.partitions")
)

type migration struct {
	version int
	apply   func(tx *bolt.Tx) error
}

var migrations = []migration{
	{version: 1, apply: createCollections},
	{version: 2, apply: createCacheRegistry},
}

func createCollections(tx *bolt.Tx) error {
	var names [][]byte
	names = append(names, stories.buckets()...)
	names = append(names, favorites.buckets()...)
	names = append(names, pendingActions.buckets()...)
	names = append(names, preferences.buckets()...)

	for _, name := range names {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return nil
}

func createCacheRegistry(tx *bolt.Tx) error {
	_, err := tx.CreateBucketIfNotExists(partitionsBucket)
	return err
}

// migrate applies every migration newer than the recorded version in a
// single transaction. Buckets are only ever created, never dropped.
func migrate(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		current := readSchemaVersion(tx)
		if current > SchemaVersion {
			return fmt.Errorf("database schema v%d is newer than supported v%d", current, SchemaVersion)
		}

		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("schema v%d: %w", m.version, err)
			}
			current = m.version
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(current))
		return meta.Put(schemaVersionKey, buf)
	})
}

func readSchemaVersion(tx *bolt.Tx) int {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return 0
	}
	v := meta.Get(schemaVersionKey)
	if len(v) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(v))
}
