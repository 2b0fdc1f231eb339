package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

func partitionBucket(name string) []byte {
	return []byte("cache:" + name)
}

// CacheNames lists the registered cache partitions in name order.
func (s *Store) CacheNames() ([]string, error) {
	var names []string
	err := s.view(func(tx *bolt.Tx) error {
		reg := tx.Bucket(partitionsBucket)
		if reg == nil {
			return nil
		}
		return reg.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// OpenCache creates the named partition if it does not exist yet.
func (s *Store) OpenCache(name string) error {
	return s.update(func(tx *bolt.Tx) error {
		_, err := openPartition(tx, name)
		return err
	})
}

func openPartition(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("cache partition name is empty")
	}
	reg := tx.Bucket(partitionsBucket)
	if reg == nil {
		return nil, fmt.Errorf("cache registry missing")
	}
	if reg.Get([]byte(name)) == nil {
		stamp, err := time.Now().MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := reg.Put([]byte(name), stamp); err != nil {
			return nil, err
		}
	}
	return tx.CreateBucketIfNotExists(partitionBucket(name))
}

// DeleteCache drops a partition and every response in it. Deleting an
// unknown partition is not an error.
func (s *Store) DeleteCache(name string) error {
	return s.update(func(tx *bolt.Tx) error {
		if reg := tx.Bucket(partitionsBucket); reg != nil {
			if err := reg.Delete([]byte(name)); err != nil {
				return err
			}
		}
		err := tx.DeleteBucket(partitionBucket(name))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// CachePut stores resp in the named partition, creating it on demand.
func (s *Store) CachePut(name string, resp *CachedResponse) error {
	if resp.Key == "" {
		resp.Key = CacheKey(resp.Method, resp.URL)
	}
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		b, err := openPartition(tx, name)
		if err != nil {
			return err
		}
		return b.Put([]byte(resp.Key), data)
	})
}

// CacheMatch looks key up in a single partition. A miss returns nil.
func (s *Store) CacheMatch(name, key string) (*CachedResponse, error) {
	var resp *CachedResponse
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		resp, err = matchIn(tx, name, key)
		return err
	})
	return resp, err
}

// CacheMatchAny searches every partition in name order and returns the
// first hit.
func (s *Store) CacheMatchAny(key string) (*CachedResponse, error) {
	names, err := s.CacheNames()
	if err != nil {
		return nil, err
	}
	var resp *CachedResponse
	err = s.view(func(tx *bolt.Tx) error {
		for _, name := range names {
			r, err := matchIn(tx, name, key)
			if err != nil {
				return err
			}
			if r != nil {
				resp = r
				return nil
			}
		}
		return nil
	})
	return resp, err
}

func matchIn(tx *bolt.Tx, name, key string) (*CachedResponse, error) {
	b := tx.Bucket(partitionBucket(name))
	if b == nil {
		return nil, nil
	}
	data := b.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var resp CachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding cached response %s: %w", key, err)
	}
	return &resp, nil
}

// CacheKeys lists the request keys held in a partition.
func (s *Store) CacheKeys(name string) ([]string, error) {
	var keys []string
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(partitionBucket(name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
