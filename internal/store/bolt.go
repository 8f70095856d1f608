package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLights    = []byte("lights")
	bucketRegistrar = []byte("registrar")
	keyCursor       = []byte("cursor")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketLights, bucketRegistrar} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveLight(rec *LightRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("save light: empty key")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLights)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLights)
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Key), data)
	})
}

func (s *BoltStore) GetLight(key string) (*LightRecord, error) {
	var rec LightRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLights)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLights)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("light %s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) DeleteLight(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLights)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLights)
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) ListLights() ([]*LightRecord, error) {
	var lights []*LightRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLights)
		if b == nil {
			return nil
		}
		lights = make([]*LightRecord, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var rec LightRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("light %s: %w", k, err)
			}
			lights = append(lights, &rec)
			return nil
		})
	})
	return lights, err
}

func (s *BoltStore) UpdateLight(key string, fn func(rec *LightRecord) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLights)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLights)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("light %s: %w", key, ErrNotFound)
		}
		var rec LightRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.Key = key
		rec.UpdatedAt = time.Now()
		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), out)
	})
}

func (s *BoltStore) SaveCursor(id uint16) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistrar)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRegistrar)
		}
		data, err := json.Marshal(registrarState{Cursor: id})
		if err != nil {
			return err
		}
		return b.Put(keyCursor, data)
	})
}

func (s *BoltStore) GetCursor() (uint16, error) {
	var st registrarState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistrar)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRegistrar)
		}
		data := b.Get(keyCursor)
		if data == nil {
			return fmt.Errorf("registrar cursor: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return 0, err
	}
	return st.Cursor, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
