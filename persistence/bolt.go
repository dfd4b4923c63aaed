/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package persistence

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	revisionsBucket = []byte("revisions")
	lastKey         = []byte("last")
)

// BoltStore keeps revisions in a bbolt file. Each runtime owns a top level
// bucket holding a "revisions" bucket (one nested bucket of blobs per
// revision) and the "last" key.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(_ context.Context, runtimeID, revision string, blobs map[string][]byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		rt, err := tx.CreateBucketIfNotExists([]byte(runtimeID))
		if err != nil {
			return err
		}
		revs, err := rt.CreateBucketIfNotExists(revisionsBucket)
		if err != nil {
			return err
		}
		if revs.Bucket([]byte(revision)) != nil {
			if err := revs.DeleteBucket([]byte(revision)); err != nil {
				return err
			}
		}
		b, err := revs.CreateBucket([]byte(revision))
		if err != nil {
			return err
		}
		for id, data := range blobs {
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return rt.Put(lastKey, []byte(revision))
	})
	if err != nil {
		return fmt.Errorf("save revision %s: %w", revision, err)
	}
	return nil
}

func (s *BoltStore) Load(_ context.Context, runtimeID, revision string) (map[string][]byte, error) {
	var blobs map[string][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := s.revision(tx, runtimeID, revision)
		if b == nil {
			return notFound(runtimeID, revision)
		}
		blobs = make(map[string][]byte)
		// values are only valid inside the transaction
		return b.ForEach(func(k, v []byte) error {
			blobs[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

func (s *BoltStore) LastRevision(_ context.Context, runtimeID string) (string, error) {
	var last string
	err := s.db.View(func(tx *bolt.Tx) error {
		rt := tx.Bucket([]byte(runtimeID))
		if rt == nil {
			return notFound(runtimeID, "")
		}
		v := rt.Get(lastKey)
		if v == nil {
			return notFound(runtimeID, "")
		}
		last = string(v)
		return nil
	})
	return last, err
}

// Revisions lists revisions in key order, which is creation order for
// UUIDv7 revisions.
func (s *BoltStore) Revisions(_ context.Context, runtimeID string) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		rt := tx.Bucket([]byte(runtimeID))
		if rt == nil {
			return nil
		}
		revs := rt.Bucket(revisionsBucket)
		if revs == nil {
			return nil
		}
		return revs.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) revision(tx *bolt.Tx, runtimeID, revision string) *bolt.Bucket {
	rt := tx.Bucket([]byte(runtimeID))
	if rt == nil {
		return nil
	}
	revs := rt.Bucket(revisionsBucket)
	if revs == nil {
		return nil
	}
	return revs.Bucket([]byte(revision))
}
