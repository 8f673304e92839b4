// Package store implements the KV Store & Batch (spec §4.1): a bbolt-backed
// persistent map for block bodies, block headers, block-sum records, and
// the four distinguished tips. Every pipeline invocation opens exactly one
// Batch; all of that invocation's reads and writes flow through it, and its
// Commit is all-or-nothing.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"wimblechain.dev/node/internal/chain"
)

var (
	bucketBlocks    = []byte("blocks")
	bucketHeaders   = []byte("headers")
	bucketBlockSums = []byte("block_sums")
	bucketTips      = []byte("tips")
)

const (
	tipKeyHead       = "head"
	tipKeyHeaderHead = "header_head"
	tipKeySyncHead   = "sync_head"
	tipKeyBodyTail   = "body_tail"
)

// Store owns the on-disk bbolt database backing all four namespaces of
// spec §6: blocks/<hash>, headers/<hash>, block_sums/<hash>,
// tips/{head,header_head,sync_head,body_tail}.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the KV store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocks, bucketHeaders, bucketBlockSums, bucketTips} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewBatch opens a writable Batch. The caller must call Commit or Rollback
// exactly once.
func (s *Store) NewBatch() (*Batch, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, chain.Wrap(chain.KindStore, "begin write batch", err)
	}
	return &Batch{tx: tx, store: s}, nil
}

// NewReadBatch opens a read-only Batch, used for queries outside the
// pipeline (e.g. the REST facade).
func (s *Store) NewReadBatch() (*Batch, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, chain.Wrap(chain.KindStore, "begin read batch", err)
	}
	return &Batch{tx: tx, store: s, readOnly: true}, nil
}
