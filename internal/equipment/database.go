package equipment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const draftBucketName = "drafts"

// ErrDraftNotFound is returned when no draft has the requested id.
var ErrDraftNotFound = errors.New("draft not found")

// DB defines the interface for draft persistence
type DB interface {
	// SaveDraft creates or replaces a draft
	SaveDraft(draft *Draft) error

	// GetDraft retrieves a draft by ID
	GetDraft(id string) (*Draft, error)

	// ListDrafts returns all drafts
	ListDrafts() ([]*Draft, error)

	// DeleteDraft removes a draft
	DeleteDraft(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(draftBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveDraft implements DB
func (b *BoltDB) SaveDraft(draft *Draft) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(draft)
		if err != nil {
			return fmt.Errorf("marshaling draft: %w", err)
		}
		return tx.Bucket([]byte(draftBucketName)).Put([]byte(draft.ID), data)
	})
}

// GetDraft implements DB
func (b *BoltDB) GetDraft(id string) (*Draft, error) {
	var draft *Draft
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(draftBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
		}
		return json.Unmarshal(data, &draft)
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// ListDrafts implements DB
func (b *BoltDB) ListDrafts() ([]*Draft, error) {
	drafts := make([]*Draft, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(draftBucketName)).ForEach(func(k, v []byte) error {
			var draft Draft
			if err := json.Unmarshal(v, &draft); err != nil {
				return fmt.Errorf("unmarshaling draft: %w", err)
			}
			drafts = append(drafts, &draft)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// DeleteDraft implements DB
func (b *BoltDB) DeleteDraft(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(draftBucketName)).Delete([]byte(id))
	})
}

// Close implements DB
func (b *BoltDB) Close() error {
	return b.db.Close()
}
