// Package checkpoint is a bbolt-backed key/value store for JobState,
// keyed by thread ID, used to resume a job after an interruption that
// falls short of requiring a full phase-snapshot recovery.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

var bucketName = []byte("jobstate")

// Store wraps a bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists state under threadID, overwriting any prior value.
func (s *Store) Save(threadID string, state *jobstate.JobState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(threadID), data)
	})
}

// Load retrieves the state saved under threadID. found is false if no
// checkpoint exists for that key.
func (s *Store) Load(threadID string) (state *jobstate.JobState, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(threadID))
		if data == nil {
			return nil
		}
		var st jobstate.JobState
		if unmarshalErr := json.Unmarshal(data, &st); unmarshalErr != nil {
			return unmarshalErr
		}
		state = &st
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: load %q: %w", threadID, err)
	}
	return state, found, nil
}

// Delete removes the checkpoint for threadID. A no-op if absent.
func (s *Store) Delete(threadID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(threadID))
	})
}

// FirstThreadID returns the first key found in the bucket, used as a resume
// fallback when a phase snapshot's metadata doesn't carry a thread_id.
func (s *Store) FirstThreadID() (string, bool) {
	var id string
	var found bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		if k, _ := c.First(); k != nil {
			id = string(k)
			found = true
		}
		return nil
	})
	return id, found
}

// ThreadIDs returns every key currently stored, unordered.
func (s *Store) ThreadIDs() []string {
	var ids []string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids
}
