package report

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/unixpickle/essentials"
	bolt "go.etcd.io/bbolt"
)

// A Store keeps reports across runs.
type Store interface {
	Save(r *Report) error
	Load(id string) (*Report, error)

	// List returns every report, newest first.
	List() ([]*Report, error)

	Close() error
}

// MemoryStore is a Store that lives in memory.
type MemoryStore struct {
	lock    sync.Mutex
	reports map[string]*Report
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: map[string]*Report{}}
}

// Save stores a copy of r, replacing any report with
// the same ID.
func (m *MemoryStore) Save(r *Report) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	copied := *r
	m.reports[r.ID] = &copied
	return nil
}

// Load returns a copy of the report with the given ID,
// or an errors.NotExist error.
func (m *MemoryStore) Load(id string) (*Report, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("report %s", id))
	}
	copied := *r
	return &copied, nil
}

// List returns copies of every report, newest first.
func (m *MemoryStore) List() ([]*Report, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	var res []*Report
	for _, r := range m.reports {
		copied := *r
		res = append(res, &copied)
	}
	sortNewestFirst(res)
	return res, nil
}

// Close does nothing.
func (m *MemoryStore) Close() error {
	return nil
}

var reportsBucket = []byte("reports")

// BoltStore is a Store backed by a bbolt database, with one
// JSON-encoded report per key.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates a database file.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("open report database %s", path), err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.E("create reports bucket", err)
	}
	log.Debug.Printf("[STORAGE] report database opened at %s", path)
	return &BoltStore{db: db}, nil
}

// Save writes r under its ID.
func (b *BoltStore) Save(r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.E(errors.Invalid, "encode report", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(reportsBucket).Put([]byte(r.ID), data)
	})
}

// Load reads the report with the given ID.
//
// A missing report is an errors.NotExist error and an
// undecodable one is an errors.Integrity error.
func (b *BoltStore) Load(id string) (*Report, error) {
	var r *Report
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(reportsBucket).Get([]byte(id))
		if data == nil {
			return errors.E(errors.NotExist, fmt.Sprintf("report %s", id))
		}
		r = new(Report)
		if err := json.Unmarshal(data, r); err != nil {
			return errors.E(errors.Integrity, fmt.Sprintf("decode report %s", id), err)
		}
		return nil
	})
	return r, err
}

// List returns every report, newest first, skipping
// entries that cannot be decoded.
func (b *BoltStore) List() ([]*Report, error) {
	var res []*Report
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(reportsBucket).ForEach(func(k, v []byte) error {
			var r Report
			if err := json.Unmarshal(v, &r); err != nil {
				log.Error.Printf("[STORAGE] skipping report %s: %v", k, err)
				return nil
			}
			res = append(res, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(res)
	return res, nil
}

// Close closes the database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func sortNewestFirst(reports []*Report) {
	essentials.VoodooSort(reports, func(i, j int) bool {
		if reports[i].Created.Equal(reports[j].Created) {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].Created.After(reports[j].Created)
	})
}
