// Package store owns the authoritative in-memory object table, its durable
// backing row store, and the TTL sweeper that evicts stale local records.
//
// All read/write operations are serialized by a single mutex held for the
// duration of each call. Read operations copy out before returning; callers
// never retain pointers into the map.
package store

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kraklabs/registryd/internal/model"
)

// Store is the node's object table.
type Store struct {
	mu     sync.Mutex
	data   map[string]model.Record
	db     *durable
	nodeID string
	log    *logrus.Entry
	now    func() time.Time
}

// New opens (or creates) the durable row store at dataDir/objects.db and
// loads its contents into memory, tagging every loaded record OriginLocal —
// a reloaded record has no way to know which node it originally came from,
// so it is treated as locally owned and subject to TTL eviction again.
func New(dataDir, nodeID string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "store")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	db, err := openDurable(filepath.Join(dataDir, "objects.db"), log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		data:   make(map[string]model.Record),
		db:     db,
		nodeID: nodeID,
		log:    log,
		now:    time.Now,
	}

	if err := s.LoadSnapshot(); err != nil {
		db.close()
		return nil, errors.Wrap(err, "load snapshot")
	}
	return s, nil
}

// Put inserts or replaces a record, stamping LastSeen to now and writing
// through to the durable store before returning.
func (s *Store) Put(name string, rec model.Record, origin model.Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Name = name
	rec.Origin = origin
	rec.LastSeen = s.nowSeconds()

	if err := s.db.putRow(rec); err != nil {
		s.log.WithError(err).WithField("name", name).Warn("durable write failed; in-memory state remains authoritative")
	}
	s.data[name] = rec
	return nil
}

// Delete removes name from memory and the durable store. Returns true if it
// was present.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[name]; !ok {
		return false
	}
	delete(s.data, name)
	if err := s.db.deleteRow(name); err != nil {
		s.log.WithError(err).WithField("name", name).Warn("durable delete failed")
	}
	return true
}

// Get returns a copy of the record, or false if absent.
func (s *Store) Get(name string) (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[name]
	return rec, ok
}

// List returns a snapshot copy of every current record, unspecified order.
func (s *Store) List() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec)
	}
	return out
}

// Touch refreshes LastSeen for name if present. Returns true iff present.
func (s *Store) Touch(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[name]
	if !ok {
		return false
	}
	rec.LastSeen = s.nowSeconds()
	s.data[name] = rec
	if err := s.db.putRow(rec); err != nil {
		s.log.WithError(err).WithField("name", name).Warn("durable touch write failed")
	}
	return true
}

// LoadSnapshot repopulates the map from durable storage. Called once at
// boot. All loaded records are tagged OriginLocal.
func (s *Store) LoadSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.db.loadAll()
	if err != nil {
		return err
	}
	s.data = make(map[string]model.Record, len(records))
	for _, r := range records {
		s.data[r.Name] = r
	}
	if len(records) > 0 {
		s.log.WithField("count", len(records)).Info("loaded records from snapshot")
	}
	return nil
}

// SaveSnapshot performs an idempotent full rewrite of the durable store from
// the current in-memory state. Run periodically as a belt-and-braces dump
// independent of the per-write writethrough in Put/Delete/Touch.
func (s *Store) SaveSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]model.Record, 0, len(s.data))
	for _, r := range s.data {
		records = append(records, r)
	}

	return s.db.rewriteAll(records)
}

// Close closes the underlying durable store handle.
func (s *Store) Close() error {
	return s.db.close()
}

func (s *Store) nowSeconds() float64 {
	return float64(s.now().UnixNano()) / 1e9
}
