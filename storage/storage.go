// Package storage is the durable source of truth for request lifecycles.
// It persists request records and append-only resubmission events in an
// embedded key-value store and owns every status transition.
package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/etherspot/relayx/types"
)

// Store wraps the embedded database. The read-modify-write mutators are
// serialized by an internal mutex; terminal states absorb all further
// transitions.
type Store struct {
	db     ethdb.KeyValueStore
	logger log.Logger
	start  time.Time

	mu sync.Mutex // guards read-modify-write mutators
}

// New opens (or creates) the leveldb store rooted at path.
func New(path string) (*Store, error) {
	db, err := leveldb.New(path, 128, 1024, "relayx", false)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return newStore(db), nil
}

// NewMemory returns an in-memory store for tests.
func NewMemory() *Store {
	return newStore(memorydb.New())
}

func newStore(db ethdb.KeyValueStore) *Store {
	return &Store{
		db:     db,
		logger: log.New("component", "storage"),
		start:  time.Now(),
	}
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Uptime returns seconds since the store was opened.
func (s *Store) Uptime() uint64 { return uint64(time.Since(s.start).Seconds()) }

// PutRequest persists a request record under request:{id} in one atomic
// write.
func (s *Store) PutRequest(r *types.Request) error {
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", r.ID, err)
	}
	return s.db.Put(requestKey(r.ID), val)
}

// GetRequest point-reads a request record, returning (nil, nil) when the
// id is absent. Backend failures surface as errors, never as absence.
func (s *Store) GetRequest(id string) (*types.Request, error) {
	key := requestKey(id)
	has, err := s.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("read request %s: %w", id, err)
	}
	if !has {
		return nil, nil
	}
	val, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read request %s: %w", id, err)
	}
	var r types.Request
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return &r, nil
}

// MutateStatus is the only way a request's status changes. It refuses to
// leave a terminal state and is a logged no-op when the id is absent.
func (s *Store) MutateStatus(id string, status types.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.GetRequest(id)
	if err != nil {
		return err
	}
	if r == nil {
		s.logger.Warn("status mutation for unknown request", "id", id, "status", status)
		return nil
	}
	if r.Status.Terminal() {
		if r.Status != status {
			s.logger.Warn("refusing status transition out of terminal state",
				"id", id, "current", r.Status, "requested", status)
		}
		return nil
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	if errMsg != "" {
		r.ErrorMessage = errMsg
	}
	return s.PutRequest(r)
}

// MutateTxHash records the current broadcast hash and the price it went
// out at. Later broadcasts overwrite both; the per-broadcast history
// lives in the resubmission entries.
func (s *Store) MutateTxHash(id string, txHash common.Hash, gasPrice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.GetRequest(id)
	if err != nil {
		return err
	}
	if r == nil {
		s.logger.Warn("tx hash mutation for unknown request", "id", id, "hash", txHash)
		return nil
	}
	r.TxHash = &txHash
	if gasPrice != "" {
		r.GasPrice = gasPrice
	}
	r.UpdatedAt = time.Now().UTC()
	return s.PutRequest(r)
}

// MutateNonce records the relayer-side nonce observed at broadcast.
func (s *Store) MutateNonce(id string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.GetRequest(id)
	if err != nil {
		return err
	}
	if r == nil {
		s.logger.Warn("nonce mutation for unknown request", "id", id, "nonce", nonce)
		return nil
	}
	r.Nonce = nonce
	r.UpdatedAt = time.Now().UTC()
	return s.PutRequest(r)
}

// AppendResubmission records one rebroadcast under a composite key that
// includes the new hash, so concurrent appends cannot collide.
func (s *Store) AppendResubmission(id string, event types.Resubmission) error {
	val, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("encode resubmission for %s: %w", id, err)
	}
	return s.db.Put(resubmissionKey(id, event.ChainID, event.TxHash), val)
}

// ListResubmissions returns the stored resubmission events for a request
// in key order.
func (s *Store) ListResubmissions(id string) ([]types.Resubmission, error) {
	it := s.db.NewIterator(resubmissionScanPrefix(id), nil)
	defer it.Release()
	var events []types.Resubmission
	for it.Next() {
		var ev types.Resubmission
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			s.logger.Warn("skipping undecodable resubmission", "key", string(it.Key()), "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, it.Error()
}

// ScanRequests returns a snapshot of up to limit request records from the
// request: prefix. limit <= 0 means no bound.
func (s *Store) ScanRequests(limit int) ([]*types.Request, error) {
	it := s.db.NewIterator(requestPrefix, nil)
	defer it.Release()
	var requests []*types.Request
	for it.Next() {
		var r types.Request
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			s.logger.Warn("skipping undecodable request", "key", string(it.Key()), "err", err)
			continue
		}
		requests = append(requests, &r)
		if limit > 0 && len(requests) >= limit {
			break
		}
	}
	return requests, it.Error()
}

// Count returns the total number of request records.
func (s *Store) Count() (uint64, error) {
	it := s.db.NewIterator(requestPrefix, nil)
	defer it.Release()
	var n uint64
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// CountByStatus returns the number of requests in the given state. Full
// prefix scan; fine for the target fleet scale.
func (s *Store) CountByStatus(status types.Status) (uint64, error) {
	it := s.db.NewIterator(requestPrefix, nil)
	defer it.Release()
	var n uint64
	for it.Next() {
		var r types.Request
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			continue
		}
		if r.Status == status {
			n++
		}
	}
	return n, it.Error()
}
