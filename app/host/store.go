package main

import (
	"sync"

	"github.com/usbshark/usbshark/reassembly"
)

type txRecord struct {
	ID uint64
	reassembly.Transaction
}

// txStore keeps the most recent transactions in a fixed-size ring so a
// long capture cannot grow the host without bound. IDs are assigned on
// insert and never reused.
type txStore struct {
	mu   sync.RWMutex
	buf  []txRecord
	cap  int
	next uint64
}

func newTxStore(capacity int) *txStore {
	return &txStore{cap: capacity}
}

func (s *txStore) Add(t reassembly.Transaction) txRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	rec := txRecord{ID: s.next, Transaction: t}
	if len(s.buf) == s.cap {
		copy(s.buf, s.buf[1:])
		s.buf[len(s.buf)-1] = rec
	} else {
		s.buf = append(s.buf, rec)
	}
	return rec
}

// All returns the stored transactions, oldest first.
func (s *txStore) All() []txRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]txRecord, len(s.buf))
	copy(out, s.buf)
	return out
}

func (s *txStore) Get(id uint64) (txRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) == 0 || id == 0 || id > s.next {
		return txRecord{}, false
	}
	oldest := s.buf[0].ID
	if id < oldest {
		return txRecord{}, false
	}
	return s.buf[id-oldest], true
}

func (s *txStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}
