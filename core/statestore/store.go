// Package statestore keeps the last committed battery snapshot per location
// so the live battery survives a restart.
package statestore

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/ess/core/battery"
)

// Record is the persisted state of one location.
type Record struct {
	Location  string           `json:"location"`
	Snapshot  battery.Snapshot `json:"snapshot"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store persists battery snapshots.
type Store interface {
	Save(Record) error
	// Load returns false when nothing was saved for the location.
	Load(location string) (Record, bool, error)
	List() ([]Record, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Record{}}
}

func (s *MemoryStore) Save(r Record) error {
	s.mu.Lock()
	s.data[r.Location] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(location string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[location]
	return r, ok, nil
}

func (s *MemoryStore) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Record, 0, len(s.data))
	for _, r := range s.data {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Location < res[j].Location })
	return res, nil
}
