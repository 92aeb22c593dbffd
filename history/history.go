package history

import (
	"sort"
	"sync"
	"time"
)

// Entry is the outcome of one optimization run.
type Entry struct {
	RunID          string        `json:"run_id"`
	Fingerprint    string        `json:"fingerprint"`
	Query          string        `json:"query"`
	Timestamp      time.Time     `json:"timestamp"`
	Applied        bool          `json:"applied"`
	BeforeTime     time.Duration `json:"before_time"`
	AfterTime      time.Duration `json:"after_time,omitempty"`
	Improvement    float64       `json:"improvement"`
	Kept           bool          `json:"kept"`
	Issues         []string      `json:"issues,omitempty"`
	Suggestions    []string      `json:"suggestions,omitempty"`
	CreatedIndexes []string      `json:"created_indexes,omitempty"`
	DroppedIndexes []string      `json:"dropped_indexes,omitempty"`
}

// Store records optimization runs by query fingerprint.
type Store interface {
	Record(e Entry) error
	// Lookup returns the entries of one fingerprint, oldest first.
	Lookup(fingerprint string) ([]Entry, error)
	// List returns every entry, oldest first.
	List() ([]Entry, error)
	Close() error
}

// MemoryStore keeps the history in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (s *MemoryStore) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Fingerprint] = append(s.entries[e.Fingerprint], e)
	return nil
}

func (s *MemoryStore) Lookup(fingerprint string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries[fingerprint]...), nil
}

func (s *MemoryStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Entry
	for _, es := range s.entries {
		all = append(all, es...)
	}
	sortEntries(all)
	return all, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Timestamp.Equal(es[j].Timestamp) {
			return es[i].Timestamp.Before(es[j].Timestamp)
		}
		return es[i].RunID < es[j].RunID
	})
}
