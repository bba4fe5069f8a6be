package storage

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
)

// RunStore keeps the records of recent runs in memory for the API.
type RunStore struct {
	runs  map[string]models.RunRecord
	limit int
	mu    sync.RWMutex
}

// New returns a store holding at most limit runs; zero keeps everything.
func New(limit int) *RunStore {
	return &RunStore{
		runs:  make(map[string]models.RunRecord),
		limit: limit,
	}
}

func (s *RunStore) Get(runID string) (models.RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[runID]
	return run, exists
}

// Set stores rec, evicting the oldest run once the store is full.
func (s *RunStore) Set(rec models.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec

	if s.limit <= 0 || len(s.runs) <= s.limit {
		return
	}
	var oldest string
	for id, r := range s.runs {
		if oldest == "" || r.StartedAt.Before(s.runs[oldest].StartedAt) {
			oldest = id
		}
	}
	delete(s.runs, oldest)
}

// Record lets the store receive runs straight from the orchestrator.
func (s *RunStore) Record(rec models.RunRecord) {
	s.Set(rec)
}

// GetAll returns every run, newest first.
func (s *RunStore) GetAll() []models.RunRecord {
	s.mu.RLock()
	result := make([]models.RunRecord, 0, len(s.runs))
	for _, v := range s.runs {
		result = append(result, v)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}

func (s *RunStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
