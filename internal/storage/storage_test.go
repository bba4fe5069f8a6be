package storage

import (
	"testing"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
)

func TestRunStore(t *testing.T) {
	s := New(0)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.Record(models.RunRecord{ID: "a", StartedAt: base})
	s.Set(models.RunRecord{ID: "b", StartedAt: base.Add(time.Minute)})

	got, ok := s.Get("a")
	if !ok || got.ID != "a" {
		t.Fatalf("Expected run a, got %+v", got)
	}

	all := s.GetAll()
	if len(all) != 2 || all[0].ID != "b" {
		t.Errorf("Expected newest first, got %+v", all)
	}

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("Expected run a to be deleted")
	}
}

func TestRunStoreLimit(t *testing.T) {
	s := New(2)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.Set(models.RunRecord{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	if _, ok := s.Get("a"); ok {
		t.Error("Expected the oldest run to be evicted")
	}
	if len(s.GetAll()) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(s.GetAll()))
	}

	// replacing an existing run does not evict
	s.Set(models.RunRecord{ID: "c", StartedAt: base.Add(2 * time.Minute), Outcome: models.OutcomeComplete})
	if _, ok := s.Get("b"); !ok {
		t.Error("Expected run b to survive an update of c")
	}
}
