package vectorindex

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/froth-ops/froth/pkg/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New(filepath.Join(t.TempDir(), "index_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"dim mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNearestOrdering(t *testing.T) {
	ix := newTestIndex(t)

	records := []models.IndexRecord{
		{ID: "far", Fingerprint: "f1", Requirement: "r1", Artifact: []byte("a1"), Embedding: []float32{0, 1}},
		{ID: "near", Fingerprint: "f2", Requirement: "r2", Artifact: []byte("a2"), Embedding: []float32{1, 0.1}},
		{ID: "exact", Fingerprint: "f3", Requirement: "r3", Artifact: []byte("a3"), Embedding: []float32{1, 0}},
	}
	for _, r := range records {
		if err := ix.Insert(r); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := ix.Nearest([]float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Record.ID != "exact" {
		t.Errorf("expected exact first, got %s", matches[0].Record.ID)
	}
	if matches[1].Record.ID != "near" {
		t.Errorf("expected near second, got %s", matches[1].Record.ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not ordered by descending score")
	}
}

func TestNearestTieBreaksOnRecency(t *testing.T) {
	ix := newTestIndex(t)

	old := models.IndexRecord{
		ID: "old", Fingerprint: "f1", Requirement: "r", Artifact: []byte("old"),
		Embedding: []float32{1, 0},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	fresh := models.IndexRecord{
		ID: "fresh", Fingerprint: "f2", Requirement: "r", Artifact: []byte("fresh"),
		Embedding: []float32{1, 0},
		CreatedAt: time.Now().UTC(),
	}
	if err := ix.Insert(old); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(fresh); err != nil {
		t.Fatal(err)
	}

	matches, err := ix.Nearest([]float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.ID != "fresh" {
		t.Errorf("expected the newest record to win the tie, got %+v", matches)
	}
}

func TestInsertFillsIDAndTimestamp(t *testing.T) {
	ix := newTestIndex(t)

	err := ix.Insert(models.IndexRecord{
		Fingerprint: "f1", Requirement: "r", Artifact: []byte("a"),
		Embedding: []float32{0.5, 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := ix.Nearest([]float32{0.5, 0.5}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Record.ID == "" {
		t.Error("expected generated ID")
	}
	if matches[0].Record.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	n, err := ix.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}
