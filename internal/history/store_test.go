package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{ID: "a", Mode: "single", Voice: "af_heart", Preview: "Hello.", Chunks: 1, Duration: 1500 * time.Millisecond, ArtifactSize: 100, StartedAt: base, FinishedAt: base.Add(time.Second)},
		{ID: "b", Mode: "story", Voice: "bm_george", Preview: "Once.", Chunks: 3, Duration: 4 * time.Second, ArtifactSize: 300, StartedAt: base.Add(time.Minute), FinishedAt: base.Add(2 * time.Minute), Error: "Error generating speech for Bob"},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s) error = %v", e.ID, err)
		}
	}

	got, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("List()[0].ID = %q, want newest first (b)", got[0].ID)
	}
	if got[0].Duration != 4*time.Second || got[0].Error == "" || got[0].Mode != "story" {
		t.Errorf("List()[0] = %+v", got[0])
	}
	if took := got[1].Took(); took != time.Second {
		t.Errorf("Took() = %v, want 1s", took)
	}

	limited, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("List(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(1) returned %d entries", len(limited))
	}
}

func TestRecordUpdatesExisting(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	e := Entry{ID: "x", Mode: "single", StartedAt: now, FinishedAt: now, Chunks: 1}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	e.Chunks = 4
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Chunks != 4 {
		t.Errorf("Chunks = %d, want 4", got.Chunks)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPrune(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Record(ctx, Entry{ID: "old", Mode: "single", StartedAt: now.Add(-48 * time.Hour), FinishedAt: now.Add(-48 * time.Hour)})
	_ = s.Record(ctx, Entry{ID: "new", Mode: "single", StartedAt: now, FinishedAt: now})

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	left, _ := s.List(ctx, 0)
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %+v, want only new", left)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"short", "Hello.", 6},
		{"long", strings.Repeat("é", 300), previewRunes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len([]rune(Preview(tt.in))); got != tt.want {
				t.Errorf("Preview() has %d runes, want %d", got, tt.want)
			}
		})
	}
}
