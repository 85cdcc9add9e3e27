package history

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndRecent(t *testing.T) {
	store := openTestStore(t)

	records := []Record{
		{BVID: "BV1xx411c7mD", Aid: 111, Cid: 222, Title: "first", Owner: "up", Output: "output/first.mp4", Bytes: 1024, Qualities: "120,80,64"},
		{BVID: "BV1GJ411x7h7", Aid: 333, Cid: 444, Title: "second", Output: "output/second.mp3", Bytes: 2048},
	}
	for _, r := range records {
		if err := store.Insert(r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// Most recent first.
	if got[0].BVID != "BV1GJ411x7h7" || got[1].BVID != "BV1xx411c7mD" {
		t.Fatalf("unexpected order: %q then %q", got[0].BVID, got[1].BVID)
	}
	if got[1].Qualities != "120,80,64" {
		t.Fatalf("qualities did not persist: %q", got[1].Qualities)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("created_at should be populated by the schema default")
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := store.Insert(Record{BVID: "BV1xx411c7mD", Title: "t"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	got, err := store.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Insert(Record{BVID: "BV1xx411c7mD"}); err != nil {
		t.Fatalf("insert into fresh database: %v", err)
	}
}
