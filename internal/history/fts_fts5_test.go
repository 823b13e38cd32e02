//go:build sqlite_fts5

package history

import (
	"context"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM diagrams_fts`).Scan(&count); err != nil {
		t.Fatalf("diagrams_fts table missing: %v", err)
	}
}

func TestFTS5_UpdateReindexesLabels(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.Put(ctx, "d1", "Deep Work", sample()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	g := sample()
	g.Nodes[1].Data.Label = "Asynchronous communication"
	if err := db.Update(ctx, "d1", g); err != nil {
		t.Fatalf("Update: %v", err)
	}

	results, err := db.Search(ctx, "asynchronous", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("results = %+v", results)
	}
	results, _ = db.Search(ctx, "interruptions", 10)
	if len(results) != 0 {
		t.Errorf("stale label still indexed: %+v", results)
	}
}

func TestFTS5_ClearEmptiesIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, _ = db.Put(ctx, "d1", "Deep Work", sample())
	if err := db.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM diagrams_fts`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("fts rows = %d, want 0", count)
	}
}
