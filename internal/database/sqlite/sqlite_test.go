package sqlite

import (
	"context"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db.(*Store)
}

func TestExecReportsAffectedRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Exec(ctx,
		`INSERT INTO jobs (id, title, company, location, source, scraped_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		"id-1", "Python Engineer", "Acme Ltd", "Manchester", "totaljobs", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected row, got %d", n)
	}

	// no matching row must be distinguishable from an error
	n, err = db.Exec(ctx, `UPDATE jobs SET title = $2 WHERE id = $1`, "missing", "x")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 affected rows, got %d", n)
	}

	if _, err := db.Exec(ctx, `UPDATE no_such_table SET x = 1`); err == nil {
		t.Fatal("exec against a missing table must surface the error")
	}
}

func TestRebindTranslatesOrdinalPlaceholders(t *testing.T) {
	got := rebind(`UPDATE jobs SET title = $2, notes = $12 WHERE id = $1`)
	want := `UPDATE jobs SET title = ?2, notes = ?12 WHERE id = ?1`
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
}
