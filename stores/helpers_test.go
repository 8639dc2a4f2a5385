package stores

import (
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

var testNow = time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

// newTestDB opens a migrated in-memory sqlite database. One connection only, so
// every query sees the same database.
func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestScanTime(t *testing.T) {
	stored := sqlNullTimeOrNil(testNow).(string)
	if got := scanTime(stored); !got.Equal(testNow) {
		t.Fatalf("expected %s got %s", testNow, got)
	}
	if got := scanTime([]byte(stored)); !got.Equal(testNow) {
		t.Fatalf("expected %s from bytes got %s", testNow, got)
	}
	if got := scanTime(nil); !got.IsZero() {
		t.Fatalf("expected zero time for NULL, got %s", got)
	}
	if sqlNullTimeOrNil(time.Time{}) != nil {
		t.Fatalf("zero time should be stored as NULL")
	}
}

func TestStoredTimestampsSortAsText(t *testing.T) {
	a := sqlNullTimeOrNil(testNow).(string)
	b := sqlNullTimeOrNil(testNow.Add(500 * time.Millisecond)).(string)
	c := sqlNullTimeOrNil(testNow.Add(time.Second)).(string)
	if !(a < b && b < c) {
		t.Fatalf("expected %q < %q < %q", a, b, c)
	}
}

func TestListCodec(t *testing.T) {
	if encodeList(nil) != "[]" {
		t.Fatalf("empty list should encode as []")
	}
	got := decodeList(encodeList([]string{"s1", "s2"}))
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Fatalf("unexpected decode %v", got)
	}
	if decodeList("[]") != nil || decodeList("") != nil {
		t.Fatalf("empty encodings should decode to nil")
	}
}
