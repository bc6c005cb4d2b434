package storage

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if got := db.GetMeta("missing"); got != "" {
		t.Fatalf("missing key returned %q", got)
	}
	if err := db.SetMeta("schema", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta("schema", "2"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetMeta("schema"); got != "2" {
		t.Fatalf("GetMeta = %q, want 2", got)
	}
}

func TestCachedUsers(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertCachedUser(CachedUser{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertCachedUser(CachedUser{ID: "u1", Name: "Alice B"}); err != nil {
		t.Fatal(err)
	}
	u, ok := db.GetCachedUser("u1")
	if !ok || u.Name != "Alice B" {
		t.Fatalf("upsert did not refresh: %+v ok=%v", u, ok)
	}

	if name := db.GetUserName("u1"); name != "Alice B" {
		t.Fatalf("GetUserName = %q", name)
	}
	// Unknown users render as their id.
	if name := db.GetUserName("u404"); name != "u404" {
		t.Fatalf("unknown user name = %q", name)
	}

	db.UpsertCachedUser(CachedUser{ID: "u2", Name: "bob"})
	list, err := db.ListCachedUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Alice B" {
		t.Fatalf("list order wrong: %+v", list)
	}

	if err := db.DeleteCachedUser("u1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.GetCachedUser("u1"); ok {
		t.Fatal("user still present after delete")
	}
}

func TestMessageHistory(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := db.SaveMessage(CachedMessage{
			ID:             string(rune('a' + i)),
			ConversationID: "conv1",
			SenderID:       "u1",
			Body:           "hi",
			SentAt:         base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	// Duplicate delivery of the same message id is a no-op.
	if err := db.SaveMessage(CachedMessage{ID: "a", ConversationID: "conv1", SenderID: "u1", Body: "dup", SentAt: base}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.RecentMessages("conv1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Oldest first within the kept window.
	if msgs[0].ID != "c" || msgs[2].ID != "e" {
		t.Fatalf("window wrong: %s..%s", msgs[0].ID, msgs[2].ID)
	}

	if err := db.PruneMessages("conv1", 2); err != nil {
		t.Fatal(err)
	}
	msgs, _ = db.RecentMessages("conv1", 10)
	if len(msgs) != 2 {
		t.Fatalf("after prune: %d messages", len(msgs))
	}
}

func TestSnapshots(t *testing.T) {
	db := openTestDB(t)

	type board struct {
		Name  string   `json:"name"`
		Tasks []string `json:"tasks"`
	}
	in := board{Name: "Sprint", Tasks: []string{"a", "b"}}
	if err := db.SaveSnapshot(SnapshotBoard, "7", in); err != nil {
		t.Fatal(err)
	}

	var out board
	age, ok := db.LoadSnapshot(SnapshotBoard, "7", &out)
	if !ok {
		t.Fatal("snapshot not found")
	}
	if out.Name != in.Name || len(out.Tasks) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if age < 0 || age > time.Minute {
		t.Fatalf("implausible age %v", age)
	}

	if _, ok := db.LoadSnapshot(SnapshotWiki, "7", &out); ok {
		t.Fatal("kind must partition snapshots")
	}

	if err := db.DeleteSnapshots(SnapshotBoard); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.LoadSnapshot(SnapshotBoard, "7", &out); ok {
		t.Fatal("snapshot survived delete")
	}
}
