package storage

import (
	"path/filepath"
	"testing"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	st := NewStore(filepath.Join(t.TempDir(), "mod.db"))
	if err := st.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSchemaInitialized(t *testing.T) {
	st := newTempStore(t)

	tables := []string{"guilds", "guild_configs", "permission_ranks", "permission_assignments", "permission_commands", "cases"}
	for _, tbl := range tables {
		var name string
		err := st.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", tbl, err)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	st := newTempStore(t)
	if err := st.Init(); err != nil {
		t.Fatalf("second Init returned error: %v", err)
	}
}

func TestCloseOnUninitializedStoreIsNoop(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "unused.db"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close on uninitialized store: %v", err)
	}
}

func TestInitRejectsEmptyPath(t *testing.T) {
	st := NewStore("")
	if err := st.Init(); err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestEnsureGuildAndCaseRoundTrip(t *testing.T) {
	st := newTempStore(t)

	if err := st.EnsureGuild("g1"); err != nil {
		t.Fatalf("EnsureGuild: %v", err)
	}
	c, err := st.CreateCase("g1", "user1", "mod1", CaseBan, "spamming", nil, []string{"role1"})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.GuildID != "g1" || c.UserID != "user1" || c.CaseType != CaseBan {
		t.Fatalf("unexpected case: %+v", c)
	}

	got, err := st.GetLatestCaseByUser("g1", "user1")
	if err != nil {
		t.Fatalf("GetLatestCaseByUser: %v", err)
	}
	if got == nil || got.CaseID != c.CaseID {
		t.Fatalf("expected to retrieve case %d, got %+v", c.CaseID, got)
	}
}
