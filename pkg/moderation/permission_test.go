package moderation

import (
	"testing"
	"time"

	"github.com/duskward/wardencore/pkg/cache"
)

func TestSubcommandResolutionPrefersMostSpecific(t *testing.T) {
	st := newTestStore(t)
	backend := cache.NewBackend(nil, time.Minute)
	t.Cleanup(backend.Close)
	eng := NewPermissionEngine(st, backend)

	if err := eng.SetCommandPermission("g1", "config", 1, ""); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if err := eng.SetCommandPermission("g1", "config ranks init", 7, ""); err != nil {
		t.Fatalf("set child: %v", err)
	}

	dec, err := eng.Check("g1", "u1", nil, "config ranks init")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.RequiredRank != 7 {
		t.Fatalf("expected the most specific entry (rank 7) to win, got %d", dec.RequiredRank)
	}
}

func TestSubcommandResolutionFallsBackToParent(t *testing.T) {
	st := newTestStore(t)
	backend := cache.NewBackend(nil, time.Minute)
	t.Cleanup(backend.Close)
	eng := NewPermissionEngine(st, backend)

	if err := eng.SetCommandPermission("g1", "config", 4, ""); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	dec, err := eng.Check("g1", "u1", nil, "config ranks init")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.RequiredRank != 4 {
		t.Fatalf("expected fallback to parent entry (rank 4), got %d", dec.RequiredRank)
	}
}

func TestUnconfiguredCommandReturnsNotConfigured(t *testing.T) {
	st := newTestStore(t)
	backend := cache.NewBackend(nil, time.Minute)
	t.Cleanup(backend.Close)
	eng := NewPermissionEngine(st, backend)

	dec, err := eng.Check("g1", "u1", nil, "nonexistent command")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !dec.NotConfigured {
		t.Fatalf("expected NotConfigured for an unconfigured command")
	}
}

func TestUserRankIsMaxAcrossAssignedRoles(t *testing.T) {
	st := newTestStore(t)
	backend := cache.NewBackend(nil, time.Minute)
	t.Cleanup(backend.Close)
	eng := NewPermissionEngine(st, backend)

	if err := eng.InitializeGuild("g1"); err != nil {
		t.Fatalf("init guild: %v", err)
	}
	ranks, err := st.ListPermissionRanks("g1")
	if err != nil {
		t.Fatalf("list ranks: %v", err)
	}
	var trusted, moderator int64
	for _, r := range ranks {
		if r.Rank == 1 {
			trusted = r.ID
		}
		if r.Rank == 3 {
			moderator = r.ID
		}
	}
	if err := eng.AssignRoleToRank("g1", trusted, "role-trusted"); err != nil {
		t.Fatalf("assign trusted: %v", err)
	}
	if err := eng.AssignRoleToRank("g1", moderator, "role-mod"); err != nil {
		t.Fatalf("assign moderator: %v", err)
	}
	if err := eng.SetCommandPermission("g1", "ban", 3, ""); err != nil {
		t.Fatalf("set command: %v", err)
	}

	dec, err := eng.Check("g1", "u1", []string{"role-trusted", "role-mod"}, "ban")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dec.UserRank != 3 || !dec.Allowed {
		t.Fatalf("expected max rank 3 across assigned roles to be allowed, got %+v", dec)
	}
}
