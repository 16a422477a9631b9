package moderation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/duskward/wardencore/pkg/cache"
	"github.com/duskward/wardencore/pkg/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	st := storage.NewStore(filepath.Join(t.TempDir(), "mod.db"))
	if err := st.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type testRig struct {
	store   *storage.Store
	perm    *PermissionEngine
	monitor *Monitor
	adapter *mockAdapter
	coord   *Coordinator
}

func newTestRig(t *testing.T, guildID, modRoleID string, modRank, requiredRank int) *testRig {
	t.Helper()
	st := newTestStore(t)
	backend := cache.NewBackend(nil, time.Minute)
	t.Cleanup(backend.Close)

	perm := NewPermissionEngine(st, backend)
	if err := perm.InitializeGuild(guildID); err != nil {
		t.Fatalf("initialize guild: %v", err)
	}
	ranks, err := st.ListPermissionRanks(guildID)
	if err != nil {
		t.Fatalf("list ranks: %v", err)
	}
	var rankID int64
	for _, r := range ranks {
		if r.Rank == modRank {
			rankID = r.ID
		}
	}
	if err := perm.AssignRoleToRank(guildID, rankID, modRoleID); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	for _, cmd := range []string{"ban", "kick", "timeout", "untimeout", "warn", "jail", "unjail", "unban"} {
		if err := perm.SetCommandPermission(guildID, cmd, requiredRank, ""); err != nil {
			t.Fatalf("set command permission: %v", err)
		}
	}

	monitor := NewMonitor(128)
	locks := NewLockManager()
	retrier := NewRetrier(nil, monitor.RecordBreakerTrip)
	timeouts := NewTimeoutHarness(nil)
	adapter := newMockAdapter()
	jailCache := NewJailStatusCache(st, backend)

	coord := NewCoordinator(st, perm, locks, retrier, timeouts, monitor, adapter, jailCache)

	return &testRig{store: st, perm: perm, monitor: monitor, adapter: adapter, coord: coord}
}

func TestBanSuccessE2E(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "member-role")

	req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "spam", 0, rig.adapter)
	resp := rig.coord.Execute(context.Background(), req)

	if !resp.Success {
		t.Fatalf("expected success, got err=%v msg=%q", resp.Err, resp.Message)
	}
	if resp.CaseNumber != 1 {
		t.Fatalf("expected case number 1, got %d", resp.CaseNumber)
	}
	if !resp.DMSent {
		t.Fatalf("expected DM to have been sent before the ban")
	}
	c, err := rig.store.GetCaseByNumber("g1", 1)
	if err != nil || c == nil {
		t.Fatalf("expected persisted case: %v", err)
	}
	if !c.Status || c.CaseType != storage.CaseBan {
		t.Fatalf("unexpected case: %+v", c)
	}
	if c.ModLogMessageID != "" {
		t.Fatalf("expected mod_log_message_id to stay empty with no mod-log channel configured, got %q", c.ModLogMessageID)
	}
}

func TestBanWithDMBlockedStillSucceeds(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "member-role")
	rig.adapter.dmErr = &AdapterError{Kind: AdapterForbidden}

	req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "spam", 0, rig.adapter)
	resp := rig.coord.Execute(context.Background(), req)

	if !resp.Success {
		t.Fatalf("expected success despite blocked DM, got err=%v", resp.Err)
	}
	if resp.DMSent {
		t.Fatalf("expected dm_sent=false when DM is blocked")
	}
}

func TestAuthorizationDenied(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 1, 3)
	rig.adapter.addMember("target1", 1)

	req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "spam", 0, rig.adapter)
	resp := rig.coord.Execute(context.Background(), req)

	if resp.Success {
		t.Fatalf("expected denial, rank 1 < required 3")
	}
	if resp.Err == nil || resp.Err.Kind != KindAuthorization {
		t.Fatalf("expected Authorization error, got %v", resp.Err)
	}
}

func TestConcurrentBansOnSameTargetSerializeAndVoidSecond(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1)

	var wg sync.WaitGroup
	responses := make([]*Response, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "a", 0, rig.adapter)
		responses[0] = rig.coord.Execute(context.Background(), req)
	}()
	go func() {
		defer wg.Done()
		req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "b", 0, rig.adapter)
		responses[1] = rig.coord.Execute(context.Background(), req)
	}()
	wg.Wait()

	succeeded, voided := 0, 0
	seen := map[int64]bool{}
	for _, r := range responses {
		if r.CaseNumber == 0 {
			t.Fatalf("expected every attempt to produce a case number, got %+v", r)
		}
		if seen[r.CaseNumber] {
			t.Fatalf("duplicate case number %d", r.CaseNumber)
		}
		seen[r.CaseNumber] = true
		if r.Success {
			succeeded++
		} else {
			voided++
		}
	}
	if succeeded != 1 || voided != 1 {
		t.Fatalf("expected exactly one success and one voided case, got succeeded=%d voided=%d", succeeded, voided)
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected contiguous case numbers 1 and 2, got %v", seen)
	}
}

func TestJailThenUnjailRestoresManageableRoles(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "role-a", "role-b", "jail-role")
	ctx := context.Background()

	jailReq, err := BuildJailRequest(ctx, "g1", "mod1", []string{"mod-role"}, "target1", "flood", "jail-role", rig.adapter)
	if err != nil {
		t.Fatalf("build jail request: %v", err)
	}
	resp := rig.coord.Execute(ctx, jailReq)
	if !resp.Success {
		t.Fatalf("jail failed: %v %q", resp.Err, resp.Message)
	}

	jailCase, err := rig.store.GetCaseByNumber("g1", resp.CaseNumber)
	if err != nil || jailCase == nil {
		t.Fatalf("expected jail case: %v", err)
	}
	if len(jailCase.UserRoles) != 2 {
		t.Fatalf("expected 2 manageable roles snapshotted, got %v", jailCase.UserRoles)
	}

	unjailReq, ok, err := BuildUnjailRequest(ctx, rig.store, "g1", "mod1", []string{"mod-role"}, "target1", "served", "jail-role", rig.adapter)
	if err != nil || !ok {
		t.Fatalf("expected unjail request to build: ok=%v err=%v", ok, err)
	}
	resp2 := rig.coord.Execute(ctx, unjailReq)
	if !resp2.Success {
		t.Fatalf("unjail failed: %v %q", resp2.Err, resp2.Message)
	}

	finalRoles := rig.adapter.roles["target1"]
	roleSet := map[string]bool{}
	for _, r := range finalRoles {
		roleSet[r] = true
	}
	if roleSet["jail-role"] {
		t.Fatalf("expected jail role removed, got %v", finalRoles)
	}
	if !roleSet["role-a"] || !roleSet["role-b"] {
		t.Fatalf("expected role-a and role-b restored, got %v", finalRoles)
	}
}

func TestRejoinReappliesJailRole(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "role-a")
	ctx := context.Background()

	if err := rig.store.UpsertGuildConfig(&storage.GuildConfig{GuildID: "g1", JailRoleID: "jail-role"}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	jailReq, err := BuildJailRequest(ctx, "g1", "mod1", []string{"mod-role"}, "target1", "flood", "jail-role", rig.adapter)
	if err != nil {
		t.Fatalf("build jail request: %v", err)
	}
	if resp := rig.coord.Execute(ctx, jailReq); !resp.Success {
		t.Fatalf("jail failed: %v", resp.Err)
	}

	// simulate leaving and rejoining: roles reset, jail role absent.
	rig.adapter.roles["target1"] = nil

	if err := rig.coord.HandleMemberJoin(ctx, "g1", "target1"); err != nil {
		t.Fatalf("handle member join: %v", err)
	}

	roles := rig.adapter.roles["target1"]
	found := false
	for _, r := range roles {
		if r == "jail-role" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected jail role re-applied on rejoin, got %v", roles)
	}

	cases, err := rig.store.GetCasesByUser("g1", "target1")
	if err != nil {
		t.Fatalf("get cases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected no new case created on rejoin, got %d cases", len(cases))
	}
}

func TestRestrictedCommandRejection(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	for _, name := range []string{"eval", "E", "jsk", "Jishaku"} {
		if err := rig.perm.SetCommandPermission("g1", name, 3, ""); err == nil {
			t.Fatalf("expected restricted command %q to be rejected", name)
		}
	}
	pc, err := rig.store.GetPermissionCommand("g1", "eval")
	if err != nil {
		t.Fatalf("get permission command: %v", err)
	}
	if pc != nil {
		t.Fatalf("expected no row written for restricted command eval")
	}
}

func TestAuditMonitorRecordsEveryExecution(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1)

	req := BuildBanRequest("g1", "mod1", []string{"mod-role"}, "target1", "spam", 0, rig.adapter)
	rig.coord.Execute(context.Background(), req)

	health := rig.monitor.SystemHealth()
	stats, ok := health.ByClass[ClassBanKick]
	if !ok || stats.Total != 1 {
		t.Fatalf("expected one recorded ban_kick event, got %+v", health.ByClass)
	}
}
