package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/duskward/wardencore/pkg/storage"
)

func TestExpirySweeperReversesExpiredTempban(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "member-role")

	past := time.Now().Add(-time.Minute)
	if _, err := rig.store.CreateCase("g1", "target1", "mod1", storage.CaseTempban, "spam", &past, nil); err != nil {
		t.Fatalf("create case: %v", err)
	}
	rig.adapter.banned["target1"] = true

	sweeper := NewExpirySweeper(rig.store, rig.coord)
	count, err := sweeper.Sweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired case, got %d", count)
	}
	if rig.adapter.banned["target1"] {
		t.Fatalf("expected target1 to be unbanned")
	}

	latest, err := rig.store.GetLatestCaseByUser("g1", "target1")
	if err != nil {
		t.Fatalf("get latest case: %v", err)
	}
	if latest.CaseType != storage.CaseUnban {
		t.Fatalf("expected latest case to be UNBAN, got %s", latest.CaseType)
	}
}

func TestExpirySweeperIgnoresUnexpiredCases(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target1", 1, "member-role")

	future := time.Now().Add(time.Hour)
	if _, err := rig.store.CreateCase("g1", "target1", "mod1", storage.CaseTempban, "spam", &future, nil); err != nil {
		t.Fatalf("create case: %v", err)
	}

	sweeper := NewExpirySweeper(rig.store, rig.coord)
	count, err := sweeper.Sweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 expired cases, got %d", count)
	}
}

func TestExpirySweeperReversesExpiredTimeout(t *testing.T) {
	rig := newTestRig(t, "g1", "mod-role", 5, 3)
	rig.adapter.addMember("target2", 1, "member-role")

	past := time.Now().Add(-time.Minute)
	if _, err := rig.store.CreateCase("g1", "target2", "mod1", storage.CaseTimeout, "cooldown", &past, nil); err != nil {
		t.Fatalf("create case: %v", err)
	}

	sweeper := NewExpirySweeper(rig.store, rig.coord)
	count, err := sweeper.Sweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired case, got %d", count)
	}

	latest, err := rig.store.GetLatestCaseByUser("g1", "target2")
	if err != nil {
		t.Fatalf("get latest case: %v", err)
	}
	if latest.CaseType != storage.CaseUntimeout {
		t.Fatalf("expected latest case to be UNTIMEOUT, got %s", latest.CaseType)
	}
}
