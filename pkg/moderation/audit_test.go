package moderation

import (
	"testing"
	"time"
)

func TestMonitorRecordsAndSummarizes(t *testing.T) {
	m := NewMonitor(4)
	now := time.Unix(1700000000, 0).UTC()

	m.Record(AuditEvent{Timestamp: now, OperationType: ClassBanKick, Success: true, ResponseTime: 5 * time.Millisecond})
	m.Record(AuditEvent{Timestamp: now, OperationType: ClassBanKick, Success: false, ResponseTime: 2 * time.Second, ErrorMessage: "Authorization: denied"})

	health := m.SystemHealth()
	stats := health.ByClass[ClassBanKick]
	if stats.Total != 2 || stats.Successful != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if health.ErrorTokens["Authorization"] != 1 {
		t.Fatalf("expected error token 'Authorization' counted once, got %v", health.ErrorTokens)
	}
}

func TestMonitorRingBufferBounded(t *testing.T) {
	m := NewMonitor(3)
	for i := 0; i < 10; i++ {
		m.Record(AuditEvent{Timestamp: time.Now(), OperationType: ClassMessages})
	}
	if len(m.RecentEvents(100)) != 3 {
		t.Fatalf("expected ring buffer capped at 3 events, got %d", len(m.RecentEvents(100)))
	}
}

func TestMonitorClearOldDataPrunesAndResetsCounters(t *testing.T) {
	m := NewMonitor(16)
	old := AuditEvent{Timestamp: time.Now().Add(-48 * time.Hour), OperationType: ClassTimeout}
	recent := AuditEvent{Timestamp: time.Now(), OperationType: ClassTimeout}
	m.Record(old)
	m.Record(recent)
	m.RecordLockContention()
	m.RecordBreakerTrip(ClassTimeout)

	m.ClearOldData(24 * time.Hour)

	if len(m.RecentEvents(100)) != 1 {
		t.Fatalf("expected only the recent event to survive pruning, got %d", len(m.RecentEvents(100)))
	}
	health := m.SystemHealth()
	if health.LockContention != 0 {
		t.Fatalf("expected lock contention reset, got %d", health.LockContention)
	}
	if health.ByClass[ClassTimeout].BreakerTrips != 0 {
		t.Fatalf("expected breaker trip count reset, got %d", health.ByClass[ClassTimeout].BreakerTrips)
	}
}
