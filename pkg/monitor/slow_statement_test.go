package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/clock"
)

func TestSlowStatementLog_Record(t *testing.T) {
	c := clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	log := NewSlowStatementLog(100*time.Millisecond, 10, c)

	if id := log.Record("SELECT 1", "s1", 50*time.Millisecond, 0, nil); id != 0 {
		t.Errorf("fast statement recorded with id %d", id)
	}
	id := log.Record("UPDATE t SET a = 1", "s1", 100*time.Millisecond, 3, nil)
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}
	log.Record("DELETE FROM t", "s2", time.Second, 0, errors.New("locked"))

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].AffectedRows != 3 || !entries[0].Timestamp.Equal(c.Now()) {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if entries[1].Error != "locked" {
		t.Errorf("Error = %q, want locked", entries[1].Error)
	}
	if got := log.BySession("s2"); len(got) != 1 || got[0].SQL != "DELETE FROM t" {
		t.Errorf("BySession(s2) = %+v", got)
	}
}

func TestSlowStatementLog_MaxEntries(t *testing.T) {
	log := NewSlowStatementLog(time.Millisecond, 2, nil)
	for i := 0; i < 3; i++ {
		log.Record("SELECT 1", "s1", time.Second, 0, nil)
	}

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != 2 || entries[1].ID != 3 {
		t.Errorf("oldest entry not dropped: %d, %d", entries[0].ID, entries[1].ID)
	}

	log.Clear()
	if len(log.Entries()) != 0 {
		t.Error("Clear should drop all entries")
	}
}

func TestSlowStatementLog_Threshold(t *testing.T) {
	log := NewSlowStatementLog(0, 10, nil)
	// 阈值为 0 时不记录
	if log.IsSlow(time.Hour) {
		t.Error("zero threshold should disable the log")
	}

	log.SetThreshold(time.Second)
	if log.Threshold() != time.Second {
		t.Errorf("Threshold = %v, want 1s", log.Threshold())
	}
	if !log.IsSlow(2 * time.Second) {
		t.Error("2s should be slow")
	}
}
