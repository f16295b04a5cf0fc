package log

import (
	"encoding/json"
	"testing"
	"time"

	"haulplan.ai/internal/sim/world"
)

func TestAuditRoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteAudit(world.AuditEntry{Tick: 1, Event: "COMMITTED", PostingID: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteAudit(world.AuditEntry{Tick: 2, Event: "DELIVERED", PostingID: 1, Count: 30}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir+"/audit", "audit")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected one file per hour, got %v", files)
	}
	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Event != "COMMITTED" || got[1].Count != 30 {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestReopenAppendsFrame(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		l := NewPostingLogger(dir)
		l.w.now = func() time.Time { return clock }
		if err := l.UpsertPosting(world.PostingState{Tick: uint64(i), PostingID: 7}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	files, err := Files(dir+"/postings", "postings")
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v %v", files, err)
	}
	var ticks []uint64
	err = ReadFile(files[0], func(line []byte) error {
		var st world.PostingState
		if err := json.Unmarshal(line, &st); err != nil {
			return err
		}
		ticks = append(ticks, st.Tick)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(ticks) != 2 || ticks[0] != 0 || ticks[1] != 1 {
		t.Fatalf("ticks = %v", ticks)
	}
}

func TestEachTickStreamsInOrder(t *testing.T) {
	dir := t.TempDir()
	if err := EachTick(dir, func(world.TickLogEntry) error { return nil }); err == nil {
		t.Fatalf("expected error for missing tick logs")
	}

	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }
	for i := 0; i < 4; i++ {
		if i == 2 {
			clock = clock.Add(time.Hour)
		}
		entry := world.TickLogEntry{Tick: uint64(i), Digest: "d"}
		if i == 1 {
			entry.Commands = []world.RecordedCommand{{Kind: world.CmdSelect, Region: 1, Items: []string{"a"}, OK: true}}
		}
		if err := l.WriteTick(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []uint64
	err := EachTick(dir, func(e world.TickLogEntry) error {
		got = append(got, e.Tick)
		if e.Tick == 1 && (len(e.Commands) != 1 || e.Commands[0].Kind != world.CmdSelect) {
			t.Fatalf("commands = %+v", e.Commands)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("EachTick: %v", err)
	}
	if len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Fatalf("ticks = %v", got)
	}
}
