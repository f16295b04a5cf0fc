package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haulplan.ai/internal/persistence/indexdb"
	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/tuning"
	"haulplan.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	world.PostingIndex
	Close() error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("HAUL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported HAUL_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteTick(entry)
		}
	}
	return nil
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteAudit(entry)
		}
	}
	return nil
}

type multiPostingIndex []world.PostingIndex

func (m multiPostingIndex) UpsertPosting(st world.PostingState) error {
	for _, ix := range m {
		if ix != nil {
			_ = ix.UpsertPosting(st)
		}
	}
	return nil
}
