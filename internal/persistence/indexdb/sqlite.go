// Package indexdb mirrors the world's tick, audit and posting streams into a
// queryable sqlite database. The JSONL logs stay the source of truth; the
// index drops writes when it falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/tuning"
	"haulplan.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropPosting  atomic.Uint64
	dropSnapshot atomic.Uint64
	failCommit   atomic.Uint64
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropAuditTotal    uint64
	DropPostingTotal  uint64
	DropSnapshotTotal uint64
	// CommitFailTotal counts batches lost to a failed commit.
	CommitFailTotal uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqPosting
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	posting  world.PostingState
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	SaveID   string
	Seed     int64
	Regions  int
	Items    int
	Workers  int
	Postings int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			posting_id INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_posting ON commands(posting_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			region INTEGER NOT NULL,
			posting_id INTEGER NOT NULL,
			item TEXT,
			worker TEXT,
			count INTEGER NOT NULL,
			status TEXT,
			detail TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_posting_tick ON audits(posting_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_worker_tick ON audits(worker, tick);`,
		`CREATE TABLE IF NOT EXISTS postings (
			posting_id INTEGER PRIMARY KEY,
			region INTEGER NOT NULL,
			status TEXT NOT NULL,
			tick INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			records_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_postings_status ON postings(status);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			save_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			items INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			postings INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropPostingTotal:  s.dropPosting.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		CommitFailTotal:   s.failCommit.Load(),
	}
}

func (s *SQLiteIndex) commitTx(tx *sql.Tx) {
	if err := tx.Commit(); err != nil {
		s.failCommit.Add(1)
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) UpsertPosting(st world.PostingState) error {
	s.enqueue(req{kind: reqPosting, posting: st}, &s.dropPosting)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		SaveID:  snap.Header.SaveID,
		Seed:    snap.Seed,
		Regions: len(snap.Regions),
		Items:   len(snap.Items),
		Workers: len(snap.Workers),
	}
	if snap.Haul != nil {
		for _, reg := range snap.Haul.Registries {
			r.Postings += len(reg.Postings)
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// UpsertCatalogs stores the digests and canonical JSON of the catalogs and
// tuning a world runs with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	defs := make([]catalogs.ItemDef, 0, len(cats.Items.Palette))
	for _, id := range cats.Items.Palette {
		defs = append(defs, cats.Items.Defs[id])
	}
	if b, _ := json.Marshal(defs); len(b) > 0 {
		rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Terrain.Defs); len(b) > 0 {
		rows = append(rows, kv{name: "terrain", digest: cats.Terrain.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,raw_json) VALUES(?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,kind,posting_id,ok,code,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,event,region,posting_id,item,worker,count,status,detail,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	upsertPosting, _ := s.db.Prepare(`INSERT OR REPLACE INTO postings(posting_id,region,status,tick,removed,records_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,save_id,seed,regions,items,workers,postings) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertAudit, upsertPosting, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		s.commitTx(tx)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(stmt *sql.Stmt, args ...any) bool {
		if stmt == nil {
			return true
		}
		if _, err := tx.Stmt(stmt).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if !exec(insertTick, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Commands), string(b)) {
				continue
			}
			for i, c := range r.tick.Commands {
				raw, _ := json.Marshal(c)
				if !exec(insertCommand, int64(r.tick.Tick), i, string(c.Kind), c.PostingID, boolInt(c.OK), c.Code, string(raw)) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Event, a.Region, a.PostingID, a.Item, a.Worker, a.Count, a.Status, a.Detail, string(raw))

		case reqPosting:
			p := r.posting
			recs, _ := json.Marshal(p.Records)
			exec(upsertPosting, p.PostingID, p.Region, p.Status.String(), int64(p.Tick), boolInt(p.Removed), string(recs))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.SaveID, sn.Seed, sn.Regions, sn.Items, sn.Workers, sn.Postings)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
