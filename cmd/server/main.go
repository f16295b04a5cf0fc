package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"haulplan.ai/internal/persistence/indexdb"
	persistlog "haulplan.ai/internal/persistence/log"
	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/model"
	"haulplan.ai/internal/sim/scenario"
	"haulplan.ai/internal/sim/tuning"
	"haulplan.ai/internal/sim/world"
	"haulplan.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "", "catalog directory with items.json and terrain.json (default: built-in catalogs)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in tuning)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks, audits, postings, snapshot metadata)")

		scenarioPath = flag.String("scenario", "", "scenario yaml for a fresh world; postings at tick 0 are made at startup")
		snapPath     = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest   = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats := catalogs.Default()
	if dir := strings.TrimSpace(*configDir); dir != "" {
		var err error
		if cats, err = catalogs.Load(dir); err != nil {
			logger.Fatalf("load catalogs: %v", err)
		}
	}
	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		var err error
		if tune, err = tuning.Load(tp); err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	cfg := world.WorldConfig{ID: *worldID, Tuning: tune}
	w, err := buildWorld(cfg, cats, logger, snapshotToLoad, strings.TrimSpace(*scenarioPath))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, w.Tuning()); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	postingLog := persistlog.NewPostingLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	defer postingLog.Close()
	var (
		ticks    = multiTickLogger{tickLog}
		audits   = multiAuditLogger{auditLog}
		postings = multiPostingIndex{postingLog}
	)
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
		postings = append(postings, idx)
	}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)
	w.SetPostingIndex(postings)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	w.SetMetrics(world.NewMetrics(reg))
	if s, ok := idx.(*indexdb.SQLiteIndex); ok {
		registerIndexMetrics(reg, s)
	}

	wsSrv, err := ws.NewServer(w, logger)
	if err != nil {
		logger.Fatalf("ws: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	if idx != nil {
		ro, err := indexdb.OpenReadOnly(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index read-only: %v", err)
		}
		defer ro.Close()
		mux.HandleFunc("/admin/v1/postings", postingsHandler(ro))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	})
	g.Go(func() error {
		err := w.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s world=%s tick=%d", *addr, w.ID(), w.CurrentTick())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
}

// buildWorld resumes from snapPath when set, else builds a fresh world from
// scenarioPath.
func buildWorld(cfg world.WorldConfig, cats *catalogs.Catalogs, logger *log.Logger, snapPath, scenarioPath string) (*world.World, error) {
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.ID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", cfg.ID, snap.Header.WorldID)
		}
		w, err := world.NewFromSnapshot(cfg, cats, logger, snap)
		if err != nil {
			return nil, err
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapPath), w.CurrentTick())
		return w, nil
	}
	if scenarioPath == "" {
		return nil, fmt.Errorf("no snapshot to resume; pass -scenario to start a fresh world")
	}
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return nil, err
	}
	w, err := world.NewFromScenario(cfg, cats, logger, sc)
	if err != nil {
		return nil, err
	}
	for _, ps := range sc.Postings {
		if ps.AtTick != 0 {
			logger.Printf("scenario posting %s at tick %d skipped; only tick 0 postings are made at startup", ps.Name, ps.AtTick)
			continue
		}
		id, err := w.Post(ps.Region, ps.Items, model.Point{X: ps.Cursor[0], Z: ps.Cursor[1]}, ps.Quantities)
		if err != nil {
			return nil, fmt.Errorf("posting %s: %w", ps.Name, err)
		}
		logger.Printf("scenario posting %s registered as %d", ps.Name, id)
	}
	return w, nil
}

func postingsHandler(db *sql.DB) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rows, err := indexdb.Postings(r.Context(), db, r.URL.Query().Get("status"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(rows)
	}
}

func registerIndexMetrics(reg prometheus.Registerer, idx *indexdb.SQLiteIndex) {
	gauge := func(name, help string, fn func(indexdb.Stats) float64) {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return fn(idx.Stats())
		}))
	}
	gauge("haulplan_index_queue_depth", "Index writes waiting for the writer", func(s indexdb.Stats) float64 { return float64(s.QueueDepth) })
	gauge("haulplan_index_dropped_ticks", "Tick rows dropped by a full index queue", func(s indexdb.Stats) float64 { return float64(s.DropTickTotal) })
	gauge("haulplan_index_dropped_audits", "Audit rows dropped by a full index queue", func(s indexdb.Stats) float64 { return float64(s.DropAuditTotal) })
	gauge("haulplan_index_dropped_postings", "Posting rows dropped by a full index queue", func(s indexdb.Stats) float64 { return float64(s.DropPostingTotal) })
	gauge("haulplan_index_commit_failures", "Index batches lost to a failed commit", func(s indexdb.Stats) float64 { return float64(s.CommitFailTotal) })
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
