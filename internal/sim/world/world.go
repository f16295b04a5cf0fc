package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"haulplan.ai/internal/haul"
	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/model"
	"haulplan.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Seed   int64
	Tuning tuning.Tuning
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// PostingIndex receives the latest state of every posting whose status or
// progress changed.
type PostingIndex interface {
	UpsertPosting(state PostingState) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type RecordedCommand struct {
	Kind      CommandKind `json:"kind"`
	Region    int         `json:"region,omitempty"`
	Ref       string      `json:"ref,omitempty"`
	Items     []string    `json:"items,omitempty"`
	Cursor    [2]float64  `json:"cursor,omitempty"`
	PostingID int         `json:"posting_id,omitempty"`
	Item      string      `json:"item,omitempty"`
	Quantity  int         `json:"quantity,omitempty"`
	OK        bool        `json:"ok"`
	Code      string      `json:"code,omitempty"`
}

type AuditEntry struct {
	Tick      uint64 `json:"tick"`
	Event     string `json:"event"` // e.g. "COMMITTED", "DELIVERED"
	Region    int    `json:"region"`
	PostingID int    `json:"posting_id"`
	Item      string `json:"item,omitempty"`
	Worker    string `json:"worker,omitempty"`
	Count     int    `json:"count,omitempty"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// World is the reference host for the haul engine: a set of grid regions,
// the items lying on them and the workers that carry them.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	tune     tuning.Tuning
	catalogs *catalogs.Catalogs
	log      *log.Logger

	tick atomic.Uint64

	regions map[int]*Region
	items   map[string]*ItemEntity
	ground  map[regionCell][]string
	workers map[string]*WorkerState

	reservations map[regionCell]string
	itemClaims   map[string]string
	endJobs      map[string]bool

	haul     *haul.Service
	planning map[string]*haul.Posting
	tracked  map[int]PostingState

	rng   *rand.Rand
	reach *reachCache

	nextItemNum atomic.Uint64

	inbox chan Command
	stop  chan struct{}
	once  sync.Once

	subMu       sync.Mutex
	subscribers map[int]chan PostingState
	nextSub     int

	tickLogger   TickLogger
	auditLogger  AuditLogger
	postingIndex PostingIndex
	metrics      *Metrics

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

// New builds an empty world. A nil logger discards.
func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	seed := uint64(cfg.Seed)
	w := &World{
		cfg:          cfg,
		tune:         cfg.Tuning,
		catalogs:     cats,
		log:          logger,
		regions:      map[int]*Region{},
		items:        map[string]*ItemEntity{},
		ground:       map[regionCell][]string{},
		workers:      map[string]*WorkerState{},
		reservations: map[regionCell]string{},
		itemClaims:   map[string]string{},
		endJobs:      map[string]bool{},
		planning:     map[string]*haul.Posting{},
		tracked:      map[int]PostingState{},
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		reach:        newReachCache(),
		inbox:        make(chan Command, 1024),
		stop:         make(chan struct{}),
		subscribers:  map[int]chan PostingState{},
	}
	w.haul = haul.NewService(regionSet{w}, haul.Options{
		Logger:         logger,
		Hooks:          hooks{w},
		MaxSearchCells: cfg.Tuning.Search.MaxCells,
		Rand:           w.rng,
	})
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetPostingIndex(ix PostingIndex)               { w.postingIndex = ix }
func (w *World) SetMetrics(m *Metrics)                         { w.metrics = m }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string                   { return w.cfg.ID }
func (w *World) Inbox() chan<- Command        { return w.inbox }
func (w *World) CurrentTick() uint64          { return w.tick.Load() }
func (w *World) Haul() *haul.Service          { return w.haul }
func (w *World) Tuning() tuning.Tuning        { return w.tune }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

// Subscribe streams posting state changes. Slow subscribers lose the oldest
// pending update. The returned func unsubscribes.
func (w *World) Subscribe(buffer int) (<-chan PostingState, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan PostingState, buffer)
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subscribers[id] = ch
	w.subMu.Unlock()
	return ch, func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		if _, ok := w.subscribers[id]; ok {
			delete(w.subscribers, id)
			close(ch)
		}
	}
}

func (w *World) publish(st PostingState) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subscribers {
		sendLatest(ch, st)
	}
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Command
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case cmd := <-w.inbox:
			pending = append(pending, cmd)
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { w.once.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is intended for tests and offline scenario runs.
func (w *World) StepOnce(cmds []Command) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(cmds)
	return tick, w.stateDigest(tick)
}

func (w *World) step(cmds []Command) {
	start := time.Now()
	nowTick := w.tick.Load()
	w.reach.reset()

	// Operator commands apply at the tick boundary in inbox order.
	recorded := make([]RecordedCommand, 0, len(cmds))
	for _, cmd := range cmds {
		res := w.apply(cmd, nowTick)
		recorded = append(recorded, cmd.record(res))
		if cmd.Reply != nil {
			select {
			case cmd.Reply <- res:
			default:
			}
		}
	}

	w.systemHaul(nowTick)

	if w.tune.GCEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.tune.GCEveryTicks) == 0 {
		w.haul.CleanGarbage()
	}
	w.trackPostings(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest}); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}

	every := uint64(w.tune.SnapshotEveryTicks)
	if w.snapshotSink != nil && every > 0 && nowTick != 0 && nowTick%every == 0 {
		w.haul.CleanGarbage()
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	if w.metrics != nil {
		w.metrics.observeStep(nowTick, time.Since(start), len(w.inbox))
	}
	w.tick.Add(1)
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Tick = w.tick.Load()
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.log.Printf("audit: %v", err)
	}
}

// stateDigest hashes the haul-relevant state: item placement, worker jobs and
// posting progress.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	put(int64(nowTick))
	for _, it := range w.sortedItems() {
		io.WriteString(h, it.ID)
		put(int64(it.Region))
		put(int64(it.Count))
		put(int64(it.Pos.X))
		put(int64(it.Pos.Z))
		io.WriteString(h, it.Holder)
	}
	for _, wk := range w.sortedWorkers() {
		io.WriteString(h, wk.ID)
		put(int64(wk.Pos.X))
		put(int64(wk.Pos.Z))
		if wk.Job != nil {
			put(int64(wk.Job.PostingID))
			put(int64(wk.Job.Phase))
		}
	}
	for _, r := range w.haul.Registries() {
		for _, p := range r.Postings() {
			put(int64(p.ID()))
			for _, rec := range p.Inventory() {
				put(int64(rec.MovedQuantity()))
				put(int64(rec.EffectiveQuantity()))
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) sortedItems() []*ItemEntity {
	out := make([]*ItemEntity, 0, len(w.items))
	for _, it := range w.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) sortedWorkers() []*WorkerState {
	out := make([]*WorkerState, 0, len(w.workers))
	for _, wk := range w.workers {
		out = append(out, wk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func cellOf(p [2]int) model.Cell { return model.Cell{X: p[0], Z: p[1]} }
