package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Version is the snapshot root format.
const Version = 1

// HaulFormatVersion tags the persisted haul registries.
const HaulFormatVersion = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	SaveID  string `json:"save_id"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64  `json:"seed"`
	TickRate     int    `json:"tick_rate_hz"`
	Faction      string `json:"faction"`
	NoZoneBorder int    `json:"no_zone_border"`

	Regions      []RegionV1      `json:"regions"`
	Items        []ItemV1        `json:"items"`
	Workers      []WorkerV1      `json:"workers"`
	Reservations []ReservationV1 `json:"reservations,omitempty"`

	// Haul is nil in saves written before postings existed.
	Haul *HaulV1 `json:"haul,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextItem uint64 `json:"next_item"`
}

type RegionV1 struct {
	ID      int     `json:"id"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Terrain []uint8 `json:"terrain"`
	Fog     []bool  `json:"fog,omitempty"`
	Fire    []bool  `json:"fire,omitempty"`
}

type ItemV1 struct {
	ID         string `json:"id"`
	Def        string `json:"def"`
	Stuff      string `json:"stuff,omitempty"`
	InnerDef   string `json:"inner_def,omitempty"`
	Count      int    `json:"count"`
	StackLimit int    `json:"stack_limit"`
	Region     int    `json:"region"`
	Pos        [2]int `json:"pos"`
	Holder     string `json:"holder,omitempty"`
	Forbidden  bool   `json:"forbidden,omitempty"`
	Designated bool   `json:"designated,omitempty"`
}

type WorkerV1 struct {
	ID          string  `json:"id"`
	Faction     string  `json:"faction"`
	Region      int     `json:"region"`
	Pos         [2]int  `json:"pos"`
	AllowedArea *[4]int `json:"allowed_area,omitempty"`
	Job         *JobV1  `json:"job,omitempty"`
	Queue       []JobV1 `json:"queue,omitempty"`
}

type JobV1 struct {
	PostingID int      `json:"posting_id"`
	ItemID    string   `json:"item_id"`
	Def       string   `json:"def"`
	Stuff     string   `json:"stuff,omitempty"`
	InnerDef  string   `json:"inner_def,omitempty"`
	Count     int      `json:"count"`
	Targets   [][2]int `json:"targets"`
	Phase     uint8    `json:"phase"`
	Carried   string   `json:"carried,omitempty"`
	Wait      int      `json:"wait,omitempty"`
}

type ReservationV1 struct {
	Region int    `json:"region"`
	Pos    [2]int `json:"pos"`
	Worker string `json:"worker"`
}

type HaulV1 struct {
	FormatVersion int          `json:"format_version"`
	NextPostingID int          `json:"next_posting_id"`
	Registries    []RegistryV1 `json:"registries"`
}

type RegistryV1 struct {
	RegionID int         `json:"region_id"`
	Postings []PostingV1 `json:"postings"`
}

// PostingV1 keeps explicit presence flags because gob cannot tell a nil slice
// from an empty one.
type PostingV1 struct {
	ID       int        `json:"id"`
	RegionID int        `json:"region_id"`
	Records  []RecordV1 `json:"records"`

	HasDestinations bool       `json:"has_destinations"`
	Destinations    [][2]int   `json:"destinations,omitempty"`
	HasCursor       bool       `json:"has_cursor"`
	Cursor          [2]float64 `json:"cursor"`
	Center          [2]float64 `json:"center"`
	Radius          float64    `json:"radius"`
}

// RecordV1 omits merge bookkeeping; the next destination search rebuilds it.
type RecordV1 struct {
	Def        string   `json:"def"`
	Stuff      string   `json:"stuff,omitempty"`
	InnerDef   string   `json:"inner_def,omitempty"`
	StackLimit int      `json:"stack_limit"`
	Items      []string `json:"items"`
	Selected   int      `json:"selected"`
	Override   int      `json:"override"`
	Moved      int      `json:"moved"`
	Overshoot  int      `json:"overshoot,omitempty"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, the whole
// stream zstd-compressed. An empty SaveID is filled in.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if snap.Header.SaveID == "" {
		snap.Header.SaveID = uuid.NewString()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func Encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	hdr, err := readHeader(br)
	if err != nil {
		return snap, err
	}
	if hdr.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the header line of a snapshot file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var hdr Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return hdr, fmt.Errorf("snapshot header: %w", io.ErrUnexpectedEOF)
		}
		return hdr, err
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, fmt.Errorf("snapshot header: %w", err)
	}
	return hdr, nil
}
