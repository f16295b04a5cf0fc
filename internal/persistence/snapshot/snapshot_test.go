package snapshot

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header:   Header{WorldID: "w1", Tick: 3000},
		Seed:     42,
		TickRate: 5,
		Faction:  "colony",
		Regions: []RegionV1{{
			ID: 1, Width: 2, Height: 2,
			Terrain: []uint8{0, 1, 0, 0},
			Fog:     []bool{false, false, true, false},
			Fire:    []bool{false, false, false, false},
		}},
		Items: []ItemV1{{ID: "a", Def: "wood", Count: 30, StackLimit: 75, Region: 1, Pos: [2]int{0, 0}}},
		Workers: []WorkerV1{{
			ID: "w1", Faction: "colony", Region: 1, Pos: [2]int{1, 1},
			Job: &JobV1{PostingID: 1, ItemID: "a", Def: "wood", Count: 30, Targets: [][2]int{{0, 1}}, Phase: 2, Carried: "a"},
		}},
		Reservations: []ReservationV1{{Region: 1, Pos: [2]int{0, 1}, Worker: "w1"}},
		Haul: &HaulV1{
			FormatVersion: HaulFormatVersion,
			NextPostingID: 3,
			Registries: []RegistryV1{{RegionID: 1, Postings: []PostingV1{
				{ID: 1, RegionID: 1, HasDestinations: true, Destinations: [][2]int{{0, 1}},
					HasCursor: true, Cursor: [2]float64{0.5, 1.5},
					Records: []RecordV1{{Def: "wood", StackLimit: 75, Items: []string{"a"}, Selected: 30, Override: -1}}},
				{ID: 2, RegionID: 1, HasDestinations: true},
			}}},
		},
		Counters: CountersV1{NextItem: 9},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "3000.snap.zst")
	if err := WriteSnapshot(path, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}

	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if hdr.Version != Version || hdr.Tick != 3000 || hdr.SaveID == "" {
		t.Fatalf("header = %+v", hdr)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.SaveID != hdr.SaveID {
		t.Fatalf("save id %q != header %q", got.Header.SaveID, hdr.SaveID)
	}
	if got.Workers[0].Job == nil || got.Workers[0].Job.Carried != "a" {
		t.Fatalf("job lost: %+v", got.Workers[0])
	}
	ps := got.Haul.Registries[0].Postings
	if len(ps) != 2 || !ps[1].HasDestinations || len(ps[1].Destinations) != 0 {
		t.Fatalf("empty destination set must survive via its flag: %+v", ps)
	}
	if ps[0].Records[0].Override != -1 || ps[0].Cursor != [2]float64{0.5, 1.5} {
		t.Fatalf("posting 1 mismatch: %+v", ps[0])
	}
}

func TestDecodeWithoutHaul(t *testing.T) {
	snap := sample()
	snap.Header.Version = Version
	snap.Haul = nil
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Haul != nil {
		t.Fatalf("expected no haul section, got %+v", got.Haul)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	snap := sample()
	snap.Header.Version = Version + 1
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(&buf); err == nil || !strings.Contains(err.Error(), "unsupported snapshot version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	var buf bytes.Buffer
	enc, _ := zstd.NewWriter(&buf)
	_, _ = enc.Write([]byte(`{"version":1`))
	_ = enc.Close()
	if _, err := Decode(&buf); err == nil {
		t.Fatalf("expected header error")
	}
}
