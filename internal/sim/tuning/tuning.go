package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int    `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	GCEveryTicks       int    `yaml:"gc_every_ticks"`
	Faction            string `yaml:"faction"`

	Search Search `yaml:"search"`
	Worker Worker `yaml:"worker"`
}

type Search struct {
	// MaxCells bounds each destination flood fill; 0 leaves it bounded by the region.
	MaxCells     int `yaml:"max_cells"`
	NoZoneBorder int `yaml:"no_zone_border"`
}

type Worker struct {
	CellsPerTick int `yaml:"cells_per_tick"`
	PickupTicks  int `yaml:"pickup_ticks"`
	// MaxQueued is how many haul jobs a worker may queue behind its current one.
	MaxQueued int `yaml:"max_queued"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		SnapshotEveryTicks: 3000,
		GCEveryTicks:       250,
		Faction:            "colony",
		Search:             Search{MaxCells: 0, NoZoneBorder: 1},
		Worker:             Worker{CellsPerTick: 1, PickupTicks: 2, MaxQueued: 1},
	}
}

// Load reads path over Defaults. Keys missing from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be positive")
	case t.Search.MaxCells < 0:
		return fmt.Errorf("search.max_cells must not be negative")
	case t.Search.NoZoneBorder < 0:
		return fmt.Errorf("search.no_zone_border must not be negative")
	case t.Worker.CellsPerTick <= 0:
		return fmt.Errorf("worker.cells_per_tick must be positive")
	case t.Worker.PickupTicks < 0:
		return fmt.Errorf("worker.pickup_ticks must not be negative")
	case t.Worker.MaxQueued < 0:
		return fmt.Errorf("worker.max_queued must not be negative")
	case t.Faction == "":
		return fmt.Errorf("faction must be set")
	}
	return nil
}
