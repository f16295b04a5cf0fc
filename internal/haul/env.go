package haul

import "haulplan.ai/internal/sim/model"

// Cells answers static and live questions about map cells.
type Cells interface {
	// PossibleDestination reports whether c is in bounds, revealed, outside the
	// no-zone border, on passable terrain and free of blocking structures.
	PossibleDestination(c model.Cell) bool
	// ItemsIfValidSpot returns the storable items lying on c. ok is false when c
	// can never host storable items.
	ItemsIfValidSpot(c model.Cell) (items []model.Item, ok bool)
}

// Reservations reports claims other activity holds on cells.
type Reservations interface {
	ReservedByFaction(c model.Cell, faction string) bool
	// RespectedReserver returns the worker whose claim on c worker has to
	// respect. A host may name worker itself when another of its jobs holds c.
	RespectedReserver(c model.Cell, worker string) (claimant string, ok bool)
}

// Reachability is the pathing oracle.
type Reachability interface {
	CanReach(worker string, from, to model.Cell) bool
}

// Workforce exposes worker state and their haul tasks.
type Workforce interface {
	Worker(id string) (model.Worker, bool)
	FactionWorkers(faction string) []model.Worker
	CurrentDelivery(worker string) (model.Delivery, bool)
	QueuedDeliveries(worker string) []model.Delivery
	Forbidden(worker string, c model.Cell) bool
}

// Items resolves live items. ok is false once an item is destroyed.
type Items interface {
	Item(id string) (model.Item, bool)
}

// Haulability filters operator selections and applies the host side effects
// of handing an item over to a posting.
type Haulability interface {
	// AsHaulable returns the item behind obj when obj is an item that may ever
	// be hauled.
	AsHaulable(obj any) (model.Item, bool)
	// ReleaseToPosting unforbids the item and switches its generic haul
	// designation off.
	ReleaseToPosting(it model.Item)
	// EndJobsCarrying ends, on their next scheduling check, any worker job
	// that references the item.
	EndJobsCarrying(itemID string)
}

// World is everything a region's postings need from the host simulation.
type World interface {
	Cells
	Reservations
	Reachability
	Workforce
	Items
	Haulability

	RegionID() int
	// Faction is the acting faction whose reservations block destinations.
	Faction() string
}

// Regions resolves region ids to live worlds.
type Regions interface {
	Region(id int) (World, bool)
	RegionIDs() []int
}
