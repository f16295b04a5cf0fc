package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Regions         []RegionInfo   `json:"regions"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

// RegionInfo carries a region's cell layers, run-length encoded row-major
// (see internal/sim/encoding). Empty fog or fire means no such cells.
type RegionInfo struct {
	ID      int    `json:"id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Terrain string `json:"terrain"`
	Fog     string `json:"fog,omitempty"`
	Fire    string `json:"fire,omitempty"`
}

type CatalogDigests struct {
	ItemPalette   DigestRef `json:"item_palette"`
	ItemDefs      string    `json:"item_defs_digest"`
	TerrainDigest string    `json:"terrain_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// SELECT (client -> server): start planning a posting from a selection.
type SelectMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id"`
	Region          int      `json:"region"`
	Items           []string `json:"items"`
}

// PREVIEW (client -> server): search destinations around cursor.
type PreviewMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id"`
	Ref             string     `json:"ref"`
	Cursor          [2]float64 `json:"cursor"`
}

// COMMIT (client -> server): register the planned posting at cursor.
type CommitMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id"`
	Ref             string     `json:"ref"`
	Cursor          [2]float64 `json:"cursor"`
}

type DiscardMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Ref             string `json:"ref"`
}

type CancelItemMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	Item            string `json:"item"`
}

type SetQuantityMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	PostingID       int    `json:"posting_id"`
	Item            string `json:"item"`
	Quantity        int    `json:"quantity"`
}

type AckMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	AckFor          string   `json:"ack_for"`
	Accepted        bool     `json:"accepted"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	Ref             string   `json:"ref,omitempty"`
	PostingID       int      `json:"posting_id,omitempty"`
	Items           []string `json:"items,omitempty"`
	ServerTick      uint64   `json:"server_tick,omitempty"`
}

// PREVIEW_RESULT (server -> client): the destination set around the cursor.
type PreviewResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AckFor          string     `json:"ack_for"`
	Ref             string     `json:"ref"`
	OK              bool       `json:"ok"`
	Destinations    [][2]int   `json:"destinations"`
	Center          [2]float64 `json:"center"`
	Radius          float64    `json:"radius"`
}

// POSTING_STATUS (server -> client): pushed whenever a posting moves.
type PostingStatusMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	PostingID       int            `json:"posting_id"`
	Region          int            `json:"region"`
	Status          string         `json:"status"`
	Removed         bool           `json:"removed,omitempty"`
	Records         []RecordStatus `json:"records"`
}

type RecordStatus struct {
	Label     string `json:"label"`
	Def       string `json:"def"`
	Stuff     string `json:"stuff,omitempty"`
	Selected  int    `json:"selected"`
	Effective int    `json:"effective"`
	Moved     int    `json:"moved"`
	Remaining int    `json:"remaining"`
}
