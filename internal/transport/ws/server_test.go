package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"haulplan.ai/internal/protocol"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/encoding"
	"haulplan.ai/internal/sim/model"
	"haulplan.ai/internal/sim/tuning"
	"haulplan.ai/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, *websocket.Conn) {
	t.Helper()
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	w, err := world.New(world.WorldConfig{ID: "ws", Seed: 7, Tuning: tune}, catalogs.Default(), nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	if err := w.AddRegion(world.NewRegion(1, 7, 7)); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	if _, err := w.SpawnItem(world.ItemSpec{ID: "a", Def: "wood", Count: 30, Region: 1, Pos: model.Cell{X: 2, Z: 2}}); err != nil {
		t.Fatalf("SpawnItem: %v", err)
	}

	srv, err := NewServer(w, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return w, conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readType reads messages until one of type typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		if err := json.Unmarshal(msg, out); err != nil {
			t.Fatalf("unmarshal %s: %v", typ, err)
		}
		return
	}
	t.Fatalf("timed out waiting for %s", typ)
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	writeMsg(t, conn, `{"type":"HELLO","protocol_version":"1.0","client_name":"ops"}`)
	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	return welcome
}

func TestSessionCommitsAndStreamsStatus(t *testing.T) {
	_, conn := startWorld(t)

	welcome := hello(t, conn)
	if welcome.SessionID == "" || welcome.WorldID != "ws" {
		t.Fatalf("welcome=%+v", welcome)
	}
	if len(welcome.Regions) != 1 || welcome.Regions[0].ID != 1 || welcome.Regions[0].Width != 7 {
		t.Fatalf("regions=%+v", welcome.Regions)
	}
	terrain, err := encoding.DecodeCells(welcome.Regions[0].Terrain, 49)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	for i, c := range terrain {
		if c != 0 {
			t.Fatalf("cell %d terrain %d, want open", i, c)
		}
	}
	if welcome.Catalogs.ItemPalette.Count == 0 || welcome.Catalogs.TerrainDigest == "" {
		t.Fatalf("catalogs=%+v", welcome.Catalogs)
	}

	writeMsg(t, conn, `{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":1,"items":["a"]}`)
	var sel protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &sel)
	if !sel.Accepted || sel.AckFor != "r1" || sel.Ref == "" {
		t.Fatalf("select ack=%+v", sel)
	}

	writeMsg(t, conn, `{"type":"PREVIEW","protocol_version":"1.0","request_id":"r2","ref":"`+sel.Ref+`","cursor":[4.5,4.5]}`)
	var prev protocol.PreviewResultMsg
	readType(t, conn, protocol.TypePreviewResult, &prev)
	if !prev.OK || prev.AckFor != "r2" || len(prev.Destinations) == 0 {
		t.Fatalf("preview=%+v", prev)
	}

	writeMsg(t, conn, `{"type":"COMMIT","protocol_version":"1.0","request_id":"r3","ref":"`+sel.Ref+`","cursor":[4.5,4.5]}`)
	var commit protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &commit)
	if !commit.Accepted || commit.PostingID == 0 {
		t.Fatalf("commit ack=%+v", commit)
	}

	var st protocol.PostingStatusMsg
	readType(t, conn, protocol.TypePostingStatus, &st)
	if st.PostingID != commit.PostingID || st.Region != 1 || len(st.Records) != 1 {
		t.Fatalf("status=%+v", st)
	}
	if st.Records[0].Selected != 30 {
		t.Fatalf("record=%+v", st.Records[0])
	}

	// The ref was consumed by the commit.
	writeMsg(t, conn, `{"type":"DISCARD","protocol_version":"1.0","request_id":"r4","ref":"`+sel.Ref+`"}`)
	var discard protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &discard)
	if discard.Accepted || discard.Code != protocol.ErrUnknownRef {
		t.Fatalf("discard ack=%+v", discard)
	}
}

func TestSessionRejectsBadMessages(t *testing.T) {
	_, conn := startWorld(t)
	hello(t, conn)

	cases := []struct {
		raw  string
		code string
	}{
		{`{"type":"SELECT","protocol_version":"1.0","request_id":"b1","region":1,"items":[]}`, protocol.ErrProtoBadRequest},
		{`{"type":"SELECT","protocol_version":"0.9","request_id":"b2","region":1,"items":["a"]}`, protocol.ErrProtoVersion},
		{`{"type":"PREVIEW","protocol_version":"1.0","request_id":"b3","ref":"nope","cursor":[1,1]}`, protocol.ErrUnknownRef},
		{`{"type":"SELECT","protocol_version":"1.0","request_id":"b4","region":9,"items":["a"]}`, protocol.ErrNotFound},
		{`{"type":"CANCEL_ITEM","protocol_version":"1.0","request_id":"b5","item":"a"}`, protocol.ErrNotFound},
		{`{"type":"SET_QUANTITY","protocol_version":"1.0","request_id":"b6","posting_id":99,"item":"a","quantity":1}`, protocol.ErrNotFound},
	}
	for _, tc := range cases {
		writeMsg(t, conn, tc.raw)
		var ack protocol.AckMsg
		readType(t, conn, protocol.TypeAck, &ack)
		if ack.Accepted || ack.Code != tc.code {
			t.Fatalf("%s: ack=%+v want code %s", tc.raw, ack, tc.code)
		}
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	_, conn := startWorld(t)
	writeMsg(t, conn, `{"type":"SELECT","protocol_version":"1.0","request_id":"r1","region":1,"items":["a"]}`)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy violation close", err)
	}
}
