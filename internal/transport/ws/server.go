package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"haulplan.ai/internal/protocol"
	"haulplan.ai/internal/sim/encoding"
	"haulplan.ai/internal/sim/model"
	"haulplan.ai/internal/sim/world"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	replyWait = 10 * time.Second
)

// Server is the operator endpoint. Each session may select, preview and commit
// postings and receives every posting status change.
type Server struct {
	world *world.World
	log   *log.Logger

	validator *protocol.Validator
	welcome   protocol.WelcomeMsg

	upgrader websocket.Upgrader
}

// NewServer must be called before the world loop starts; the regions sent in
// WELCOME are captured here.
func NewServer(w *world.World, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	cats := w.Catalogs()
	s := &Server{
		world:     w,
		log:       logger,
		validator: v,
		welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			WorldID:         w.ID(),
			TickRateHz:      w.Tuning().TickRateHz,
			Regions:         regionInfos(w),
			Catalogs: protocol.CatalogDigests{
				ItemPalette:   protocol.DigestRef{Digest: cats.Items.PaletteDigest, Count: len(cats.Items.Palette)},
				ItemDefs:      cats.Items.DefsDigest,
				TerrainDigest: cats.Terrain.Digest,
			},
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

func regionInfos(w *world.World) []protocol.RegionInfo {
	ids := w.RegionIDs()
	out := make([]protocol.RegionInfo, 0, len(ids))
	for _, id := range ids {
		r, ok := w.Region(id)
		if !ok {
			continue
		}
		out = append(out, protocol.RegionInfo{
			ID:      r.ID,
			Width:   r.Width,
			Height:  r.Height,
			Terrain: encoding.EncodeCells(r.Terrain),
			Fog:     encoding.EncodeFlags(r.Fog),
			Fire:    encoding.EncodeFlags(r.Fire),
		})
	}
	return out
}

type session struct {
	id  string
	out chan []byte

	mu   sync.Mutex
	refs map[string]bool
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.log.Printf("session %s opened from %s", sess.id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Status stream.
		updates, unsubscribe := s.world.Subscribe(256)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case st, ok := <-updates:
					if !ok {
						return
					}
					s.send(ctx, sess, statusMsg(st))
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handle(ctx, sess, msg)
		}
		cancel()
		unsubscribe()
		wg.Wait()
		s.discardRefs(sess)
		s.log.Printf("session %s closed", sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := s.validator.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	sess := &session{id: uuid.NewString(), out: make(chan []byte, 64), refs: map[string]bool{}}
	welcome := s.welcome
	welcome.SessionID = sess.id
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

// handle validates one client message, forwards it to the world and waits for
// the reply of the tick that applied it.
func (s *Server) handle(ctx context.Context, sess *session, msg []byte) {
	base, err := s.validator.Validate(msg)
	if err != nil {
		code := protocol.ErrProtoBadRequest
		if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
			code = protocol.ErrProtoVersion
		}
		s.send(ctx, sess, reject(base.RequestID, code, err.Error()))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.send(ctx, sess, reject(base.RequestID, protocol.ErrProtoVersion, "bad protocol_version"))
		return
	}

	cmd, err := toCommand(base.Type, msg)
	if err != nil {
		s.send(ctx, sess, reject(base.RequestID, protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if cmd.Kind == world.CmdPreview || cmd.Kind == world.CmdCommit || cmd.Kind == world.CmdDiscard {
		if !sess.owns(cmd.Ref) {
			s.send(ctx, sess, reject(base.RequestID, protocol.ErrUnknownRef, "ref not owned by this session"))
			return
		}
	}

	reply := make(chan world.Result, 1)
	cmd.Reply = reply
	select {
	case s.world.Inbox() <- cmd:
	case <-ctx.Done():
		return
	default:
		s.send(ctx, sess, reject(base.RequestID, protocol.ErrBusy, "inbox full"))
		return
	}

	var res world.Result
	select {
	case res = <-reply:
	case <-ctx.Done():
		return
	case <-time.After(replyWait):
		s.send(ctx, sess, reject(base.RequestID, protocol.ErrBusy, "no reply from world"))
		return
	}

	switch cmd.Kind {
	case world.CmdSelect:
		if res.OK {
			sess.track(res.Ref, true)
		}
	case world.CmdCommit:
		if res.OK || res.Code == protocol.ErrInternal {
			sess.track(cmd.Ref, false)
		}
	case world.CmdDiscard:
		sess.track(cmd.Ref, false)
	}

	if cmd.Kind == world.CmdPreview {
		s.send(ctx, sess, previewMsg(base.RequestID, res))
		return
	}
	s.send(ctx, sess, ackMsg(base.RequestID, s.world.CurrentTick(), res))
}

// discardRefs drops the planning postings a closed session left behind.
func (s *Server) discardRefs(sess *session) {
	sess.mu.Lock()
	refs := make([]string, 0, len(sess.refs))
	for ref := range sess.refs {
		refs = append(refs, ref)
	}
	sess.refs = map[string]bool{}
	sess.mu.Unlock()

	for _, ref := range refs {
		select {
		case s.world.Inbox() <- world.Command{Kind: world.CmdDiscard, Ref: ref}:
		default:
			s.log.Printf("session %s: inbox full, planning ref %s leaks", sess.id, ref)
		}
	}
}

func (s *Server) send(ctx context.Context, sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("session %s: marshal: %v", sess.id, err)
		return
	}
	select {
	case sess.out <- b:
	case <-ctx.Done():
	}
}

func (sess *session) owns(ref string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.refs[ref]
}

func (sess *session) track(ref string, on bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if on {
		sess.refs[ref] = true
	} else {
		delete(sess.refs, ref)
	}
}

func toCommand(typ string, msg []byte) (world.Command, error) {
	switch typ {
	case protocol.TypeSelect:
		var m protocol.SelectMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdSelect, Region: m.Region, Items: m.Items}, nil
	case protocol.TypePreview:
		var m protocol.PreviewMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdPreview, Ref: m.Ref, Cursor: point(m.Cursor)}, nil
	case protocol.TypeCommit:
		var m protocol.CommitMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdCommit, Ref: m.Ref, Cursor: point(m.Cursor)}, nil
	case protocol.TypeDiscard:
		var m protocol.DiscardMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdDiscard, Ref: m.Ref}, nil
	case protocol.TypeCancelItem:
		var m protocol.CancelItemMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdCancelItem, Item: m.Item}, nil
	case protocol.TypeSetQuantity:
		var m protocol.SetQuantityMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return world.Command{}, err
		}
		return world.Command{Kind: world.CmdSetQuantity, PostingID: m.PostingID, Item: m.Item, Quantity: m.Quantity}, nil
	}
	return world.Command{}, errUnexpected(typ)
}

type errUnexpected string

func (e errUnexpected) Error() string { return "unexpected message type " + string(e) }

func point(c [2]float64) model.Point { return model.Point{X: c[0], Z: c[1]} }

func reject(requestID, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          requestID,
		Code:            code,
		Message:         message,
	}
}

func ackMsg(requestID string, tick uint64, res world.Result) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          requestID,
		Accepted:        res.OK,
		Code:            res.Code,
		Message:         res.Message,
		Ref:             res.Ref,
		PostingID:       res.PostingID,
		Items:           res.Items,
		ServerTick:      tick,
	}
}

func previewMsg(requestID string, res world.Result) protocol.PreviewResultMsg {
	dests := make([][2]int, len(res.Destinations))
	for i, c := range res.Destinations {
		dests[i] = [2]int{c.X, c.Z}
	}
	return protocol.PreviewResultMsg{
		Type:            protocol.TypePreviewResult,
		ProtocolVersion: protocol.Version,
		AckFor:          requestID,
		Ref:             res.Ref,
		OK:              res.OK,
		Destinations:    dests,
		Center:          [2]float64{res.Center.X, res.Center.Z},
		Radius:          res.Radius,
	}
}

func statusMsg(st world.PostingState) protocol.PostingStatusMsg {
	recs := make([]protocol.RecordStatus, len(st.Records))
	for i, r := range st.Records {
		recs[i] = protocol.RecordStatus{
			Label:     r.Label,
			Def:       r.Def,
			Stuff:     r.Stuff,
			Selected:  r.Selected,
			Effective: r.Effective,
			Moved:     r.Moved,
			Remaining: r.Remaining,
		}
	}
	return protocol.PostingStatusMsg{
		Type:            protocol.TypePostingStatus,
		ProtocolVersion: protocol.Version,
		Tick:            st.Tick,
		PostingID:       st.PostingID,
		Region:          st.Region,
		Status:          st.Status.String(),
		Removed:         st.Removed,
		Records:         recs,
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
