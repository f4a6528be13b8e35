package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
	"github.com/faeln1/go-mockup-api/internal/domain/collab"
	"github.com/faeln1/go-mockup-api/internal/platform/qr"
	"github.com/faeln1/go-mockup-api/internal/platform/realtime"
	"github.com/faeln1/go-mockup-api/pkg/eventlog"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

const (
	wsReadLimit    = 1 << 20
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsWriteWait    = 5 * time.Second
	wsSendBuffer   = 64
	disconnectWait = 5 * time.Second
)

type RoomControllerConfig struct {
	Broker        realtime.Broker
	Registry      *services.RoomRegistry
	// Designs decides who may see a room bound to a design. Nil leaves every
	// room open.
	Designs       services.DesignService
	Journal       *eventlog.Writer
	Session       services.SessionOptions
	PublicBaseURL string
	Logger        logger.Logger
}

// RoomController serves room listings, invite codes and the WebSocket
// gateway that bridges a socket to one CollaborationSession.
type RoomController struct {
	cfg      RoomControllerConfig
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(cfg RoomControllerConfig) *RoomController {
	log := cfg.Logger
	if log == nil {
		log = logger.Noop
	}
	return &RoomController{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (c *RoomController) List(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	rooms := c.cfg.Registry.List(r.Context())
	connections := c.cfg.Registry.Count()
	if !id.Master && c.cfg.Designs != nil {
		visible := rooms[:0]
		connections = 0
		for _, room := range rooms {
			ok, err := c.roomAllowed(r.Context(), id, room.RoomID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if ok {
				visible = append(visible, room)
				connections += len(room.Connections)
			}
		}
		rooms = visible
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(rooms),
		"connections": connections,
		"rooms":       rooms,
	})
}

func (c *RoomController) Get(w http.ResponseWriter, r *http.Request, roomID string) {
	if !c.guardRoom(w, r, roomID) {
		return
	}
	summary, err := c.cfg.Registry.Get(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// roomAllowed reports whether id may join or inspect roomID. Rooms bound to a
// design follow the design's project owner; unbound rooms are open.
func (c *RoomController) roomAllowed(ctx context.Context, id auth.Identity, roomID string) (bool, error) {
	if id.Master || c.cfg.Designs == nil {
		return true, nil
	}
	owner, bound, err := c.cfg.Designs.RoomOwner(ctx, roomID)
	if err != nil {
		return false, err
	}
	return !bound || owner == id.UserID, nil
}

// guardRoom answers 404 for rooms the caller may not see.
func (c *RoomController) guardRoom(w http.ResponseWriter, r *http.Request, roomID string) bool {
	ok, err := c.roomAllowed(r.Context(), caller(r), roomID)
	if err != nil {
		writeServiceError(w, err)
		return false
	}
	if !ok {
		writeServiceError(w, services.ErrRoomNotFound)
		return false
	}
	return true
}

// JoinURL is what the invite QR code encodes.
func (c *RoomController) JoinURL(roomID string) string {
	return c.cfg.PublicBaseURL + "/rooms/" + url.PathEscape(roomID) + "/ws"
}

// Invite renders the join URL as a QR code: PNG by default, terminal art
// with ?format=text.
func (c *RoomController) Invite(w http.ResponseWriter, r *http.Request, roomID string) {
	if !c.guardRoom(w, r, roomID) {
		return
	}
	joinURL := c.JoinURL(roomID)
	if r.URL.Query().Get("format") == "text" {
		art, err := qr.Text(joinURL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(joinURL + "\n\n" + art))
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > 1024 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: size must be between 64 and 1024", ErrInvalidParam))
			return
		}
		size = n
	}
	png, err := qr.PNG(joinURL, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// clientFrame is what browsers send. Only the fields of its type are set.
type clientFrame struct {
	Type       string          `json:"type"`
	X          *float64        `json:"x,omitempty"`
	Y          *float64        `json:"y,omitempty"`
	ElementID  string          `json:"elementId,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	ElementIDs []string        `json:"elementIds,omitempty"`
	UserID     string          `json:"userId,omitempty"`
}

func (f clientFrame) EventName() string { return f.Type }

// Connect upgrades the request and runs the socket until either side closes.
func (c *RoomController) Connect(w http.ResponseWriter, r *http.Request, roomID string) {
	if !c.guardRoom(w, r, roomID) {
		return
	}
	id := caller(r)
	if id.Master {
		id.UserID = r.URL.Query().Get("userId")
		id.UserName = r.URL.Query().Get("userName")
	}
	if id.UserID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: userId is required", ErrInvalidParam))
		return
	}
	if id.UserName == "" {
		id.UserName = id.UserID
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warnf("ws upgrade room=%s user=%s: %v", roomID, id.UserID, err)
		return
	}

	opts := c.cfg.Session
	opts.Log = c.log.Sub("session")
	session := services.NewCollaborationSession(roomID, id.UserID, id.UserName, c.cfg.Broker, opts)
	peer := newWSPeer(ws, c.log)
	bindSession(session, peer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.writePump()

	if err := session.Connect(ctx); err != nil {
		c.log.Errorf("session connect room=%s user=%s: %v", roomID, id.UserID, err)
		peer.send(errorFrame(err))
		peer.close()
		return
	}
	conn := c.cfg.Registry.Add(ctx, roomID, id.UserID, id.UserName)
	peer.setHeartbeat(func() { c.cfg.Registry.Heartbeat(ctx, conn) })
	c.log.Infof("ws connected room=%s user=%s conn=%s", roomID, id.UserID, conn.ID)

	c.readLoop(ws, session, peer, roomID, id.UserID)

	c.cfg.Registry.Remove(ctx, conn)
	dctx, dcancel := context.WithTimeout(ctx, disconnectWait)
	if err := session.Disconnect(dctx); err != nil {
		c.log.Warnf("session disconnect room=%s user=%s: %v", roomID, id.UserID, err)
	}
	dcancel()
	peer.close()
	c.log.Infof("ws closed room=%s user=%s conn=%s", roomID, id.UserID, conn.ID)
}

func (c *RoomController) readLoop(ws *websocket.Conn, session *services.CollaborationSession, peer *wsPeer, roomID, userID string) {
	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnf("ws read room=%s user=%s: %v", roomID, userID, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			peer.send(errorFrame(fmt.Errorf("%w: %v", ErrInvalidParam, err)))
			continue
		}
		if err := dispatchFrame(session, frame); err != nil {
			peer.send(errorFrame(err))
			continue
		}
		frame.UserID = userID
		if err := c.cfg.Journal.Write(roomID, frame); err != nil {
			c.log.Warnf("journal room=%s: %v", roomID, err)
		}
	}
}

func dispatchFrame(session *services.CollaborationSession, f clientFrame) error {
	switch collab.EventType(f.Type) {
	case collab.EventCursor:
		if f.X == nil || f.Y == nil {
			return fmt.Errorf("%w: cursor requires x and y", ErrInvalidParam)
		}
		session.UpdateCursor(*f.X, *f.Y)
	case collab.EventElementUpdate:
		if f.ElementID == "" {
			return fmt.Errorf("%w: element_update requires elementId", ErrInvalidParam)
		}
		if len(f.Changes) > 0 && !json.Valid(f.Changes) {
			return fmt.Errorf("%w: changes is not valid JSON", ErrInvalidParam)
		}
		session.UpdateElement(f.ElementID, f.Changes)
	case collab.EventSelection:
		ids := f.ElementIDs
		if ids == nil {
			ids = []string{}
		}
		session.UpdateSelection(ids)
	default:
		return fmt.Errorf("%w: unknown frame type %q", ErrInvalidParam, f.Type)
	}
	return nil
}

// bindSession turns session callbacks into server frames.
func bindSession(session *services.CollaborationSession, peer *wsPeer) {
	session.OnCursorsUpdate(func(cursors []collab.Cursor) {
		peer.send(map[string]any{"type": "cursors", "cursors": cursors})
	})
	session.OnElementsUpdate(func(p collab.ElementUpdatePayload) {
		frame, err := elementFrame(p)
		if err != nil {
			peer.send(errorFrame(err))
			return
		}
		peer.send(frame)
	})
	session.OnUsersUpdate(func(users []string) {
		peer.send(map[string]any{"type": "users", "users": users})
	})
	session.OnSelectionUpdate(func(userID string, ids []string) {
		peer.send(map[string]any{"type": "selection", "userId": userID, "elementIds": ids})
	})
	session.OnError(func(err error) {
		peer.send(errorFrame(err))
	})
}

// rawFrame is written to the socket as is.
type rawFrame []byte

// elementFrame keeps the changes bytes exactly as the author sent them.
func elementFrame(p collab.ElementUpdatePayload) (rawFrame, error) {
	if !json.Valid(p.Changes) {
		return nil, fmt.Errorf("element_update %s: changes is not valid JSON", p.ElementID)
	}
	id, err := json.Marshal(p.ElementID)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(id)+len(p.Changes)+48)
	frame = append(frame, `{"type":"element_update","elementId":`...)
	frame = append(frame, id...)
	frame = append(frame, `,"changes":`...)
	frame = append(frame, p.Changes...)
	frame = append(frame, '}')
	return frame, nil
}

func errorFrame(err error) map[string]any {
	var malformed *collab.MalformedEventError
	if errors.As(err, &malformed) {
		return map[string]any{"type": "error", "error": "malformed event: " + malformed.Reason}
	}
	return map[string]any{"type": "error", "error": err.Error()}
}

// wsPeer owns all writes to one socket.
type wsPeer struct {
	ws  *websocket.Conn
	log logger.Logger

	mu        sync.Mutex
	out       chan any
	closed    bool
	heartbeat func()
	done      chan struct{}
}

func newWSPeer(ws *websocket.Conn, log logger.Logger) *wsPeer {
	return &wsPeer{ws: ws, log: log, out: make(chan any, wsSendBuffer), done: make(chan struct{})}
}

// send never blocks; frames are dropped when the client cannot keep up.
func (p *wsPeer) send(frame any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.out <- frame:
	default:
		p.log.Debugf("ws send buffer full, dropping frame")
	}
}

func (p *wsPeer) setHeartbeat(fn func()) {
	p.mu.Lock()
	p.heartbeat = fn
	p.mu.Unlock()
}

// close stops the write pump after it drains queued frames.
func (p *wsPeer) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
	p.mu.Unlock()
	<-p.done
}

// writePump serializes frames and pings; each ping also refreshes presence.
func (p *wsPeer) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.ws.Close()
		close(p.done)
	}()

	for {
		select {
		case frame, ok := <-p.out:
			_ = p.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = p.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			var err error
			if raw, isRaw := frame.(rawFrame); isRaw {
				err = p.ws.WriteMessage(websocket.TextMessage, raw)
			} else {
				err = p.ws.WriteJSON(frame)
			}
			if err != nil {
				p.log.Debugf("ws write: %v", err)
				p.drain()
				return
			}
		case <-ticker.C:
			if err := p.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
				p.log.Debugf("ws ping: %v", err)
				p.drain()
				return
			}
			p.mu.Lock()
			hb := p.heartbeat
			p.mu.Unlock()
			if hb != nil {
				hb()
			}
		}
	}
}

// drain marks the peer closed after a write failure so senders stop queueing.
func (p *wsPeer) drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
	p.mu.Unlock()
}
