package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// wsCommand is sent by the client: {"op":"open","x":1,"y":2}.
type wsCommand struct {
	Op string `json:"op"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// wsMessage is sent to the client. Type is "state", "result" or "error".
type wsMessage struct {
	Type   string         `json:"type"`
	Result string         `json:"result,omitempty"`
	Game   *app.GameState `json:"game,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan wsMessage
	log    logrus.FieldLogger
	game   string
	player string
	svc    *app.Service
}

func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("game", id).Warn("websocket upgrade failed")
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer unsub()

	c := &wsClient{
		conn:   conn,
		send:   make(chan wsMessage, 16),
		log:    h.log.WithFields(logrus.Fields{"game": id, "transport": "ws"}),
		game:   id,
		player: playerFrom(r),
		svc:    h.svc,
	}
	c.send <- wsMessage{Type: "state", Game: gs}
	go func() {
		defer cancel()
		c.readPump(ctx)
	}()
	c.writePump(ctx, updates)
}

// enqueue waits for room in the send queue so no reply is lost. It gives
// up once the connection is shutting down.
func (c *wsClient) enqueue(ctx context.Context, m wsMessage) bool {
	select {
	case c.send <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// readPump applies commands until the connection fails.
func (c *wsClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd wsCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		if !c.enqueue(ctx, c.apply(cmd)) {
			return
		}
	}
}

func (c *wsClient) apply(cmd wsCommand) wsMessage {
	p := domain.Pos{X: cmd.X, Y: cmd.Y}
	switch cmd.Op {
	case "open":
		res, _, err := c.svc.Open(c.game, c.player, p)
		if err != nil {
			_, msg := userMessage(err)
			return wsMessage{Type: "error", Error: msg}
		}
		return wsMessage{Type: "result", Result: res.String()}
	case "flag":
		if _, err := c.svc.ToggleFlag(c.game, c.player, p); err != nil {
			_, msg := userMessage(err)
			return wsMessage{Type: "error", Error: msg}
		}
		return wsMessage{Type: "result"}
	default:
		return wsMessage{Type: "error", Error: "unknown op " + cmd.Op}
	}
}

// writePump owns all writes to the connection.
func (c *wsClient) writePump(ctx context.Context, updates <-chan app.GameState) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case gs, ok := <-updates:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "game discarded"), time.Now().Add(writeWait))
				return
			}
			if !c.write(wsMessage{Type: "state", Game: &gs}) {
				return
			}
		case m := <-c.send:
			if !c.write(m) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(m wsMessage) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(m); err != nil {
		c.log.WithError(err).Debug("websocket write failed")
		return false
	}
	return true
}
