package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaminalder/minesweeper/internal/app"
)

func dialGame(t *testing.T, srv *httptest.Server, id, player string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Cookie": {playerCookie + "=" + player}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketSurvivesCommandBurst(t *testing.T) {
	svc := app.NewService()
	srv := httptest.NewServer(NewServer(svc, Options{}))
	defer srv.Close()
	gs, _ := svc.CreateGame("p1", small)
	conn := dialGame(t, srv, gs.ID, "p1")

	const burst = 20
	for i := 0; i < burst; i++ {
		if err := conn.WriteJSON(wsCommand{Op: "flag", X: i % 9, Y: i / 9}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	results, flagsLeft := 0, 10
	for results < burst || flagsLeft != 10-burst {
		var raw map[string]any
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("connection ended after %d results: %v", results, err)
		}
		switch raw["type"] {
		case "result":
			results++
		case "state":
			snap := raw["game"].(map[string]any)["snapshot"].(map[string]any)
			flagsLeft = int(snap["remaining_flags"].(float64))
		case "error":
			t.Fatalf("unexpected error message: %v", raw["error"])
		}
	}
}

func TestWebSocketClosesOnDiscard(t *testing.T) {
	svc := app.NewService()
	srv := httptest.NewServer(NewServer(svc, Options{}))
	defer srv.Close()
	gs, _ := svc.CreateGame("p1", small)
	conn := dialGame(t, srv, gs.ID, "p1")

	var first wsMessage
	if err := conn.ReadJSON(&first); err != nil || first.Type != "state" {
		t.Fatalf("expected initial state, got %+v (%v)", first, err)
	}
	if err := svc.Discard(gs.ID, "p1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	for {
		var raw map[string]any
		err := conn.ReadJSON(&raw)
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) || ce.Code != websocket.CloseGoingAway || ce.Text != "game discarded" {
			t.Fatalf("expected going-away close for discard, got %v", err)
		}
		return
	}
}
