package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/domain"
)

type apiGame struct {
	ID       string  `json:"id"`
	Seed     *uint64 `json:"seed"`
	Snapshot struct {
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		RemainingFlags int    `json:"remaining_flags"`
		Status         string `json:"status"`
		Cells          []struct {
			Opened  bool `json:"opened"`
			Flagged bool `json:"flagged"`
		} `json:"cells"`
	} `json:"snapshot"`
}

func doJSON(t *testing.T, h http.Handler, method, path, body, player string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if player != "" {
		req.Header.Set(playerHeader, player)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestAPICreateAndOpenToWin(t *testing.T) {
	_, h := newTestServer(t)
	rr := doJSON(t, h, "POST", "/api/games", `{"width":1,"height":1,"mines":0,"seed":5}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Player string  `json:"player"`
		Game   apiGame `json:"game"`
	}
	decodeBody(t, rr, &created)
	if created.Player == "" || created.Game.ID == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if created.Game.Seed != nil {
		t.Fatalf("seed must stay hidden before the game ends, got %d", *created.Game.Seed)
	}
	if created.Game.Snapshot.Status != "waiting" {
		t.Fatalf("expected waiting, got %q", created.Game.Snapshot.Status)
	}

	rr = doJSON(t, h, "POST", "/api/games/"+created.Game.ID+"/open", `{"x":0,"y":0}`, created.Player)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var moved struct {
		Result string  `json:"result"`
		Game   apiGame `json:"game"`
	}
	decodeBody(t, rr, &moved)
	if moved.Result != "cleared" || moved.Game.Snapshot.Status != "won" {
		t.Fatalf("expected cleared/won, got %q/%q", moved.Result, moved.Game.Snapshot.Status)
	}
	if moved.Game.Seed == nil || *moved.Game.Seed != 5 {
		t.Fatalf("expected seed 5 once won, got %v", moved.Game.Seed)
	}
}

func TestAPIGetHidesSeedDuringPlay(t *testing.T) {
	svc, h := newTestServer(t)
	seed := uint64(42)
	gs, _ := svc.CreateGame("p1", app.Settings{Width: 9, Height: 9, Mines: 10, Seed: &seed})
	if _, _, err := svc.Open(gs.ID, "p1", domain.Pos{X: 4, Y: 4}); err != nil {
		t.Fatalf("open: %v", err)
	}

	rr := doJSON(t, h, "GET", "/api/games/"+gs.ID, "", "stranger")
	var raw map[string]any
	decodeBody(t, rr, &raw)
	snap := raw["snapshot"].(map[string]any)
	if snap["status"] == "playing" {
		if _, ok := raw["seed"]; ok {
			t.Fatalf("seed visible while playing: %v", raw["seed"])
		}
	}
}

func TestAPICreateUsesDefaults(t *testing.T) {
	_, h := newTestServer(t)
	rr := doJSON(t, h, "POST", "/api/games", "", "me")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var created struct {
		Player string  `json:"player"`
		Game   apiGame `json:"game"`
	}
	decodeBody(t, rr, &created)
	if created.Player != "me" || created.Game.Snapshot.Width != 9 || len(created.Game.Snapshot.Cells) != 81 {
		t.Fatalf("unexpected defaults: %+v", created)
	}
}

func TestAPIErrors(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", small)

	cases := []struct {
		method, path, body, player string
		code                       int
	}{
		{"POST", "/api/games", `{"width":2,"height":2,"mines":4}`, "", http.StatusBadRequest},
		{"POST", "/api/games", `{"width":`, "", http.StatusBadRequest},
		{"GET", "/api/games/missing", "", "", http.StatusNotFound},
		{"POST", "/api/games/" + gs.ID + "/open", `{"x":0,"y":0}`, "p2", http.StatusForbidden},
		{"POST", "/api/games/" + gs.ID + "/open", `{"x":-1,"y":0}`, "p1", http.StatusBadRequest},
		{"POST", "/api/games/" + gs.ID + "/flag", `nope`, "p1", http.StatusBadRequest},
		{"DELETE", "/api/games/" + gs.ID, "", "p2", http.StatusForbidden},
	}
	for _, tc := range cases {
		rr := doJSON(t, h, tc.method, tc.path, tc.body, tc.player)
		if rr.Code != tc.code {
			t.Fatalf("%s %s %s: expected %d, got %d: %s", tc.method, tc.path, tc.body, tc.code, rr.Code, rr.Body.String())
		}
		var e map[string]string
		decodeBody(t, rr, &e)
		if e["error"] == "" {
			t.Fatalf("%s %s: expected error message, got %q", tc.method, tc.path, rr.Body.String())
		}
	}
}

func TestAPIMoveRequiresBothCoordinates(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", small)

	for _, path := range []string{"/open", "/flag"} {
		for _, body := range []string{"", "{}", `{"x":1}`, `{"y":1}`, `{"x":null,"y":0}`} {
			rr := doJSON(t, h, "POST", "/api/games/"+gs.ID+path, body, "p1")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("%s %q: expected 400, got %d", path, body, rr.Code)
			}
			var e map[string]string
			decodeBody(t, rr, &e)
			if e["error"] != "Invalid coordinates" {
				t.Fatalf("%s %q: unexpected error %q", path, body, e["error"])
			}
		}
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Snapshot.Status != domain.Waiting || latest.Snapshot.At(0, 0).Flagged {
		t.Fatalf("rejected moves must not touch the board: %v", latest.Snapshot.Status)
	}
}

func TestAPIFlagGetAndDelete(t *testing.T) {
	svc, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", small)

	rr := doJSON(t, h, "POST", "/api/games/"+gs.ID+"/flag", `{"x":1,"y":1}`, "p1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, h, "GET", "/api/games/"+gs.ID, "", "")
	var got apiGame
	decodeBody(t, rr, &got)
	if got.Snapshot.RemainingFlags != 9 || !got.Snapshot.Cells[1*9+1].Flagged {
		t.Fatalf("flag not visible through GET: %+v", got.Snapshot.RemainingFlags)
	}

	rr = doJSON(t, h, "DELETE", "/api/games/"+gs.ID, "", "p1")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if _, ok := svc.Get(gs.ID); ok {
		t.Fatalf("expected game removed")
	}
}

func TestAPICORSPreflight(t *testing.T) {
	h := NewServer(app.NewService(), Options{CORSOrigins: []string{"http://app.test"}})
	req := httptest.NewRequest("OPTIONS", "/api/games", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://app.test" {
		t.Fatalf("expected allowed origin, got %q (status %d)", got, rr.Code)
	}
}

func TestWebSocketStreamsStateAndAppliesCommands(t *testing.T) {
	svc := app.NewService()
	srv := httptest.NewServer(NewServer(svc, Options{}))
	defer srv.Close()
	gs, _ := svc.CreateGame("p1", app.Settings{Width: 1, Height: 1, Mines: 0})

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/" + gs.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Cookie": {playerCookie + "=p1"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first wsMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if first.Type != "state" || first.Game == nil || first.Game.ID != gs.ID {
		t.Fatalf("unexpected initial message: %+v", first)
	}

	if err := conn.WriteJSON(wsCommand{Op: "open", X: 0, Y: 0}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var sawResult, sawWon bool
	for !(sawResult && sawWon) {
		var raw map[string]any
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch raw["type"] {
		case "result":
			if raw["result"] != "cleared" {
				t.Fatalf("expected cleared, got %v", raw["result"])
			}
			sawResult = true
		case "state":
			snap := raw["game"].(map[string]any)["snapshot"].(map[string]any)
			sawWon = snap["status"] == "won"
		case "error":
			t.Fatalf("unexpected error message: %v", raw["error"])
		}
	}
}
