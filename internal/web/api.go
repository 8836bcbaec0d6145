package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/domain"
)

// playerHeader identifies API callers that do not carry the cookie.
const playerHeader = "X-Player-ID"

type createRequest struct {
	Width  *int    `json:"width"`
	Height *int    `json:"height"`
	Mines  *int    `json:"mines"`
	Seed   *uint64 `json:"seed"`
}

// cellRequest names a cell. Both coordinates are required.
type cellRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

type createResponse struct {
	Player string         `json:"player"`
	Game   *app.GameState `json:"game"`
}

type moveResponse struct {
	Result string         `json:"result,omitempty"`
	Game   *app.GameState `json:"game"`
}

func playerFrom(r *http.Request) string {
	if v := r.Header.Get(playerHeader); v != "" {
		return v
	}
	if c, err := r.Cookie(playerCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, msg := userMessage(err)
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeCell reads a cellRequest, failing with errBadCoordinates when the
// body is malformed or a coordinate is missing.
func decodeCell(r *http.Request) (domain.Pos, error) {
	var req cellRequest
	if err := decode(r, &req); err != nil || req.X == nil || req.Y == nil {
		return domain.Pos{}, errBadCoordinates
	}
	return domain.Pos{X: *req.X, Y: *req.Y}, nil
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) apiCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON"})
		return
	}
	st := h.defaults
	if req.Width != nil {
		st.Width = *req.Width
	}
	if req.Height != nil {
		st.Height = *req.Height
	}
	if req.Mines != nil {
		st.Mines = *req.Mines
	}
	st.Seed = req.Seed

	pid := playerFrom(r)
	if pid == "" {
		pid = uuid.NewString()
	}
	gs, err := h.svc.CreateGame(pid, st)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Player: pid, Game: gs})
}

func (h *handlers) apiGet(w http.ResponseWriter, r *http.Request) {
	gs, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, app.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (h *handlers) apiOpen(w http.ResponseWriter, r *http.Request) {
	p, err := decodeCell(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, gs, err := h.svc.Open(chi.URLParam(r, "id"), playerFrom(r), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Result: res.String(), Game: gs})
}

func (h *handlers) apiFlag(w http.ResponseWriter, r *http.Request) {
	p, err := decodeCell(r)
	if err != nil {
		writeError(w, err)
		return
	}
	gs, err := h.svc.ToggleFlag(chi.URLParam(r, "id"), playerFrom(r), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Game: gs})
}

func (h *handlers) apiDiscard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Discard(chi.URLParam(r, "id"), playerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
