package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/domain"
)

var errBadCoordinates = errors.New("bad coordinates")

type handlers struct {
	svc       *app.Service
	tpl       *templates
	log       logrus.FieldLogger
	defaults  app.Settings
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func newBoardData(gs app.GameState, errMsg string) boardData {
	return boardData{
		ID:    gs.ID,
		Snap:  gs.Snapshot,
		Won:   gs.Snapshot.Status == domain.Won,
		Lost:  gs.Snapshot.Status == domain.Lost,
		Error: errMsg,
	}
}

func (h *handlers) renderBoard(gs app.GameState, errMsg string) []byte {
	return renderTemplate(h.tpl.board, "", newBoardData(gs, errMsg))
}

// userMessage maps an error to a status code and a message fit for players.
func userMessage(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrOutOfBounds):
		return http.StatusBadRequest, "Out of bounds"
	case errors.Is(err, errBadCoordinates):
		return http.StatusBadRequest, "Invalid coordinates"
	case errors.Is(err, app.ErrNotOwner):
		return http.StatusForbidden, "This is not your game"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "Game not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	data := indexData{Width: h.defaults.Width, Height: h.defaults.Height, Mines: h.defaults.Mines}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.index, "base", data))
}

// formInt reads an integer field, falling back to def when it is empty.
func formInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.Form.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number", name)
	}
	return n, nil
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	_ = r.ParseForm()
	data := indexData{}
	var err error
	if data.Width, err = formInt(r, "width", h.defaults.Width); err == nil {
		if data.Height, err = formInt(r, "height", h.defaults.Height); err == nil {
			data.Mines, err = formInt(r, "mines", h.defaults.Mines)
		}
	}
	if err == nil {
		var gs *app.GameState
		gs, err = h.svc.CreateGame(pid, app.Settings{Width: data.Width, Height: data.Height, Mines: data.Mines})
		if err == nil {
			http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
			return
		}
		if !errors.Is(err, domain.ErrInvalidConfiguration) {
			http.Error(w, "failed to create", http.StatusInternalServerError)
			return
		}
	}
	data.Error = err.Error()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(renderTemplate(h.tpl.index, "base", data))
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ensurePlayerCookie(w, r)
	gs, ok := h.svc.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(renderTemplate(h.tpl.game, "base", newBoardData(*gs, "")))
}

func parseCell(r *http.Request) (domain.Pos, error) {
	_ = r.ParseForm()
	x, errX := strconv.Atoi(r.Form.Get("x"))
	y, errY := strconv.Atoi(r.Form.Get("y"))
	if errX != nil || errY != nil {
		return domain.Pos{}, errBadCoordinates
	}
	return domain.Pos{X: x, Y: y}, nil
}

// act runs a board mutation for the form-driven UI and answers with the
// board fragment. Errors are shown inside the fragment.
func (h *handlers) act(w http.ResponseWriter, r *http.Request, do func(id, pid string, p domain.Pos) (*app.GameState, error)) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	p, err := parseCell(r)
	var gs *app.GameState
	if err == nil {
		gs, err = do(id, pid, p)
	}
	var errMsg string
	if err != nil {
		var code int
		code, errMsg = userMessage(err)
		if code == http.StatusInternalServerError {
			h.log.WithError(err).WithField("game", id).Error("board action failed")
		}
		if g, ok := h.svc.Get(id); ok {
			gs = g
		}
	}
	if gs == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.renderBoard(*gs, errMsg))
}

func (h *handlers) open(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(id, pid string, p domain.Pos) (*app.GameState, error) {
		_, gs, err := h.svc.Open(id, pid, p)
		return gs, err
	})
}

func (h *handlers) flag(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.ToggleFlag)
}

func (h *handlers) discard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	if err := h.svc.Discard(id, pid); err != nil {
		code, msg := userMessage(err)
		http.Error(w, msg, code)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case gs, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "board", h.renderBoard(gs, ""))
			flusher.Flush()
		}
	}
}

// writeEvent writes one SSE event; every payload line gets its own data
// field.
func writeEvent(w io.Writer, name string, payload []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", name)
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}
