package web

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jaminalder/minesweeper/internal/domain"
)

type templates struct {
	game  *template.Template
	board *template.Template
	index *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"cellLabel": func(c domain.CellView) string {
			switch {
			case c.Mine:
				return "*"
			case c.Flagged:
				return "F"
			case c.Opened && c.Count > 0:
				return strconv.Itoa(c.Count)
			default:
				return ""
			}
		},
		"cellClass": func(c domain.CellView) string {
			switch {
			case c.Opened && c.Mine:
				return "cell exploded"
			case c.Mine:
				return "cell mine"
			case c.Opened:
				return "cell open n" + strconv.Itoa(c.Count)
			case c.Flagged:
				return "cell flagged"
			default:
				return "cell closed"
			}
		},
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Minesweeper</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	template.Must(base.New("board").Funcs(funcs()).Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(indexTemplate))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<h1>Minesweeper</h1>
<div hx-ext="sse" hx-sse="connect:/game/{{.ID}}/events">
  <div id="board" hx-sse="swap:board">{{template "board" .}}</div>
</div>
<form action="/game/{{.ID}}/discard" method="post"><button>New game</button></form>`))
	// Standalone board template used for fragment rendering
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	return &templates{game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	if name == "" {
		_ = t.Execute(&buf, data)
	} else {
		_ = t.ExecuteTemplate(&buf, name, data)
	}
	return buf.Bytes()
}

const indexTemplate = `<h1>Minesweeper</h1>
{{if .Error}}<div class="alert">{{.Error}}</div>{{end}}
<form action="/game" method="post">
  <label>Width <input name="width" value="{{.Width}}"></label>
  <label>Height <input name="height" value="{{.Height}}"></label>
  <label>Mines <input name="mines" value="{{.Mines}}"></label>
  <button>Create</button>
</form>`

const boardTemplate = `
<div id="board" data-status="{{.Snap.Status}}">
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  <div class="status">
    <span class="flags">Flags left: {{.Snap.RemainingFlags}}</span>
    {{if .Won}}<span class="banner won">Cleared!</span>{{end}}
    {{if .Lost}}<span class="banner lost">Boom.</span>{{end}}
  </div>
  {{range $y, $row := .Snap.Rows}}
  <div class="row">
    {{range $x, $c := $row}}
      <form hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{$.ID}}/open">
        <input type="hidden" name="x" value="{{$x}}">
        <input type="hidden" name="y" value="{{$y}}">
        <button type="submit" class="{{cellClass $c}}" hx-post="/game/{{$.ID}}/open">{{cellLabel $c}}</button>
        <button type="submit" class="flag" formaction="/game/{{$.ID}}/flag" hx-post="/game/{{$.ID}}/flag">F</button>
      </form>
    {{end}}
  </div>
  {{end}}
</div>
`

type indexData struct {
	Width, Height, Mines int
	Error                string
}

type boardData struct {
	ID    string
	Snap  domain.Snapshot
	Won   bool
	Lost  bool
	Error string
}

const playerCookie = "player_id"

// Helper to set cookie
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil && c.Value != "" {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: playerCookie, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	return v
}
