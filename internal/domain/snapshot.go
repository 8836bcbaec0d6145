package domain

// CellView is what a renderer may know about one cell.
type CellView struct {
	Opened  bool `json:"opened"`
	Flagged bool `json:"flagged"`
	Mine    bool `json:"mine"`
	Count   int  `json:"count"`
}

// Snapshot is a copy of the board for rendering. Cells are row-major.
type Snapshot struct {
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	Mines          int        `json:"mines"`
	RemainingFlags int        `json:"remaining_flags"`
	Status         Status     `json:"status"`
	Cells          []CellView `json:"cells"`
}

// At returns the view of the cell at x, y. It panics on out-of-range input.
func (s Snapshot) At(x, y int) CellView { return s.Cells[y*s.Width+x] }

// Rows splits the cells into rows for templates.
func (s Snapshot) Rows() [][]CellView {
	rows := make([][]CellView, s.Height)
	for y := range rows {
		rows[y] = s.Cells[y*s.Width : (y+1)*s.Width]
	}
	return rows
}

// Snapshot copies the board. Closed cells hide their contents while the
// game runs. Once lost every mine is shown; once won every mine is shown
// flagged.
func (b *Board) Snapshot() Snapshot {
	s := Snapshot{
		Width:          b.width,
		Height:         b.height,
		Mines:          b.mines,
		RemainingFlags: b.RemainingFlags(),
		Status:         b.status,
		Cells:          make([]CellView, len(b.layout)),
	}
	for i, v := range b.layout {
		c := CellView{Opened: b.opened[i], Flagged: b.flagged[i]}
		mine := v == mineValue
		switch {
		case c.Opened && mine:
			c.Mine = true
		case c.Opened:
			c.Count = v
		case mine && b.status == Lost:
			c.Mine = true
		case mine && b.status == Won:
			c.Flagged = true
		}
		s.Cells[i] = c
	}
	return s
}
