package domain

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Errors returned by domain operations.
var (
	ErrInvalidConfiguration = errors.New("invalid board configuration")
	ErrOutOfBounds          = errors.New("out of bounds")
)

// mineValue marks a mine in the layout; any other value is a neighbour count.
const mineValue = -1

// Pos is a cell coordinate, x in [0,width) and y in [0,height).
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Board holds the state of a single Minesweeper game.
//
// A Board is not safe for concurrent use. Callers that share one across
// goroutines must serialise access themselves.
type Board struct {
	width  int
	height int
	mines  int

	layout  []int
	opened  []bool
	flagged []bool

	// revealed counts opened non-mine cells.
	revealed int
	status   Status

	rng   *rand.Rand
	fixed []Pos
}

// Option configures a Board at construction.
type Option func(*Board)

// WithRand sets the random source used for mine placement.
func WithRand(r *rand.Rand) Option {
	return func(b *Board) { b.rng = r }
}

// WithSeed makes mine placement deterministic for the given seed.
func WithSeed(seed uint64) Option {
	return func(b *Board) { b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithMines fixes the mine layout instead of drawing it at random. The
// layout is applied as-is on the first open, even if it covers the opened
// cell.
func WithMines(mines ...Pos) Option {
	return func(b *Board) { b.fixed = append([]Pos(nil), mines...) }
}

// New returns a board waiting for its first open. It fails with
// ErrInvalidConfiguration unless width and height are positive, their
// product fits in an int and 0 <= mineCount <= width*height-1.
func New(width, height, mineCount int, opts ...Option) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d must be positive", ErrInvalidConfiguration, width, height)
	}
	if width > math.MaxInt/height {
		return nil, fmt.Errorf("%w: size %dx%d is too large", ErrInvalidConfiguration, width, height)
	}
	if mineCount < 0 || mineCount > width*height-1 {
		return nil, fmt.Errorf("%w: %d mines on a %dx%d board (max %d)",
			ErrInvalidConfiguration, mineCount, width, height, width*height-1)
	}
	n := width * height
	b := &Board{
		width:   width,
		height:  height,
		mines:   mineCount,
		layout:  make([]int, n),
		opened:  make([]bool, n),
		flagged: make([]bool, n),
		status:  Waiting,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fixed != nil {
		if err := b.checkFixed(); err != nil {
			return nil, err
		}
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return b, nil
}

func (b *Board) checkFixed() error {
	if len(b.fixed) != b.mines {
		return fmt.Errorf("%w: layout has %d mines, want %d", ErrInvalidConfiguration, len(b.fixed), b.mines)
	}
	seen := make(map[Pos]bool, len(b.fixed))
	for _, p := range b.fixed {
		if !b.contains(p) {
			return fmt.Errorf("%w: mine %v outside %dx%d board", ErrInvalidConfiguration, p, b.width, b.height)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate mine %v", ErrInvalidConfiguration, p)
		}
		seen[p] = true
	}
	return nil
}

// Open reveals the cell at p and reports what happened. Detonating a mine
// or acting on a finished game are results, not errors; the only error is
// ErrOutOfBounds.
func (b *Board) Open(p Pos) (Result, error) {
	if !b.contains(p) {
		return NoOp, fmt.Errorf("open %v: %w", p, ErrOutOfBounds)
	}
	switch b.status {
	case Won, Lost:
		return NoOp, nil
	case Waiting:
		b.start(p)
	}

	i := b.index(p)
	if b.flagged[i] {
		return Flagged, nil
	}
	if b.layout[i] == mineValue {
		b.opened[i] = true
		b.status = Lost
		return Detonated, nil
	}
	b.reveal(i)
	if b.layout[i] == 0 {
		b.flood(p)
	}
	if b.IsClear() {
		b.status = Won
		return Cleared, nil
	}
	return Revealed, nil
}

func (b *Board) reveal(i int) {
	if b.opened[i] {
		return
	}
	b.opened[i] = true
	b.revealed++
}

// flood opens everything reachable from the zero cell at start. Only the
// cell passed to Open is guarded by its flag; cells reached here are
// opened even when flagged, and lose the flag.
func (b *Board) flood(start Pos) {
	stack := []Pos{start}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b.eachNeighbour(p, func(n Pos) {
			i := b.index(n)
			if b.opened[i] {
				return
			}
			b.flagged[i] = false
			b.reveal(i)
			if b.layout[i] == 0 {
				stack = append(stack, n)
			}
		})
	}
}

// start places the mines, computes neighbour counts and moves to Playing.
func (b *Board) start(seed Pos) {
	if b.fixed != nil {
		for _, p := range b.fixed {
			b.layout[b.index(p)] = mineValue
		}
	} else {
		b.placeMines(seed)
	}
	b.countNeighbours()
	b.status = Playing
}

// placeMines draws coordinates uniformly and rejects the seed and cells
// that already hold a mine. It terminates because New guarantees at least
// one cell besides the seed stays free.
func (b *Board) placeMines(seed Pos) {
	for placed := 0; placed < b.mines; {
		p := Pos{X: b.rng.IntN(b.width), Y: b.rng.IntN(b.height)}
		i := b.index(p)
		if p == seed || b.layout[i] == mineValue {
			continue
		}
		b.layout[i] = mineValue
		placed++
	}
}

func (b *Board) countNeighbours() {
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			p := Pos{X: x, Y: y}
			i := b.index(p)
			if b.layout[i] == mineValue {
				continue
			}
			count := 0
			b.eachNeighbour(p, func(n Pos) {
				if b.layout[b.index(n)] == mineValue {
					count++
				}
			})
			b.layout[i] = count
		}
	}
}

// ToggleFlag flips the flag on an unopened cell. Opened cells are left
// alone.
func (b *Board) ToggleFlag(p Pos) error {
	if !b.contains(p) {
		return fmt.Errorf("flag %v: %w", p, ErrOutOfBounds)
	}
	i := b.index(p)
	if !b.opened[i] {
		b.flagged[i] = !b.flagged[i]
	}
	return nil
}

// IsMine reports whether p holds a mine. It is always false before the
// first open.
func (b *Board) IsMine(p Pos) (bool, error) {
	if !b.contains(p) {
		return false, fmt.Errorf("is mine %v: %w", p, ErrOutOfBounds)
	}
	return b.layout[b.index(p)] == mineValue, nil
}

// IsOpened reports whether p has been revealed.
func (b *Board) IsOpened(p Pos) (bool, error) {
	if !b.contains(p) {
		return false, fmt.Errorf("is opened %v: %w", p, ErrOutOfBounds)
	}
	return b.opened[b.index(p)], nil
}

// IsFlagged reports whether p carries a flag.
func (b *Board) IsFlagged(p Pos) (bool, error) {
	if !b.contains(p) {
		return false, fmt.Errorf("is flagged %v: %w", p, ErrOutOfBounds)
	}
	return b.flagged[b.index(p)], nil
}

// Count returns the number of mines around p, or -1 if p is a mine.
func (b *Board) Count(p Pos) (int, error) {
	if !b.contains(p) {
		return 0, fmt.Errorf("count %v: %w", p, ErrOutOfBounds)
	}
	return b.layout[b.index(p)], nil
}

// RemainingFlags is the mine count minus the flags placed. Over-flagging is
// allowed, so the result can be negative.
func (b *Board) RemainingFlags() int {
	flags := 0
	for _, f := range b.flagged {
		if f {
			flags++
		}
	}
	return b.mines - flags
}

// IsClear reports whether every non-mine cell is open.
func (b *Board) IsClear() bool {
	return b.revealed == len(b.layout)-b.mines
}

// Revealed is the number of opened non-mine cells.
func (b *Board) Revealed() int { return b.revealed }

func (b *Board) Status() Status { return b.status }
func (b *Board) Width() int { return b.width }
func (b *Board) Height() int { return b.height }
func (b *Board) MineCount() int { return b.mines }

func (b *Board) contains(p Pos) bool {
	return p.X >= 0 && p.X < b.width && p.Y >= 0 && p.Y < b.height
}

func (b *Board) index(p Pos) int { return p.Y*b.width + p.X }

// eachNeighbour calls fn for every on-board cell at Chebyshev distance 1.
func (b *Board) eachNeighbour(p Pos, fn func(Pos)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := Pos{X: p.X + dx, Y: p.Y + dy}
			if b.contains(n) {
				fn(n)
			}
		}
	}
}
