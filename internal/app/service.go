package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaminalder/minesweeper/internal/domain"
	"github.com/jaminalder/minesweeper/internal/logger"
)

// Errors exposed by the service layer.
var (
	ErrNotFound = errors.New("game not found")
	ErrNotOwner = errors.New("not the owner of this game")
)

// Settings describe a new board. A nil Seed picks a random one.
type Settings struct {
	Width  int
	Height int
	Mines  int
	Seed   *uint64
}

// GameState is a copy of a game handed out to callers. Seed is only set
// once the game is over; with it and the first open the layout can be
// rebuilt.
type GameState struct {
	ID       string          `json:"id"`
	Owner    string          `json:"-"`
	Seed     *uint64         `json:"seed,omitempty"`
	Snapshot domain.Snapshot `json:"snapshot"`
	Created  time.Time       `json:"created"`
	Updated  time.Time       `json:"updated"`
}

type game struct {
	id      string
	owner   string
	seed    uint64
	board   *domain.Board
	created time.Time
	updated time.Time
}

func (g *game) state() GameState {
	gs := GameState{
		ID:       g.id,
		Owner:    g.owner,
		Snapshot: g.board.Snapshot(),
		Created:  g.created,
		Updated:  g.updated,
	}
	if gs.Snapshot.Status.Over() {
		seed := g.seed
		gs.Seed = &seed
	}
	return gs
}

type subscriber struct {
	ch        chan GameState
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service owns the boards and serialises every engine call.
type Service struct {
	mu    sync.Mutex
	games map[string]*game
	subs  map[string]map[*subscriber]struct{}

	log       logrus.FieldLogger
	metrics   *Metrics
	maxWidth  int
	maxHeight int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log logrus.FieldLogger) Option { return func(s *Service) { s.log = log } }

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLimits caps the board size accepted by CreateGame.
func WithLimits(maxWidth, maxHeight int) Option {
	return func(s *Service) { s.maxWidth, s.maxHeight = maxWidth, maxHeight }
}

// NewService creates an empty service. Without options it logs nowhere,
// records metrics on a private registry and accepts boards up to 64x64.
func NewService(opts ...Option) *Service {
	s := &Service{
		games:     make(map[string]*game),
		subs:      make(map[string]map[*subscriber]struct{}),
		maxWidth:  64,
		maxHeight: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// CreateGame builds a board for owner. Bad settings fail with
// domain.ErrInvalidConfiguration.
func (s *Service) CreateGame(owner string, st Settings) (*GameState, error) {
	if st.Width > s.maxWidth || st.Height > s.maxHeight {
		return nil, fmt.Errorf("%w: size %dx%d exceeds %dx%d",
			domain.ErrInvalidConfiguration, st.Width, st.Height, s.maxWidth, s.maxHeight)
	}
	seed := newSeed()
	if st.Seed != nil {
		seed = *st.Seed
	}
	b, err := domain.New(st.Width, st.Height, st.Mines, domain.WithSeed(seed))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	g := &game{id: newGameID(), owner: owner, seed: seed, board: b, created: now, updated: now}

	s.mu.Lock()
	s.games[g.id] = g
	active := len(s.games)
	gs := g.state()
	s.mu.Unlock()

	s.metrics.GamesCreated.Inc()
	s.metrics.ActiveGames.Set(float64(active))
	s.log.WithFields(logrus.Fields{
		"game": g.id, "width": st.Width, "height": st.Height, "mines": st.Mines, "seed": seed,
	}).Info("game created")
	return &gs, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, false
	}
	gs := g.state()
	return &gs, true
}

// Open opens a cell on behalf of player and broadcasts the new state.
func (s *Service) Open(id, player string, p domain.Pos) (domain.Result, *GameState, error) {
	var (
		res  domain.Result
		gain int
	)
	gs, err := s.mutate(id, player, func(b *domain.Board) error {
		before := b.Revealed()
		r, err := b.Open(p)
		if err != nil {
			return err
		}
		res, gain = r, b.Revealed()-before
		return nil
	})
	if err != nil {
		return domain.NoOp, nil, err
	}

	s.metrics.Opens.WithLabelValues(res.String()).Inc()
	if gain > 0 {
		s.metrics.Revealed.Observe(float64(gain))
	}
	if res == domain.Cleared || res == domain.Detonated {
		s.metrics.GamesFinished.WithLabelValues(gs.Snapshot.Status.String()).Inc()
	}
	s.log.WithFields(logrus.Fields{"game": id, "pos": p, "result": res, "revealed": gain}).Debug("cell opened")
	return res, gs, nil
}

// ToggleFlag flips a flag on behalf of player and broadcasts the new state.
func (s *Service) ToggleFlag(id, player string, p domain.Pos) (*GameState, error) {
	gs, err := s.mutate(id, player, func(b *domain.Board) error { return b.ToggleFlag(p) })
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"game": id, "pos": p}).Debug("flag toggled")
	return gs, nil
}

// Discard drops a game and closes its subscribers.
func (s *Service) Discard(id, player string) error {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if g.owner != "" && g.owner != player {
		s.mu.Unlock()
		return ErrNotOwner
	}
	delete(s.games, id)
	for sub := range s.subs[id] {
		sub.close()
	}
	delete(s.subs, id)
	active := len(s.games)
	s.mu.Unlock()

	s.metrics.ActiveGames.Set(float64(active))
	s.log.WithField("game", id).Info("game discarded")
	return nil
}

// mutate runs fn against the board under the lock and fans the new state
// out to subscribers.
func (s *Service) mutate(id, player string, fn func(*domain.Board) error) (*GameState, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if g.owner != "" && g.owner != player {
		s.mu.Unlock()
		return nil, ErrNotOwner
	}
	if err := fn(g.board); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	g.updated = time.Now()
	gs := g.state()
	s.broadcastLocked(id, gs)
	s.mu.Unlock()
	return &gs, nil
}

// Subscribe registers for state changes of a game. Updates are coalesced:
// a reader that falls behind skips to the newest state. The channel is
// closed when ctx ends, unsubscribe is called or the game is discarded.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan GameState, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, nil, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan GameState, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			sub.close()
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}

// broadcastLocked hands gs to every subscriber of id without blocking. A
// subscriber that has not read the previous state gets it replaced, so
// readers always see the latest board. Channels are only closed under s.mu.
func (s *Service) broadcastLocked(id string, gs GameState) {
	for sub := range s.subs[id] {
		select {
		case sub.ch <- gs:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- gs:
		default:
		}
	}
}
