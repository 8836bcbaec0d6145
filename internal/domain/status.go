package domain

import (
	"errors"
	"fmt"
)

// Status is the game phase. It only moves forward:
// Waiting -> Playing -> Won or Lost.
type Status uint8

const (
	Waiting Status = iota
	Playing
	Won
	Lost
)

var statusNames = [...]string{"waiting", "playing", "won", "lost"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// Over reports whether the game has finished.
func (s Status) Over() bool { return s == Won || s == Lost }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	i, err := lookup(statusNames[:], string(b))
	if err != nil {
		return fmt.Errorf("unknown status %q", b)
	}
	*s = Status(i)
	return nil
}

// Result is the outcome of a single Open call. Exactly one is returned per
// call and it is all a caller needs to pick sounds and effects.
type Result uint8

const (
	// NoOp: the game is already over.
	NoOp Result = iota
	// Revealed: one or more safe cells are open and the game goes on.
	Revealed
	// Cleared: the last safe cell was opened and the game is won.
	Cleared
	// Detonated: a mine was opened and the game is lost.
	Detonated
	// Flagged: the target carries a flag and was left closed.
	Flagged
)

var resultNames = [...]string{"noop", "revealed", "cleared", "detonated", "flagged"}

func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", r)
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Result) UnmarshalText(b []byte) error {
	i, err := lookup(resultNames[:], string(b))
	if err != nil {
		return fmt.Errorf("unknown result %q", b)
	}
	*r = Result(i)
	return nil
}

var errUnknownName = errors.New("unknown name")

func lookup(names []string, name string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, errUnknownName
}
