package app

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

func newGameID() string { return uuid.NewString() }

// newSeed picks a placement seed; it is kept with the game so a board can be
// replayed.
func newSeed() uint64 { return rand.Uint64() }
