// Package pair canonicalizes unordered user pairs.
//
// Every read or write that touches matches, conversations or compatibility
// entries goes through Canonical so that (a, b) and (b, a) land on the same row.
package pair

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfPair is returned when both sides of a pair are the same user.
	ErrSelfPair = errors.New("pair: a user cannot be paired with themselves")
	// ErrZeroID is returned for the zero user ID.
	ErrZeroID = errors.New("pair: user id must be non-zero")
)

// Pair is an unordered user pair stored as Low < High.
type Pair struct {
	Low  uint64
	High uint64
}

// Canonical orders a and b so that Low < High.
func Canonical(a, b uint64) (Pair, error) {
	if a == 0 || b == 0 {
		return Pair{}, ErrZeroID
	}
	if a == b {
		return Pair{}, ErrSelfPair
	}
	if a < b {
		return Pair{Low: a, High: b}, nil
	}
	return Pair{Low: b, High: a}, nil
}

// Other returns the member that is not id.
func (p Pair) Other(id uint64) (uint64, bool) {
	switch id {
	case p.Low:
		return p.High, true
	case p.High:
		return p.Low, true
	}
	return 0, false
}

func (p Pair) String() string {
	return fmt.Sprintf("%d:%d", p.Low, p.High)
}
