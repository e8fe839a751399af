// Package balancer picks an assistant for a new client from a roster snapshot.
//
// Selectors are pure: they never touch storage and keep no state between calls,
// so one value can be shared by concurrent request handlers.
package balancer

import (
	"errors"
	"math/rand/v2"

	"github.com/digkill/clientdesk/internal/models"
)

// ErrNoCapacity indicates that no assistant in the roster can take another client.
var ErrNoCapacity = errors.New("no assistant capacity")

// DefaultCeiling is the client count at which an assistant stops receiving
// random subscription assignments.
const DefaultCeiling = 10

// Selector chooses one roster entry.
type Selector interface {
	Select(roster []models.AssistantLoad) (models.AssistantLoad, error)
}

// LeastLoaded picks the assistant with the fewest clients.
type LeastLoaded struct{}

var _ Selector = LeastLoaded{}

// Select returns the first entry holding the minimum client count, so ties
// resolve by roster order.
//
// Example:
//
//	counts [3, 1, 4, 1] -> index 1
func (LeastLoaded) Select(roster []models.AssistantLoad) (models.AssistantLoad, error) {
	if len(roster) == 0 {
		return models.AssistantLoad{}, ErrNoCapacity
	}
	best := 0
	for i := 1; i < len(roster); i++ {
		if roster[i].ClientCount < roster[best].ClientCount {
			best = i
		}
	}
	return roster[best], nil
}

// RandomUnderCeiling picks uniformly among assistants holding fewer than
// Ceiling clients.
type RandomUnderCeiling struct {
	Ceiling int
	// IntN returns a value in [0, n). Defaults to math/rand/v2.IntN, which is
	// safe for concurrent use.
	IntN func(n int) int
}

var _ Selector = RandomUnderCeiling{}

// NewRandomUnderCeiling creates the subscription-activation selector.
// A non-positive ceiling falls back to DefaultCeiling.
func NewRandomUnderCeiling(ceiling int) RandomUnderCeiling {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return RandomUnderCeiling{Ceiling: ceiling, IntN: rand.IntN}
}

func (s RandomUnderCeiling) Select(roster []models.AssistantLoad) (models.AssistantLoad, error) {
	ceiling := s.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	eligible := make([]models.AssistantLoad, 0, len(roster))
	for _, entry := range roster {
		if entry.ClientCount < ceiling {
			eligible = append(eligible, entry)
		}
	}
	if len(eligible) == 0 {
		return models.AssistantLoad{}, ErrNoCapacity
	}

	intN := s.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return eligible[intN(len(eligible))], nil
}
