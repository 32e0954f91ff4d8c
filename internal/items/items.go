package items

import "math/rand"

// Item is a power-up a player can be offered mid-match. The client applies the
// effect locally; the server only relays the selection to peers.
type Item string

const (
	Bomb      Item = "bomb"
	Shield    Item = "shield"
	SpeedUp   Item = "speedup"
	SlowDown  Item = "slowdown"
	LineClear Item = "lineclear"
)

// Catalog is the fixed set of items a draw selects from.
var Catalog = []Item{Bomb, Shield, SpeedUp, SlowDown, LineClear}

// OfferSize is how many items one prompt offers a player.
const OfferSize = 3

// Draw picks n distinct items uniformly at random without replacement. Asking
// for more than the catalog holds returns the whole catalog in random order.
func Draw(n int) []Item {
	candidates := make([]Item, len(Catalog))
	copy(candidates, Catalog)

	if n > len(candidates) {
		n = len(candidates)
	}

	drawn := make([]Item, 0, n)
	for len(drawn) < n {
		i := rand.Intn(len(candidates))
		drawn = append(drawn, candidates[i])
		candidates[i] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
	}

	return drawn
}
