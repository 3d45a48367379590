package game

import (
	"math/rand"
	"sort"
)

// BuildDeck expands an owned collection (card id -> quantity) into a shuffled play deck.
// Each card appears min(quantity, maxCopies) times. Ids are expanded in sorted order so a
// seeded rng gives a reproducible deck. An empty result is returned with ErrEmptyCollection.
func BuildDeck(collection map[string]int, maxCopies int, rng *rand.Rand) ([]string, error) {
	ids := make([]string, 0, len(collection))
	for id, qty := range collection {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	deck := make([]string, 0, len(ids)*maxCopies)
	for _, id := range ids {
		n := collection[id]
		if n > maxCopies {
			n = maxCopies
		}
		for i := 0; i < n; i++ {
			deck = append(deck, id)
		}
	}
	if len(deck) == 0 {
		return deck, ErrEmptyCollection
	}

	// Fisher-Yates
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck, nil
}

// DrawCards moves up to count cards from the front of playerID's deck to the end of
// their hand, in order, and returns the drawn ids. An empty deck draws nothing.
func DrawCards(s *Session, playerID string, count int) []string {
	p := s.Player(playerID)
	if p == nil || count <= 0 {
		return nil
	}
	if count > len(p.Deck) {
		count = len(p.Deck)
	}
	drawn := append([]string(nil), p.Deck[:count]...)
	p.Deck = p.Deck[count:]
	p.Hand = append(p.Hand, drawn...)
	return drawn
}
