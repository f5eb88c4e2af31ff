package reconcile

import (
	"strconv"

	"github.com/quotedeck/backend/internal/domain/integration"
)

// MatchedPair is a deal and quote that share a canonical key.
type MatchedPair struct {
	Key   string
	Deal  integration.Deal
	Quote integration.Quote
}

// CrossIndex partitions the two record sets by canonical key.
// Duplicate keys within one platform are resolved last-write-wins in
// input order; the colliding source identifiers are retained so callers
// can log them.
type CrossIndex struct {
	Matched   []MatchedPair
	DealOnly  []integration.Deal
	QuoteOnly []integration.Quote
	// Collisions maps a canonical key to the source identifiers that
	// collided on it (deal IDs or quote IDs as strings).
	Collisions map[string][]string
}

// BuildCrossIndex joins won deals against quotes on their canonical
// title keys. Matched pairs appear exactly once; every unmatched record
// appears in exactly one of the "only" sets.
func BuildCrossIndex(deals []integration.Deal, quotes []integration.Quote) *CrossIndex {
	idx := &CrossIndex{Collisions: make(map[string][]string)}

	dealsByKey := make(map[string]integration.Deal, len(deals))
	dealKeys := make([]string, 0, len(deals))
	for _, d := range deals {
		key := CanonicalKey(d.Title)
		if prev, dup := dealsByKey[key]; dup {
			idx.Collisions[key] = append(idx.Collisions[key], strconv.FormatInt(prev.ID, 10), strconv.FormatInt(d.ID, 10))
		} else {
			dealKeys = append(dealKeys, key)
		}
		dealsByKey[key] = d
	}

	quotesByKey := make(map[string]integration.Quote, len(quotes))
	for _, q := range quotes {
		key := CanonicalKey(q.Title)
		if prev, dup := quotesByKey[key]; dup {
			idx.Collisions[key] = append(idx.Collisions[key], prev.ID, q.ID)
		}
		quotesByKey[key] = q
	}

	matchedQuoteKeys := make(map[string]struct{}, len(quotes))
	for _, key := range dealKeys {
		deal := dealsByKey[key]
		if quote, ok := quotesByKey[key]; ok {
			idx.Matched = append(idx.Matched, MatchedPair{Key: key, Deal: deal, Quote: quote})
			matchedQuoteKeys[key] = struct{}{}
		} else {
			idx.DealOnly = append(idx.DealOnly, deal)
		}
	}

	for _, q := range quotes {
		key := CanonicalKey(q.Title)
		if _, ok := matchedQuoteKeys[key]; ok {
			continue
		}
		// A later duplicate replaced this record; only the surviving
		// one belongs in the "only" set.
		if quotesByKey[key].ID != q.ID {
			continue
		}
		idx.QuoteOnly = append(idx.QuoteOnly, q)
	}

	return idx
}
