package resolve

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/tripweave/tripweave/internal/types"
)

// DefaultFuzzyThreshold is the minimum normalized Levenshtein similarity a
// fuzzy candidate must reach to be accepted. Inherited from the legacy backfill
// scripts; override via config, it has never been validated against real data.
const DefaultFuzzyThreshold = 0.75

// Matcher resolves a free-text location string against an in-memory candidate
// set of known cities. It performs no I/O and never mutates its inputs.
type Matcher struct {
	fuzzyThreshold float64
}

func NewMatcher(fuzzyThreshold float64) *Matcher {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Matcher{fuzzyThreshold: fuzzyThreshold}
}

// Match returns the single best candidate for query, or nil when nothing
// matches. Strategies run as a fixed-precedence waterfall; a later strategy is
// only tried when every earlier one produced zero results:
//
//  1. exact name within the hinted country ("Paris, France")
//  2. exact name, country-agnostic
//  3. substring either direction, first hit in slice order wins
//  4. normalized Levenshtein similarity >= threshold, best score wins,
//     ties broken by slice order
//
// The second return value is a short match-method tag for auditing, empty on
// no match.
func (m *Matcher) Match(query string, candidates []types.CityCandidate) (*types.CityCandidate, string) {
	name, countryHint := splitQuery(query)
	if name == "" || len(candidates) == 0 {
		return nil, ""
	}

	// Strategy 1: restrict to the hinted country, then require exact name.
	hinted := candidates
	hintApplied := false
	var hintedCountry string
	if countryHint != "" {
		restricted := make([]types.CityCandidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Country == nil {
				continue
			}
			if strings.EqualFold(c.Country.Name, countryHint) || strings.EqualFold(c.Country.Code, countryHint) {
				restricted = append(restricted, c)
				hintedCountry = c.Country.Name
			}
		}
		if len(restricted) > 0 {
			hinted = restricted
			hintApplied = true
		}
	}
	if hintApplied {
		for i := range hinted {
			if strings.EqualFold(hinted[i].Name, name) {
				return &hinted[i], fmt.Sprintf("exact+country(%s)", hintedCountry)
			}
		}
	}

	// Strategy 2: exact name, ignoring country.
	for i := range candidates {
		if strings.EqualFold(candidates[i].Name, name) {
			return &candidates[i], "exact"
		}
	}

	// Strategy 3: substring either direction. No scoring among multiple hits.
	lowerName := strings.ToLower(name)
	for i := range candidates {
		lowerCand := strings.ToLower(candidates[i].Name)
		if strings.Contains(lowerCand, lowerName) || strings.Contains(lowerName, lowerCand) {
			return &candidates[i], "substring"
		}
	}

	// Strategy 4: fuzzy. The hinted-country restriction from strategy 1 still
	// applies when it matched; otherwise the full set is scanned.
	fuzzySet := candidates
	if hintApplied {
		fuzzySet = hinted
	}
	best := -1
	bestScore := 0.0
	for i := range fuzzySet {
		score := Similarity(name, fuzzySet[i].Name)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best >= 0 && bestScore >= m.fuzzyThreshold {
		return &fuzzySet[best], fmt.Sprintf("fuzzy(%.2f)", bestScore)
	}

	return nil, ""
}

// Similarity computes the normalized Levenshtein similarity between two
// strings: 1 - editDistance/max(len). Case-insensitive, rune-based. Identical
// strings score 1.0, completely different strings approach 0.
func Similarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 && lb == 0 {
		return 1.0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.ComputeDistance(strings.ToLower(a), strings.ToLower(b))
	return 1.0 - float64(dist)/float64(maxLen)
}

// splitQuery splits a free-text location on commas: the first segment is the
// city name, the last segment (when present) is a country hint. "Paris" yields
// ("Paris", ""); "Paris, France" yields ("Paris", "France").
func splitQuery(query string) (name, countryHint string) {
	parts := strings.Split(query, ",")
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		countryHint = strings.TrimSpace(parts[len(parts)-1])
	}
	return name, countryHint
}
