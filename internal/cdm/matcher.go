package cdm

import (
	"github.com/erdflow/backend/internal/domain/erd"
)

// MatchType ranks how an entity was matched against the catalog.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchAlias MatchType = "alias"
	MatchFuzzy MatchType = "fuzzy"
)

// Fixed confidences for the two deterministic tiers; fuzzy carries its
// computed score.
const (
	exactConfidence = 0.95
	aliasConfidence = 0.85
	fuzzyThreshold  = 0.70
)

// Weights of the fuzzy score components.
const (
	nameWeight    = 0.4
	overlapWeight = 0.6
)

// Match is one per-entity detection decision. Matches are produced fresh
// per detection run and never mutated.
type Match struct {
	OriginalEntity string    `json:"originalEntity"`
	Entry          Entry     `json:"cdmEntity"`
	MatchType      MatchType `json:"matchType"`
	Confidence     float64   `json:"confidence"`
}

// DetectionResult splits entities into matched and unmatched sets.
type DetectionResult struct {
	Matches   []Match      `json:"matches"`
	Unmatched []erd.Entity `json:"unmatched"`
}

// Matcher matches parsed entities against a catalog snapshot. It is
// stateless: the same entities against the same snapshot always produce the
// same result.
type Matcher struct {
	catalog *Catalog
}

// NewMatcher creates a matcher over the given catalog. A nil catalog uses
// the embedded default.
func NewMatcher(catalog *Catalog) *Matcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Matcher{catalog: catalog}
}

// Detect matches every entity against the catalog. Tiers are tried in
// priority order and the first hit wins: exact name, then alias, then the
// best fuzzy candidate above the acceptance threshold.
func (m *Matcher) Detect(entities []erd.Entity) DetectionResult {
	result := DetectionResult{}

	for _, entity := range entities {
		if match, ok := m.matchEntity(entity); ok {
			result.Matches = append(result.Matches, match)
		} else {
			result.Unmatched = append(result.Unmatched, entity)
		}
	}

	return result
}

func (m *Matcher) matchEntity(entity erd.Entity) (Match, bool) {
	normalized := Normalize(entity.Name)

	// Tier 1: exact against logical or display name.
	for _, entry := range m.catalog.Entries() {
		if normalized == Normalize(entry.LogicalName) || normalized == Normalize(entry.DisplayName) {
			return Match{
				OriginalEntity: entity.Name,
				Entry:          entry,
				MatchType:      MatchExact,
				Confidence:     exactConfidence,
			}, true
		}
	}

	// Tier 2: alias.
	for _, entry := range m.catalog.Entries() {
		for _, alias := range entry.Aliases {
			if normalized == Normalize(alias) {
				return Match{
					OriginalEntity: entity.Name,
					Entry:          entry,
					MatchType:      MatchAlias,
					Confidence:     aliasConfidence,
				}, true
			}
		}
	}

	// Tier 3: best fuzzy candidate across the whole catalog.
	var best Match
	bestScore := 0.0
	for _, entry := range m.catalog.Entries() {
		score := m.fuzzyScore(entity, entry)
		if score > bestScore {
			bestScore = score
			best = Match{
				OriginalEntity: entity.Name,
				Entry:          entry,
				MatchType:      MatchFuzzy,
				Confidence:     score,
			}
		}
	}
	if bestScore > fuzzyThreshold {
		return best, true
	}

	return Match{}, false
}

// fuzzyScore combines name similarity with attribute overlap. An entity
// attribute counts as overlapping when its normalized name equals a catalog
// key attribute or sits within edit distance 2 of one.
func (m *Matcher) fuzzyScore(entity erd.Entity, entry Entry) float64 {
	nameSim := Similarity(Normalize(entity.Name), Normalize(entry.LogicalName))

	overlap := 0
	for _, attr := range entity.Attributes {
		attrName := Normalize(attr.Name)
		for _, key := range entry.KeyAttributes {
			if attrName == Normalize(key) || Levenshtein(attrName, Normalize(key)) <= 2 {
				overlap++
				break
			}
		}
	}

	denominator := len(entity.Attributes)
	if len(entry.KeyAttributes) > denominator {
		denominator = len(entry.KeyAttributes)
	}
	overlapRatio := 0.0
	if denominator > 0 {
		overlapRatio = float64(overlap) / float64(denominator)
	}

	return nameWeight*nameSim + overlapWeight*overlapRatio
}
