package cdm

import (
	"testing"

	"github.com/erdflow/backend/internal/domain/erd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entityWithAttrs(name string, attrs ...string) erd.Entity {
	e := erd.Entity{Name: name, DisplayName: erd.DisplayName(name)}
	for _, a := range attrs {
		e.Attributes = append(e.Attributes, erd.Attribute{Name: a, Type: erd.TypeString})
	}
	return e
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"contact", "contract", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "d(%q,%q)", tt.a, tt.b)
		// Symmetry must hold for every pair.
		assert.Equal(t, Levenshtein(tt.a, tt.b), Levenshtein(tt.b, tt.a))
	}
}

func TestLevenshtein_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "account", "customer_id", "小组"} {
		assert.Zero(t, Levenshtein(s, s))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "contact", Normalize("Contacts"))
	assert.Equal(t, "lineitem", Normalize("Line_Items"))
	assert.Equal(t, "account", Normalize("account"))
}

func TestDetect_ExactMatch(t *testing.T) {
	m := NewMatcher(nil)
	result := m.Detect([]erd.Entity{entityWithAttrs("Contact", "firstName", "lastName", "email")})

	require.Len(t, result.Matches, 1)
	assert.Empty(t, result.Unmatched)

	match := result.Matches[0]
	assert.Equal(t, "Contact", match.OriginalEntity)
	assert.Equal(t, "contact", match.Entry.LogicalName)
	assert.Equal(t, MatchExact, match.MatchType)
	assert.Equal(t, 0.95, match.Confidence)
}

func TestDetect_AliasMatch(t *testing.T) {
	m := NewMatcher(nil)
	result := m.Detect([]erd.Entity{entityWithAttrs("Company", "name", "website")})

	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	assert.Equal(t, "account", match.Entry.LogicalName)
	assert.Equal(t, MatchAlias, match.MatchType)
	assert.Equal(t, 0.85, match.Confidence)
}

func TestDetect_ExactOutranksAlias(t *testing.T) {
	catalog := NewCatalog([]Entry{
		{LogicalName: "contact", DisplayName: "Contact"},
		{LogicalName: "person", DisplayName: "Person", Aliases: []string{"contact"}},
	})
	m := NewMatcher(catalog)

	result := m.Detect([]erd.Entity{entityWithAttrs("Contact")})
	require.Len(t, result.Matches, 1)
	assert.Equal(t, MatchExact, result.Matches[0].MatchType)
	assert.Equal(t, "contact", result.Matches[0].Entry.LogicalName)
}

func TestDetect_FuzzyMatch(t *testing.T) {
	catalog := NewCatalog([]Entry{
		{
			LogicalName:   "account",
			DisplayName:   "Account",
			KeyAttributes: []string{"name", "email", "phone"},
		},
	})
	m := NewMatcher(catalog)

	// "Acount" is neither an exact nor alias hit but shares every key
	// attribute: 0.4*nameSim + 0.6*1.0 clears the 0.7 threshold.
	result := m.Detect([]erd.Entity{entityWithAttrs("Acount", "name", "email", "phone")})
	require.Len(t, result.Matches, 1)
	match := result.Matches[0]
	assert.Equal(t, MatchFuzzy, match.MatchType)
	assert.Greater(t, match.Confidence, 0.7)
}

func TestDetect_BelowThresholdUnmatched(t *testing.T) {
	catalog := NewCatalog([]Entry{
		{
			LogicalName:   "account",
			DisplayName:   "Account",
			KeyAttributes: []string{"name", "email", "phone", "website", "address"},
		},
	})
	m := NewMatcher(catalog)

	result := m.Detect([]erd.Entity{entityWithAttrs("Widget", "weight", "color")})
	assert.Empty(t, result.Matches)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "Widget", result.Unmatched[0].Name)
}

func TestDetect_Deterministic(t *testing.T) {
	m := NewMatcher(nil)
	entities := []erd.Entity{
		entityWithAttrs("Contact", "firstName", "lastName"),
		entityWithAttrs("Warehouse", "location"),
	}

	first := m.Detect(entities)
	second := m.Detect(entities)
	assert.Equal(t, first, second)
}

func TestDetect_PluralNormalization(t *testing.T) {
	m := NewMatcher(nil)
	result := m.Detect([]erd.Entity{entityWithAttrs("Contacts")})
	require.Len(t, result.Matches, 1)
	assert.Equal(t, MatchExact, result.Matches[0].MatchType)
}
