package cdm

import (
	"embed"
	"encoding/json"
	"strings"
	"sync"
	"unicode"
)

//go:embed catalog.json
var catalogFS embed.FS

// Entry is one standard entity in the CDM catalog.
type Entry struct {
	LogicalName   string   `json:"logicalName"`
	DisplayName   string   `json:"displayName"`
	Aliases       []string `json:"aliases"`
	KeyAttributes []string `json:"keyAttributes"`
	PrimaryID     string   `json:"primaryId"`
	PrimaryName   string   `json:"primaryName"`
}

// Catalog is an immutable snapshot of the standard-entity catalog. Matching
// against the same snapshot is reproducible by construction.
type Catalog struct {
	entries []Entry
}

var (
	defaultCatalog *Catalog
	once           sync.Once
)

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
	once.Do(func() {
		defaultCatalog = &Catalog{}
		data, err := catalogFS.ReadFile("catalog.json")
		if err != nil {
			return
		}
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return
		}
		defaultCatalog.entries = entries
	})
	return defaultCatalog
}

// NewCatalog builds a catalog from explicit entries, used by tests and by
// callers that load a tenant-specific catalog.
func NewCatalog(entries []Entry) *Catalog {
	return &Catalog{entries: entries}
}

// Entries returns the catalog contents in declaration order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Find returns the entry with the given logical name, or nil.
func (c *Catalog) Find(logicalName string) *Entry {
	for i := range c.entries {
		if strings.EqualFold(c.entries[i].LogicalName, logicalName) {
			return &c.entries[i]
		}
	}
	return nil
}

// Normalize lowercases a name, strips one trailing plural 's' and removes
// every non-alphanumeric rune. "Line_Items" and "lineitem" normalize to the
// same key.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 1 && strings.HasSuffix(s, "s") {
		s = s[:len(s)-1]
	}
	return s
}
