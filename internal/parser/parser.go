package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/erdflow/backend/internal/domain/erd"
)

// ParseWarning records a line the parser could not interpret. Warnings are
// surfaced to the caller but never abort a parse.
type ParseWarning struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

var (
	entityStartRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\{$`)
	// <type> <name> [PK|FK|UK ...] ["description"]
	attributeRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(?:\(([A-Za-z_][A-Za-z0-9_:]*)\))?)\s+([A-Za-z_][A-Za-z0-9_]*)((?:\s+(?:PK|FK|UK))*)\s*(?:"([^"]*)")?$`)
	// A <card> B : label
	relationshipRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(\|\|--\|\||\|\|--o\{|\}o--\|\||\}o--o\{)\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+)$`)
)

// cardinalityFromToken maps the four supported two-sided symbol pairs.
var cardinalityFromToken = map[string]erd.Cardinality{
	"||--||": erd.OneToOne,
	"||--o{": erd.OneToMany,
	"}o--||": erd.ManyToOne,
	"}o--o{": erd.ManyToMany,
}

var tokenFromCardinality = map[erd.Cardinality]string{
	erd.OneToOne:   "||--||",
	erd.OneToMany:  "||--o{",
	erd.ManyToOne:  "}o--||",
	erd.ManyToMany: "}o--o{",
}

// scalarTypes maps the diagram type tokens the grammar accepts onto the
// model's scalar enum. Unknown tokens fall back to string (the caller gets
// a warning and the type mapper fails closed the same way).
var scalarTypes = map[string]erd.AttributeType{
	"string":   erd.TypeString,
	"int":      erd.TypeInteger,
	"integer":  erd.TypeInteger,
	"decimal":  erd.TypeDecimal,
	"boolean":  erd.TypeBoolean,
	"datetime": erd.TypeDateTime,
	"guid":     erd.TypeGuid,
	"choice":   erd.TypeChoice,
	"category": erd.TypeChoice,
}

// Parse converts raw Mermaid erDiagram text into a typed model. Parsing is
// deterministic and order-preserving; unrecognized lines are skipped and
// reported as warnings, never as failures.
func Parse(text string) (*erd.Model, []ParseWarning) {
	model := &erd.Model{}
	var warnings []ParseWarning

	var current *erd.Entity
	seen := map[string]bool{}

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		if line == "" || strings.HasPrefix(line, "%%") || line == "erDiagram" {
			continue
		}

		if current != nil {
			if line == "}" {
				model.Entities = append(model.Entities, *current)
				current = nil
				continue
			}
			attr, ok := parseAttribute(line)
			if !ok {
				warnings = append(warnings, ParseWarning{
					Line:    lineNo,
					Text:    line,
					Message: fmt.Sprintf("unrecognized attribute line in entity '%s'", current.Name),
				})
				continue
			}
			current.Attributes = append(current.Attributes, attr)
			continue
		}

		if m := entityStartRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			if seen[strings.ToLower(name)] {
				warnings = append(warnings, ParseWarning{
					Line:    lineNo,
					Text:    line,
					Message: fmt.Sprintf("duplicate entity '%s', block skipped", name),
				})
				// Consume the block but mark it dropped (empty display name).
				current = &erd.Entity{Name: name}
				continue
			}
			seen[strings.ToLower(name)] = true
			current = &erd.Entity{
				Name:        name,
				DisplayName: erd.DisplayName(name),
			}
			continue
		}

		if m := relationshipRe.FindStringSubmatch(line); m != nil {
			model.Relationships = append(model.Relationships, erd.Relationship{
				FromEntity:  m[1],
				ToEntity:    m[3],
				Cardinality: cardinalityFromToken[m[2]],
				Name:        strings.TrimSpace(m[4]),
			})
			continue
		}

		warnings = append(warnings, ParseWarning{
			Line:    lineNo,
			Text:    line,
			Message: "unrecognized line, skipped",
		})
	}

	// Unterminated entity block at EOF: keep what was parsed.
	if current != nil {
		model.Entities = append(model.Entities, *current)
	}

	// Drop duplicate blocks parsed above (marked by empty display name).
	kept := model.Entities[:0]
	for _, e := range model.Entities {
		if e.DisplayName == "" {
			continue
		}
		kept = append(kept, e)
	}
	model.Entities = kept

	return model, warnings
}

// parseAttribute matches one entity-block line against the attribute
// grammar: <type> <name> [PK|FK|UK]* ["description"].
func parseAttribute(line string) (erd.Attribute, bool) {
	m := attributeRe.FindStringSubmatch(line)
	if m == nil {
		return erd.Attribute{}, false
	}

	rawType := m[1]
	lookupTarget := m[2]
	name := m[3]
	flags := strings.Fields(m[4])
	description := m[5]

	attr := erd.Attribute{
		Name:        name,
		RawType:     rawType,
		Description: description,
	}

	base := strings.ToLower(rawType)
	if idx := strings.Index(base, "("); idx >= 0 {
		base = base[:idx]
	}
	if base == "lookup" {
		attr.Type = erd.TypeGuid
		attr.IsLookup = true
		attr.TargetEntity = lookupTarget
	} else if t, ok := scalarTypes[base]; ok {
		attr.Type = t
	} else {
		attr.Type = erd.TypeString
	}

	for _, f := range flags {
		switch f {
		case "PK":
			attr.IsPrimaryKey = true
			attr.IsRequired = true
		case "FK":
			attr.IsForeignKey = true
		case "UK":
			attr.IsUnique = true
		}
	}

	return attr, true
}

// CardinalityToken returns the diagram symbol pair for a cardinality. The
// mapping is the exact inverse of the one used while parsing.
func CardinalityToken(c erd.Cardinality) string {
	return tokenFromCardinality[c]
}
