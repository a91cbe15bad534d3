package parser

import (
	"fmt"
	"strings"

	"github.com/erdflow/backend/internal/domain/erd"
)

// Serialize renders a model back into canonical erDiagram text. The output
// is not guaranteed to match the original source byte for byte, but parsing
// it again yields a structurally equal model.
func Serialize(model *erd.Model) string {
	var b strings.Builder
	b.WriteString("erDiagram\n")

	for _, e := range model.Entities {
		fmt.Fprintf(&b, "    %s {\n", e.Name)
		for _, a := range e.Attributes {
			b.WriteString("        ")
			b.WriteString(serializeAttribute(a))
			b.WriteString("\n")
		}
		b.WriteString("    }\n")
	}

	for _, r := range model.Relationships {
		fmt.Fprintf(&b, "    %s %s %s : %s\n", r.FromEntity, CardinalityToken(r.Cardinality), r.ToEntity, r.Name)
	}

	return b.String()
}

func serializeAttribute(a erd.Attribute) string {
	parts := []string{typeToken(a), a.Name}
	if a.IsPrimaryKey {
		parts = append(parts, "PK")
	}
	if a.IsForeignKey {
		parts = append(parts, "FK")
	}
	if a.IsUnique {
		parts = append(parts, "UK")
	}
	if a.Description != "" {
		parts = append(parts, fmt.Sprintf("%q", a.Description))
	}
	return strings.Join(parts, " ")
}

func typeToken(a erd.Attribute) string {
	if a.IsLookup {
		if a.TargetEntity != "" {
			return fmt.Sprintf("lookup(%s)", a.TargetEntity)
		}
		return "lookup"
	}
	switch a.Type {
	case erd.TypeInteger:
		return "int"
	case erd.TypeChoice:
		return "choice"
	default:
		return string(a.Type)
	}
}
