package erd

import "strings"

// Cardinality describes the two-sided multiplicity of a relationship line.
type Cardinality string

const (
	OneToOne   Cardinality = "one-to-one"
	OneToMany  Cardinality = "one-to-many"
	ManyToOne  Cardinality = "many-to-one"
	ManyToMany Cardinality = "many-to-many"
)

// AttributeType is the diagram-level scalar type of an attribute.
type AttributeType string

const (
	TypeString   AttributeType = "string"
	TypeInteger  AttributeType = "integer"
	TypeDecimal  AttributeType = "decimal"
	TypeBoolean  AttributeType = "boolean"
	TypeDateTime AttributeType = "datetime"
	TypeGuid     AttributeType = "guid"
	TypeChoice   AttributeType = "choice"
)

// Attribute is a single typed column parsed from an entity block.
// Attributes are value objects: once parsed they are never mutated, the
// auto-fix engine rewrites the diagram text and re-parses instead.
type Attribute struct {
	Name         string        `json:"name"`
	Type         AttributeType `json:"type"`
	RawType      string        `json:"raw_type"`
	IsPrimaryKey bool          `json:"is_primary_key,omitempty"`
	IsForeignKey bool          `json:"is_foreign_key,omitempty"`
	IsUnique     bool          `json:"is_unique,omitempty"`
	IsRequired   bool          `json:"is_required,omitempty"`
	IsLookup     bool          `json:"is_lookup,omitempty"`
	TargetEntity string        `json:"target_entity,omitempty"`
	Description  string        `json:"description,omitempty"`
}

// Entity is a parsed table-like construct.
type Entity struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Attributes  []Attribute `json:"attributes"`
}

// Relationship is a parsed relationship line between two entities.
type Relationship struct {
	FromEntity  string      `json:"from_entity"`
	ToEntity    string      `json:"to_entity"`
	Cardinality Cardinality `json:"cardinality"`
	Name        string      `json:"name"`
}

// Model is the full output of one parse: entities and relationships in
// source order.
type Model struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// FindEntity returns the entity with the given name (case-insensitive),
// or nil if the model does not contain it.
func (m *Model) FindEntity(name string) *Entity {
	for i := range m.Entities {
		if strings.EqualFold(m.Entities[i].Name, name) {
			return &m.Entities[i]
		}
	}
	return nil
}

// PrimaryKey returns the first attribute flagged PK, or nil. Multiple PK
// flags are a validation issue, not a model error, so the first one wins.
func (e *Entity) PrimaryKey() *Attribute {
	for i := range e.Attributes {
		if e.Attributes[i].IsPrimaryKey {
			return &e.Attributes[i]
		}
	}
	return nil
}

// FindAttribute returns the attribute with the given name
// (case-insensitive), or nil.
func (e *Entity) FindAttribute(name string) *Attribute {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Name, name) {
			return &e.Attributes[i]
		}
	}
	return nil
}

// DisplayName converts a snake_case identifier into a Title Case label,
// e.g. "customer_id" -> "Customer Id".
func DisplayName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}
