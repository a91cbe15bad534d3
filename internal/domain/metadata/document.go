package metadata

import "time"

// AttributeDefinition is the platform-level metadata for a single column.
type AttributeDefinition struct {
	LogicalName   string   `json:"LogicalName"`
	SchemaName    string   `json:"SchemaName"`
	DisplayName   string   `json:"DisplayName"`
	Description   string   `json:"Description,omitempty"`
	AttributeType string   `json:"AttributeType"` // String, Int32, Decimal, Boolean, DateTimeOffset, Guid, Lookup
	IsPrimaryID   bool     `json:"IsPrimaryId,omitempty"`
	IsPrimaryName bool     `json:"IsPrimaryName,omitempty"`
	IsUnique      bool     `json:"IsUnique,omitempty"`
	Required      bool     `json:"Required,omitempty"`
	MaxLength     int      `json:"MaxLength,omitempty"`
	Targets       []string `json:"Targets,omitempty"` // Lookup only: resolvable target logical names
}

// EntityDefinition is the platform-level metadata for one entity.
type EntityDefinition struct {
	LogicalName   string                `json:"LogicalName"`
	SchemaName    string                `json:"SchemaName"`
	DisplayName   string                `json:"DisplayName"`
	PluralName    string                `json:"DisplayCollectionName"`
	Description   string                `json:"Description,omitempty"`
	PrimaryIDName string                `json:"PrimaryIdAttribute"`
	PrimaryName   string                `json:"PrimaryNameAttribute"`
	Attributes    []AttributeDefinition `json:"Attributes"`
}

// Relationship descriptor types emitted in the document's "@type" field.
const (
	TypeOneToMany  = "OneToManyRelationshipMetadata"
	TypeManyToMany = "ManyToManyRelationshipMetadata"
)

// RelationshipDefinition describes a platform relationship between two
// entities by logical name. One-to-many carries the referencing lookup
// attribute; many-to-many carries the intersect (junction) entity name.
type RelationshipDefinition struct {
	Type                 string `json:"@type"`
	SchemaName           string `json:"SchemaName"`
	ReferencedEntity     string `json:"ReferencedEntity,omitempty"`
	ReferencingEntity    string `json:"ReferencingEntity,omitempty"`
	ReferencingAttribute string `json:"ReferencingAttribute,omitempty"`
	Entity1LogicalName   string `json:"Entity1LogicalName,omitempty"`
	Entity2LogicalName   string `json:"Entity2LogicalName,omitempty"`
	IntersectEntityName  string `json:"IntersectEntityName,omitempty"`
}

// AdditionalColumn is an explicit lookup attribute that is not implied by a
// parsed relationship line. The entity it belongs to is named separately so
// CDM-resolved entities (which have no EntityDefinition in the document) can
// still receive columns.
type AdditionalColumn struct {
	EntityLogicalName string              `json:"entityLogicalName"`
	Column            AttributeDefinition `json:"columnMetadata"`
}

// DocumentInfo carries provenance for a generated document.
type DocumentInfo struct {
	PublisherPrefix string    `json:"publisherPrefix"`
	Source          string    `json:"source"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// Document is the platform-agnostic output of schema generation and the
// input to deployment.
type Document struct {
	Entities          []EntityDefinition       `json:"entities"`
	Relationships     []RelationshipDefinition `json:"relationships"`
	AdditionalColumns []AdditionalColumn       `json:"additionalColumns,omitempty"`
	Info              DocumentInfo             `json:"metadata"`
}

// FindEntity returns the entity definition with the given logical name, or
// nil if the document does not generate it (CDM-resolved endpoints).
func (d *Document) FindEntity(logicalName string) *EntityDefinition {
	for i := range d.Entities {
		if d.Entities[i].LogicalName == logicalName {
			return &d.Entities[i]
		}
	}
	return nil
}
