package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/erdflow/backend/internal/cdm"
	"github.com/erdflow/backend/internal/domain/erd"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/pkg/attrtypes"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

// Options controls one generation run.
type Options struct {
	// Prefix is the publisher prefix used for every generated logical name.
	// Mandatory.
	Prefix string
	// Source is a provenance marker stored in the document metadata.
	Source string
	// UseCDM excludes matched entities from generation and resolves
	// relationship endpoints to their catalog logical names instead.
	UseCDM bool
}

// Result carries the generated document plus the per-item problems that did
// not stop generation. Errors are collected, never thrown: a bad
// relationship poisons only itself.
type Result struct {
	Document metadata.Document `json:"document"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// Generator turns a parsed model plus CDM decisions into a platform
// metadata document.
type Generator struct {
	now func() time.Time
}

// New creates a Generator.
func New() *Generator {
	return &Generator{now: time.Now}
}

// Generate produces the metadata document for a model. Only a missing
// prefix aborts generation outright; everything else degrades to per-item
// errors and warnings on the result.
func (g *Generator) Generate(model *erd.Model, matches []cdm.Match, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.Prefix) == "" {
		return nil, apperrors.NewConfigurationError("prefix", "publisher prefix is required")
	}
	if model == nil || len(model.Entities) == 0 {
		return nil, apperrors.NewConfigurationError("diagram", "no entities to generate")
	}

	source := opts.Source
	if source == "" {
		source = "erdflow"
	}

	result := &Result{
		Document: metadata.Document{
			Info: metadata.DocumentInfo{
				PublisherPrefix: opts.Prefix,
				Source:          source,
				GeneratedAt:     g.now().UTC(),
			},
		},
	}

	resolver := newNameResolver(model, matches, opts)

	for _, entity := range model.Entities {
		if opts.UseCDM && resolver.cdmEntry(entity.Name) != nil {
			// CDM-matched entities are reused, not generated; they stay
			// resolvable as relationship endpoints and can still receive
			// explicit lookup columns below.
		} else {
			def := g.generateEntity(entity, opts.Prefix, result)
			result.Document.Entities = append(result.Document.Entities, def)
		}

		for _, attr := range entity.Attributes {
			if !attr.IsLookup {
				continue
			}
			column, err := g.generateLookupColumn(entity, attr, resolver, opts.Prefix)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Document.AdditionalColumns = append(result.Document.AdditionalColumns, column)
		}
	}

	for _, rel := range model.Relationships {
		def, err := g.generateRelationship(rel, resolver, opts.Prefix, result)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Document.Relationships = append(result.Document.Relationships, def)
	}

	return result, nil
}

// generateEntity emits one entity definition. The primary key is elevated
// to the platform identity attribute and a primary-name attribute is
// promoted or synthesized.
func (g *Generator) generateEntity(entity erd.Entity, prefix string, result *Result) metadata.EntityDefinition {
	logicalName := LogicalName(prefix, entity.Name)

	def := metadata.EntityDefinition{
		LogicalName: logicalName,
		SchemaName:  prefix + "_" + entity.Name,
		DisplayName: entity.DisplayName,
		PluralName:  entity.DisplayName + "s",
	}

	for _, attr := range entity.Attributes {
		if attr.IsLookup {
			// Lookup attributes become additionalColumns, not plain columns.
			continue
		}

		rawType := strings.ToLower(attr.RawType)
		if idx := strings.Index(rawType, "("); idx >= 0 {
			rawType = rawType[:idx]
		}

		if !attrtypes.IsCreatable(rawType) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("entity '%s': column '%s' has type '%s' which this pipeline cannot create, skipped", entity.Name, attr.Name, rawType))
			continue
		}

		platformType, known := attrtypes.MapType(rawType)
		if !known {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("entity '%s': unknown type '%s' for column '%s', defaulting to %s", entity.Name, rawType, attr.Name, attrtypes.DefaultPlatformType))
		}

		attrDef := metadata.AttributeDefinition{
			LogicalName:   LogicalName(prefix, attr.Name),
			SchemaName:    prefix + "_" + attr.Name,
			DisplayName:   erd.DisplayName(attr.Name),
			Description:   attr.Description,
			AttributeType: platformType,
			IsUnique:      attr.IsUnique,
			Required:      attr.IsRequired,
		}

		if attr.IsPrimaryKey {
			// Platform identity attributes are always Guid-typed.
			attrDef.AttributeType = "Guid"
			attrDef.IsPrimaryID = true
			attrDef.Required = true
			def.PrimaryIDName = attrDef.LogicalName
		}
		if platformType == "String" {
			attrDef.MaxLength = 255
		}

		// A non-key column literally named "name" collides with the
		// platform's auto-generated primary-name column. Policy: promote it
		// to the primary name instead of renaming.
		if !attr.IsPrimaryKey && strings.EqualFold(attr.Name, "name") {
			attrDef.IsPrimaryName = true
			def.PrimaryName = attrDef.LogicalName
		}

		def.Attributes = append(def.Attributes, attrDef)
	}

	if def.PrimaryName == "" {
		// Synthesize the required display/name attribute. A primary key
		// literally named "name" already owns that logical name, so the
		// synthesized attribute moves aside to keep logical names unique.
		nameLogical := LogicalName(prefix, "name")
		nameSchema := prefix + "_name"
		for _, existing := range def.Attributes {
			if existing.LogicalName == nameLogical {
				nameLogical = LogicalName(prefix, "primaryname")
				nameSchema = prefix + "_primaryname"
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("entity '%s': primary key 'name' occupies the platform name column, primary-name attribute generated as '%s'", entity.Name, nameLogical))
				break
			}
		}
		nameAttr := metadata.AttributeDefinition{
			LogicalName:   nameLogical,
			SchemaName:    nameSchema,
			DisplayName:   "Name",
			AttributeType: "String",
			IsPrimaryName: true,
			MaxLength:     255,
		}
		def.PrimaryName = nameAttr.LogicalName
		def.Attributes = append(def.Attributes, nameAttr)
	}

	return def
}

// generateLookupColumn emits one additionalColumns entry for an explicit
// lookup attribute, with every resolvable target logical name.
func (g *Generator) generateLookupColumn(entity erd.Entity, attr erd.Attribute, resolver *nameResolver, prefix string) (metadata.AdditionalColumn, error) {
	if attr.TargetEntity == "" {
		return metadata.AdditionalColumn{}, apperrors.NewGenerationError(
			entity.Name+"."+attr.Name, "lookup attribute has no target entity")
	}

	targets := resolver.lookupTargets(attr.TargetEntity)
	if len(targets) == 0 {
		return metadata.AdditionalColumn{}, apperrors.NewGenerationError(
			entity.Name+"."+attr.Name,
			fmt.Sprintf("lookup target '%s' does not resolve to a generated or CDM entity", attr.TargetEntity))
	}

	return metadata.AdditionalColumn{
		EntityLogicalName: resolver.resolve(entity.Name),
		Column: metadata.AttributeDefinition{
			LogicalName:   LogicalName(prefix, attr.Name),
			SchemaName:    prefix + "_" + attr.Name,
			DisplayName:   erd.DisplayName(attr.Name),
			Description:   attr.Description,
			AttributeType: "Lookup",
			Required:      attr.IsRequired,
			Targets:       targets,
		},
	}, nil
}

// generateRelationship emits one relationship descriptor. Many-to-many
// input is an input-validation error here: junction entities must have been
// produced upstream by the parser or the auto-fix engine. One-to-one has no
// relationship metadata type on the platform, so it deploys as a
// one-to-many with a single lookup; the downgrade is reported as a warning.
func (g *Generator) generateRelationship(rel erd.Relationship, resolver *nameResolver, prefix string, result *Result) (metadata.RelationshipDefinition, error) {
	key := fmt.Sprintf("%s-%s", rel.FromEntity, rel.ToEntity)

	if rel.Cardinality == erd.ManyToMany {
		return metadata.RelationshipDefinition{}, apperrors.NewGenerationError(key,
			"many-to-many relationships must be modeled as an explicit junction entity with two one-to-many relationships")
	}
	if rel.Cardinality == erd.OneToOne {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("relationship '%s': the platform has no one-to-one relationship type, deploying as one-to-many", key))
	}

	referenced, referencing := rel.FromEntity, rel.ToEntity
	if rel.Cardinality == erd.ManyToOne {
		// A }o--|| B reads "many A reference one B".
		referenced, referencing = rel.ToEntity, rel.FromEntity
	}

	referencedLogical := resolver.resolve(referenced)
	if referencedLogical == "" {
		return metadata.RelationshipDefinition{}, apperrors.NewGenerationError(key,
			fmt.Sprintf("referenced entity '%s' is not part of the document and has no CDM mapping", referenced))
	}
	referencingLogical := resolver.resolve(referencing)
	if referencingLogical == "" {
		return metadata.RelationshipDefinition{}, apperrors.NewGenerationError(key,
			fmt.Sprintf("referencing entity '%s' is not part of the document and has no CDM mapping", referencing))
	}

	return metadata.RelationshipDefinition{
		Type:                 metadata.TypeOneToMany,
		SchemaName:           fmt.Sprintf("%s_%s_%s", prefix, strings.ToLower(referenced), strings.ToLower(referencing)),
		ReferencedEntity:     referencedLogical,
		ReferencingEntity:    referencingLogical,
		ReferencingAttribute: resolver.referencingAttribute(referencing, referenced),
	}, nil
}

// LogicalName builds the platform logical name: {prefix}_{lowercased name}.
func LogicalName(prefix, name string) string {
	return prefix + "_" + strings.ToLower(name)
}
