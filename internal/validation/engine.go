package validation

import (
	"fmt"
	"strings"

	"github.com/erdflow/backend/internal/domain/erd"
	"github.com/erdflow/backend/pkg/attrtypes"
)

// Issue types.
const (
	IssueMissingPrimaryKey   = "missing-primary-key"
	IssueMultiplePrimaryKeys = "multiple-primary-keys"
	IssueDuplicateColumns    = "duplicate-columns"
	IssueNamingConflict      = "naming-conflict"
	IssueMissingForeignKey   = "missing-foreign-key"
	IssueForeignKeyNaming    = "foreign-key-naming"
	IssueChoiceColumn        = "choice-column"
	IssueManyToMany          = "many-to-many-without-junction"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue is one structural problem found in a parsed model. The ID is
// stable across runs: re-validating corrected text recognizes a fixed
// issue by its absence.
type Issue struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Entity       string `json:"entity,omitempty"`
	Column       string `json:"column,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Message      string `json:"message"`
	AutoFixable  bool   `json:"autoFixable"`
}

// issueID derives the stable identifier from the issue's coordinates.
func issueID(issueType, entity, extra string) string {
	id := issueType + ":" + strings.ToLower(entity)
	if extra != "" {
		id += ":" + strings.ToLower(extra)
	}
	return id
}

// Validate analyzes a parsed model for structural problems. It never
// mutates the model; fixes are applied to the diagram text by AutoFix.
func Validate(model *erd.Model) []Issue {
	var issues []Issue

	for _, entity := range model.Entities {
		issues = append(issues, validateEntity(entity)...)
	}

	for _, rel := range model.Relationships {
		issues = append(issues, validateRelationship(model, rel)...)
	}

	return issues
}

func validateEntity(entity erd.Entity) []Issue {
	var issues []Issue

	var pkCount int
	seen := map[string]int{}
	for _, attr := range entity.Attributes {
		if attr.IsPrimaryKey {
			pkCount++
		}
		seen[strings.ToLower(attr.Name)]++
	}

	if pkCount == 0 {
		issues = append(issues, Issue{
			ID:          issueID(IssueMissingPrimaryKey, entity.Name, ""),
			Type:        IssueMissingPrimaryKey,
			Severity:    SeverityError,
			Entity:      entity.Name,
			Message:     fmt.Sprintf("entity '%s' has no primary key attribute", entity.Name),
			AutoFixable: true,
		})
	}
	if pkCount > 1 {
		issues = append(issues, Issue{
			ID:          issueID(IssueMultiplePrimaryKeys, entity.Name, ""),
			Type:        IssueMultiplePrimaryKeys,
			Severity:    SeverityError,
			Entity:      entity.Name,
			Message:     fmt.Sprintf("entity '%s' declares %d primary keys, only one is allowed", entity.Name, pkCount),
			AutoFixable: true,
		})
	}

	for name, count := range seen {
		if count > 1 {
			issues = append(issues, Issue{
				ID:          issueID(IssueDuplicateColumns, entity.Name, name),
				Type:        IssueDuplicateColumns,
				Severity:    SeverityError,
				Entity:      entity.Name,
				Column:      name,
				Message:     fmt.Sprintf("entity '%s' declares column '%s' %d times", entity.Name, name, count),
				AutoFixable: true,
			})
		}
	}

	for _, attr := range entity.Attributes {
		if strings.EqualFold(attr.Name, "name") {
			message := fmt.Sprintf("entity '%s': column 'name' matches the platform's primary-name column and will be promoted to it", entity.Name)
			if attr.IsPrimaryKey {
				message = fmt.Sprintf("entity '%s': primary key 'name' occupies the platform's name column; the primary-name attribute will be generated under a separate name", entity.Name)
			}
			issues = append(issues, Issue{
				ID:       issueID(IssueNamingConflict, entity.Name, attr.Name),
				Type:     IssueNamingConflict,
				Severity: SeverityInfo,
				Entity:   entity.Name,
				Column:   attr.Name,
				Message:  message,
			})
		}

		rawType := strings.ToLower(attr.RawType)
		if idx := strings.Index(rawType, "("); idx >= 0 {
			rawType = rawType[:idx]
		}
		if !attrtypes.IsCreatable(rawType) {
			issues = append(issues, Issue{
				ID:       issueID(IssueChoiceColumn, entity.Name, attr.Name),
				Type:     IssueChoiceColumn,
				Severity: SeverityInfo,
				Entity:   entity.Name,
				Column:   attr.Name,
				Message:  fmt.Sprintf("entity '%s': column '%s' is a %s column, which this pipeline cannot create", entity.Name, attr.Name, rawType),
			})
		}
	}

	return issues
}

func validateRelationship(model *erd.Model, rel erd.Relationship) []Issue {
	relKey := rel.FromEntity + "-" + rel.ToEntity

	if rel.Cardinality == erd.ManyToMany {
		return []Issue{{
			ID:           issueID(IssueManyToMany, relKey, ""),
			Type:         IssueManyToMany,
			Severity:     SeverityError,
			Relationship: relKey,
			Message:      fmt.Sprintf("many-to-many between '%s' and '%s' requires an explicit junction entity", rel.FromEntity, rel.ToEntity),
			AutoFixable:  true,
		}}
	}
	if rel.Cardinality == erd.OneToOne {
		return nil
	}

	referenced, referencing := rel.FromEntity, rel.ToEntity
	if rel.Cardinality == erd.ManyToOne {
		referenced, referencing = rel.ToEntity, rel.FromEntity
	}

	entity := model.FindEntity(referencing)
	if entity == nil {
		// Unknown endpoints surface as generation errors, not here.
		return nil
	}

	conventional := strings.ToLower(referenced) + "_id"

	if attr := entity.FindAttribute(conventional); attr != nil {
		if attr.IsForeignKey {
			return nil
		}
		return []Issue{{
			ID:           issueID(IssueForeignKeyNaming, referencing, conventional),
			Type:         IssueForeignKeyNaming,
			Severity:     SeverityWarning,
			Entity:       referencing,
			Column:       conventional,
			Relationship: relKey,
			Message:      fmt.Sprintf("entity '%s': column '%s' implements a relationship but is not flagged FK", referencing, conventional),
			AutoFixable:  true,
		}}
	}

	// An explicit lookup pointing at the referenced entity satisfies the
	// relationship but violates the naming convention.
	for _, attr := range entity.Attributes {
		if attr.IsLookup && strings.EqualFold(attr.TargetEntity, referenced) {
			return []Issue{{
				ID:           issueID(IssueForeignKeyNaming, referencing, attr.Name),
				Type:         IssueForeignKeyNaming,
				Severity:     SeverityWarning,
				Entity:       referencing,
				Column:       attr.Name,
				Relationship: relKey,
				Message:      fmt.Sprintf("entity '%s': foreign key '%s' should follow the '%s' naming convention", referencing, attr.Name, conventional),
			}}
		}
	}

	return []Issue{{
		ID:           issueID(IssueMissingForeignKey, referencing, referenced),
		Type:         IssueMissingForeignKey,
		Severity:     SeverityWarning,
		Entity:       referencing,
		Column:       conventional,
		Relationship: relKey,
		Message:      fmt.Sprintf("relationship '%s' declared but entity '%s' has no '%s' foreign key", rel.Name, referencing, conventional),
		AutoFixable:  true,
	}}
}
