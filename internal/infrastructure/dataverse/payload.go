package dataverse

import (
	"github.com/erdflow/backend/internal/domain/metadata"
)

// Attribute type → Web API metadata @odata.type. Unknown types fall back
// to the string attribute so a create fails loudly server-side instead of
// silently here.
var attributeODataTypes = map[string]string{
	"String":         "Microsoft.Dynamics.CRM.StringAttributeMetadata",
	"Int32":          "Microsoft.Dynamics.CRM.IntegerAttributeMetadata",
	"Decimal":        "Microsoft.Dynamics.CRM.DecimalAttributeMetadata",
	"Boolean":        "Microsoft.Dynamics.CRM.BooleanAttributeMetadata",
	"DateTimeOffset": "Microsoft.Dynamics.CRM.DateTimeAttributeMetadata",
	"Guid":           "Microsoft.Dynamics.CRM.UniqueIdentifierAttributeMetadata",
	"Lookup":         "Microsoft.Dynamics.CRM.LookupAttributeMetadata",
}

func label(text string) map[string]any {
	return map[string]any{
		"@odata.type": "Microsoft.Dynamics.CRM.Label",
		"LocalizedLabels": []map[string]any{
			{
				"@odata.type":  "Microsoft.Dynamics.CRM.LocalizedLabel",
				"Label":        text,
				"LanguageCode": 1033,
			},
		},
	}
}

func requiredLevel(required bool) map[string]any {
	level := "None"
	if required {
		level = "ApplicationRequired"
	}
	return map[string]any{
		"Value":                      level,
		"CanBeChanged":               true,
		"ManagedPropertyLogicalName": "canmodifyrequirementlevelsettings",
	}
}

// attributePayload builds the Web API representation of one attribute.
func attributePayload(def metadata.AttributeDefinition) map[string]any {
	odataType, known := attributeODataTypes[def.AttributeType]
	if !known {
		odataType = attributeODataTypes["String"]
	}

	payload := map[string]any{
		"@odata.type":   odataType,
		"SchemaName":    def.SchemaName,
		"LogicalName":   def.LogicalName,
		"DisplayName":   label(def.DisplayName),
		"RequiredLevel": requiredLevel(def.Required),
	}
	if def.Description != "" {
		payload["Description"] = label(def.Description)
	}
	if def.AttributeType == "String" {
		maxLength := def.MaxLength
		if maxLength == 0 {
			maxLength = 255
		}
		payload["MaxLength"] = maxLength
	}
	if def.IsPrimaryName {
		payload["IsPrimaryName"] = true
	}
	if def.IsUnique {
		payload["IsPrimaryId"] = false
		payload["Keys"] = []any{}
	}
	return payload
}

// entityPayload builds the Web API representation of an entity create. The
// platform requires the primary name attribute inline; the primary id is
// implied and everything else arrives in the attribute stage.
func entityPayload(def metadata.EntityDefinition) map[string]any {
	payload := map[string]any{
		"@odata.type":           "Microsoft.Dynamics.CRM.EntityMetadata",
		"SchemaName":            def.SchemaName,
		"LogicalName":           def.LogicalName,
		"DisplayName":           label(def.DisplayName),
		"DisplayCollectionName": label(def.PluralName),
		"HasActivities":         false,
		"HasNotes":              false,
		"OwnershipType":         "UserOwned",
		"IsActivity":            false,
	}
	if def.Description != "" {
		payload["Description"] = label(def.Description)
	}
	for _, attr := range def.Attributes {
		if attr.IsPrimaryName {
			primary := attributePayload(attr)
			primary["IsPrimaryName"] = true
			payload["Attributes"] = []map[string]any{primary}
			payload["PrimaryNameAttribute"] = attr.LogicalName
			break
		}
	}
	return payload
}

// relationshipPayload builds the Web API representation of a relationship.
func relationshipPayload(def metadata.RelationshipDefinition) map[string]any {
	if def.Type == metadata.TypeManyToMany {
		return map[string]any{
			"@odata.type":         "Microsoft.Dynamics.CRM.ManyToManyRelationshipMetadata",
			"SchemaName":          def.SchemaName,
			"Entity1LogicalName":  def.Entity1LogicalName,
			"Entity2LogicalName":  def.Entity2LogicalName,
			"IntersectEntityName": def.IntersectEntityName,
		}
	}
	return map[string]any{
		"@odata.type":       "Microsoft.Dynamics.CRM.OneToManyRelationshipMetadata",
		"SchemaName":        def.SchemaName,
		"ReferencedEntity":  def.ReferencedEntity,
		"ReferencingEntity": def.ReferencingEntity,
		"Lookup": map[string]any{
			"AttributeType": "Lookup",
			"SchemaName":    def.ReferencingAttribute,
			"LogicalName":   def.ReferencingAttribute,
			"DisplayName":   label(def.ReferencedEntity),
			"RequiredLevel": requiredLevel(false),
		},
	}
}
