package dataverse

import (
	"strings"

	"github.com/erdflow/backend/internal/domain/ports"
)

// The Web API is inconsistent about property casing across endpoints and
// gateway versions: MetadataId vs metadataid, LogicalName vs logicalname,
// nested label structures vs flat strings. Everything the client decodes
// passes through the helpers here exactly once, so the rest of the codebase
// only ever sees the canonical ports shapes.

// pick returns the first present key from the map, trying each candidate
// casing in order.
func pick(raw map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	// Last resort: case-insensitive scan for gateways that invent casings.
	for _, key := range keys {
		for k, v := range raw {
			if v != nil && strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return nil, false
}

func pickString(raw map[string]any, keys ...string) string {
	v, ok := pick(raw, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func pickBool(raw map[string]any, keys ...string) bool {
	v, ok := pick(raw, keys...)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case map[string]any:
		// Managed properties wrap the flag: {"Value": true, ...}
		inner, _ := pick(b, "Value", "value")
		flag, _ := inner.(bool)
		return flag
	}
	return false
}

// pickLabel extracts a display string that may be flat or wrapped in the
// label structure {"LocalizedLabels":[{"Label":"..."}], "UserLocalizedLabel":{...}}.
func pickLabel(raw map[string]any, keys ...string) string {
	v, ok := pick(raw, keys...)
	if !ok {
		return ""
	}
	switch label := v.(type) {
	case string:
		return label
	case map[string]any:
		if user, ok := pick(label, "UserLocalizedLabel", "userLocalizedLabel"); ok {
			if m, ok := user.(map[string]any); ok {
				if s := pickString(m, "Label", "label"); s != "" {
					return s
				}
			}
		}
		if localized, ok := pick(label, "LocalizedLabels", "localizedLabels"); ok {
			if items, ok := localized.([]any); ok && len(items) > 0 {
				if m, ok := items[0].(map[string]any); ok {
					return pickString(m, "Label", "label")
				}
			}
		}
	}
	return ""
}

// normalizeEntity maps a raw entity metadata object into the canonical
// shape.
func normalizeEntity(raw map[string]any) ports.EntityMetadata {
	return ports.EntityMetadata{
		LogicalName: pickString(raw, "LogicalName", "logicalname"),
		MetadataID:  pickString(raw, "MetadataId", "metadataid", "MetadataID"),
		DisplayName: pickLabel(raw, "DisplayName", "displayname"),
		IsCustom:    pickBool(raw, "IsCustomEntity", "iscustomentity", "IsCustom"),
	}
}

// normalizePublisher maps a raw publisher record into the canonical shape.
func normalizePublisher(raw map[string]any) ports.Publisher {
	return ports.Publisher{
		ID:           pickString(raw, "publisherid", "PublisherId", "publisherId"),
		UniqueName:   pickString(raw, "uniquename", "UniqueName"),
		FriendlyName: pickString(raw, "friendlyname", "FriendlyName"),
		Prefix:       pickString(raw, "customizationprefix", "CustomizationPrefix"),
	}
}

// normalizeSolution maps a raw solution record into the canonical shape.
func normalizeSolution(raw map[string]any) ports.Solution {
	solution := ports.Solution{
		ID:          pickString(raw, "solutionid", "SolutionId", "solutionId"),
		UniqueName:  pickString(raw, "uniquename", "UniqueName"),
		DisplayName: pickString(raw, "friendlyname", "FriendlyName"),
	}
	if ref, ok := pick(raw, "_publisherid_value", "publisherid", "PublisherId"); ok {
		if s, isString := ref.(string); isString {
			solution.PublisherID = s
		}
	}
	return solution
}
