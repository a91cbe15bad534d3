package attrtypes

import (
	"embed"
	"encoding/json"
	"sync"
)

//go:embed attributeTypes.json
var attributeTypesFS embed.FS

// DefaultPlatformType is the fail-closed mapping target for unknown diagram
// types: generation proceeds with a String column and a warning instead of
// aborting.
const DefaultPlatformType = "String"

// AttributeTypeDefinition represents one diagram-type configuration
type AttributeTypeDefinition struct {
	PlatformType string `json:"platformType"`
	SQLType      string `json:"sqlType"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	Creatable    bool   `json:"creatable"`
}

// Registry holds the diagram-type to platform-type table
type Registry struct {
	types map[string]AttributeTypeDefinition
	mu    sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry returns the singleton attribute types registry
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = &Registry{
			types: make(map[string]AttributeTypeDefinition),
		}
		defaultRegistry.loadFromEmbedded()
	})
	return defaultRegistry
}

// loadFromEmbedded loads the type table from the embedded JSON file
func (r *Registry) loadFromEmbedded() error {
	data, err := attributeTypesFS.ReadFile("attributeTypes.json")
	if err != nil {
		return err
	}

	var types map[string]AttributeTypeDefinition
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = types
	return nil
}

// Get returns an attribute type definition by diagram type name
func (r *Registry) Get(typeName string) (AttributeTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[typeName]
	return def, ok
}

// MapType returns the platform attribute type for a diagram type. Unknown
// types map to DefaultPlatformType with known=false so the caller can
// surface a warning.
func (r *Registry) MapType(typeName string) (platformType string, known bool) {
	def, ok := r.Get(typeName)
	if !ok {
		return DefaultPlatformType, false
	}
	return def.PlatformType, true
}

// GetSQLType returns the SQL storage type for a diagram type, or "" when
// the type is unknown
func (r *Registry) GetSQLType(typeName string) string {
	def, ok := r.Get(typeName)
	if !ok {
		return ""
	}
	return def.SQLType
}

// IsCreatable returns whether this pipeline can create columns of the
// given diagram type (choice/category columns cannot)
func (r *Registry) IsCreatable(typeName string) bool {
	def, ok := r.Get(typeName)
	if !ok {
		// Unknown types are created as String columns.
		return true
	}
	return def.Creatable
}

// GetAll returns all registered diagram types
func (r *Registry) GetAll() map[string]AttributeTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]AttributeTypeDefinition, len(r.types))
	for k, v := range r.types {
		result[k] = v
	}
	return result
}

// Package-level convenience functions using the default registry

// MapType returns the platform attribute type for a diagram type
func MapType(typeName string) (string, bool) {
	return GetRegistry().MapType(typeName)
}

// GetSQLType returns the SQL storage type for a diagram type
func GetSQLType(typeName string) string {
	return GetRegistry().GetSQLType(typeName)
}

// IsCreatable returns whether this pipeline can create columns of the type
func IsCreatable(typeName string) bool {
	return GetRegistry().IsCreatable(typeName)
}
