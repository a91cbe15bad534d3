package attrtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapType_FixedTable(t *testing.T) {
	tests := []struct {
		diagramType string
		want        string
	}{
		{"string", "String"},
		{"int", "Int32"},
		{"integer", "Int32"},
		{"decimal", "Decimal"},
		{"boolean", "Boolean"},
		{"datetime", "DateTimeOffset"},
		{"guid", "Guid"},
	}

	for _, tt := range tests {
		t.Run(tt.diagramType, func(t *testing.T) {
			got, known := MapType(tt.diagramType)
			assert.True(t, known)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapType_UnknownFailsClosed(t *testing.T) {
	got, known := MapType("money")
	assert.False(t, known)
	assert.Equal(t, DefaultPlatformType, got)
}

func TestIsCreatable(t *testing.T) {
	assert.True(t, IsCreatable("string"))
	assert.False(t, IsCreatable("choice"))
	assert.False(t, IsCreatable("category"))
	// Unknown types degrade to String columns, which are creatable.
	assert.True(t, IsCreatable("money"))
}

func TestGetSQLType(t *testing.T) {
	assert.Equal(t, "CHAR(36)", GetSQLType("guid"))
	assert.Equal(t, "", GetSQLType("money"))
}
