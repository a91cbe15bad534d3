package parser

import (
	"testing"

	"github.com/erdflow/backend/internal/domain/erd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerOrderDiagram = `erDiagram
    Customer {
        string id PK
        string name
    }
    Order {
        string id PK
        string customer_id FK
    }
    Customer ||--o{ Order : places
`

func TestParse_CustomerOrder(t *testing.T) {
	model, warnings := Parse(customerOrderDiagram)
	require.NotNil(t, model)
	assert.Empty(t, warnings)

	require.Len(t, model.Entities, 2)
	require.Len(t, model.Relationships, 1)

	customer := model.Entities[0]
	assert.Equal(t, "Customer", customer.Name)
	assert.Equal(t, "Customer", customer.DisplayName)
	require.Len(t, customer.Attributes, 2)
	assert.True(t, customer.Attributes[0].IsPrimaryKey)

	order := model.Entities[1]
	assert.Equal(t, "Order", order.Name)

	var fks []erd.Attribute
	for _, a := range order.Attributes {
		if a.IsForeignKey {
			fks = append(fks, a)
		}
	}
	require.Len(t, fks, 1)
	assert.Equal(t, "customer_id", fks[0].Name)

	rel := model.Relationships[0]
	assert.Equal(t, "Customer", rel.FromEntity)
	assert.Equal(t, "Order", rel.ToEntity)
	assert.Equal(t, erd.OneToMany, rel.Cardinality)
	assert.Equal(t, "places", rel.Name)
}

func TestParse_CardinalityTokens(t *testing.T) {
	tests := []struct {
		token string
		want  erd.Cardinality
	}{
		{"||--||", erd.OneToOne},
		{"||--o{", erd.OneToMany},
		{"}o--||", erd.ManyToOne},
		{"}o--o{", erd.ManyToMany},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			model, _ := Parse("erDiagram\nA " + tt.token + " B : rel\n")
			require.Len(t, model.Relationships, 1)
			assert.Equal(t, tt.want, model.Relationships[0].Cardinality)

			// The mapping must invert exactly.
			assert.Equal(t, tt.token, CardinalityToken(tt.want))
		})
	}
}

func TestParse_AttributeGrammar(t *testing.T) {
	tests := []struct {
		name string
		line string
		want erd.Attribute
	}{
		{
			name: "plain string",
			line: "string name",
			want: erd.Attribute{Name: "name", Type: erd.TypeString, RawType: "string"},
		},
		{
			name: "integer alias",
			line: "integer count",
			want: erd.Attribute{Name: "count", Type: erd.TypeInteger, RawType: "integer"},
		},
		{
			name: "primary key is required",
			line: "guid id PK",
			want: erd.Attribute{Name: "id", Type: erd.TypeGuid, RawType: "guid", IsPrimaryKey: true, IsRequired: true},
		},
		{
			name: "foreign key with description",
			line: `string customer_id FK "owning customer"`,
			want: erd.Attribute{Name: "customer_id", Type: erd.TypeString, RawType: "string", IsForeignKey: true, Description: "owning customer"},
		},
		{
			name: "unique flag",
			line: "string email UK",
			want: erd.Attribute{Name: "email", Type: erd.TypeString, RawType: "string", IsUnique: true},
		},
		{
			name: "explicit lookup",
			line: "lookup(Customer) customer_id FK",
			want: erd.Attribute{Name: "customer_id", Type: erd.TypeGuid, RawType: "lookup(Customer)", IsForeignKey: true, IsLookup: true, TargetEntity: "Customer"},
		},
		{
			name: "lookup with foreign prefix",
			line: "lookup(msft:account) account_id FK",
			want: erd.Attribute{Name: "account_id", Type: erd.TypeGuid, RawType: "lookup(msft:account)", IsForeignKey: true, IsLookup: true, TargetEntity: "msft:account"},
		},
		{
			name: "unknown type falls back to string",
			line: "money amount",
			want: erd.Attribute{Name: "amount", Type: erd.TypeString, RawType: "money"},
		},
		{
			name: "choice type",
			line: "choice priority",
			want: erd.Attribute{Name: "priority", Type: erd.TypeChoice, RawType: "choice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, ok := parseAttribute(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, attr)
		})
	}
}

func TestParse_SkipsUnrecognizedLines(t *testing.T) {
	text := `erDiagram
    %% comment lines are ignored
    Customer {
        string id PK
        ???garbage???
    }
    this line is not valid either
`
	model, warnings := Parse(text)
	require.Len(t, model.Entities, 1)
	require.Len(t, model.Entities[0].Attributes, 1)
	assert.Len(t, warnings, 2)
}

func TestParse_DuplicateEntityDropped(t *testing.T) {
	text := `erDiagram
    Customer {
        string id PK
    }
    Customer {
        string other
    }
`
	model, warnings := Parse(text)
	require.Len(t, model.Entities, 1)
	require.Len(t, model.Entities[0].Attributes, 1)
	assert.NotEmpty(t, warnings)
}

func TestParse_Deterministic(t *testing.T) {
	a, _ := Parse(customerOrderDiagram)
	b, _ := Parse(customerOrderDiagram)
	assert.Equal(t, a, b)
}

func TestParse_ManyToManyRecordedNotSynthesized(t *testing.T) {
	text := "erDiagram\nStudent }o--o{ Course : enrolls\n"
	model, _ := Parse(text)
	require.Len(t, model.Relationships, 1)
	assert.Equal(t, erd.ManyToMany, model.Relationships[0].Cardinality)
	// No junction entity is invented by the parser.
	assert.Empty(t, model.Entities)
}

func TestSerialize_RoundTrip(t *testing.T) {
	first, _ := Parse(customerOrderDiagram)
	second, _ := Parse(Serialize(first))

	require.Len(t, second.Entities, len(first.Entities))
	for i := range first.Entities {
		a, b := first.Entities[i], second.Entities[i]
		assert.Equal(t, a.Name, b.Name)
		require.Len(t, b.Attributes, len(a.Attributes))
		for j := range a.Attributes {
			assert.Equal(t, a.Attributes[j].Name, b.Attributes[j].Name)
			assert.Equal(t, a.Attributes[j].Type, b.Attributes[j].Type)
			assert.Equal(t, a.Attributes[j].IsPrimaryKey, b.Attributes[j].IsPrimaryKey)
			assert.Equal(t, a.Attributes[j].IsForeignKey, b.Attributes[j].IsForeignKey)
			assert.Equal(t, a.Attributes[j].IsUnique, b.Attributes[j].IsUnique)
		}
	}
	assert.Equal(t, first.Relationships, second.Relationships)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Customer Id", erd.DisplayName("customer_id"))
	assert.Equal(t, "Order", erd.DisplayName("order"))
	assert.Equal(t, "Line Item", erd.DisplayName("line_item"))
}
