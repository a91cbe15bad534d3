package dataverse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	apperrors "github.com/erdflow/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		Token:   StaticToken("test-token"),
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{Token: StaticToken("x")})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://org.example.com"})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestGetEntity_NormalizesPascalCase(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Path, "EntityDefinitions(LogicalName='new_customer')")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"LogicalName":    "new_customer",
			"MetadataId":     "meta-123",
			"IsCustomEntity": map[string]any{"Value": true},
			"DisplayName": map[string]any{
				"UserLocalizedLabel": map[string]any{"Label": "Customer"},
			},
		})
	})

	entity, err := client.GetEntity(context.Background(), "new_customer")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "new_customer", entity.LogicalName)
	assert.Equal(t, "meta-123", entity.MetadataID)
	assert.Equal(t, "Customer", entity.DisplayName)
	assert.True(t, entity.IsCustom)
}

func TestGetEntity_NormalizesLowercase(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"logicalname": "new_customer",
			"metadataid":  "meta-456",
			"displayname": "Customer",
		})
	})

	entity, err := client.GetEntity(context.Background(), "new_customer")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "meta-456", entity.MetadataID)
	assert.Equal(t, "Customer", entity.DisplayName)
}

func TestGetEntity_NotFoundReturnsNil(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	entity, err := client.GetEntity(context.Background(), "new_ghost")
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestCreateEntity_ConflictClassified(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "0x80047013",
				"message": "An entity with the specified name already exists",
			},
		})
	})

	_, err := client.CreateEntity(context.Background(), metadata.EntityDefinition{LogicalName: "new_customer"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestCreateEntity_ServerFaultIsTransient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.CreateEntity(context.Background(), metadata.EntityDefinition{LogicalName: "new_customer"})
	assert.True(t, apperrors.IsTransient(err))
}

func TestCreateEntity_BadRequestIsPermanent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid schema name"},
		})
	})

	_, err := client.CreateEntity(context.Background(), metadata.EntityDefinition{LogicalName: "bad name"})
	require.Error(t, err)
	assert.False(t, apperrors.IsTransient(err))
	assert.False(t, apperrors.IsConflict(err))
}

func TestCreateAttribute_PostsToEntityCollection(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	})

	created, err := client.CreateAttribute(context.Background(), "new_customer", metadata.AttributeDefinition{
		LogicalName:   "new_email",
		SchemaName:    "new_Email",
		DisplayName:   "Email",
		AttributeType: "String",
	})
	require.NoError(t, err)
	assert.Equal(t, "new_email", created.LogicalName)
	assert.Contains(t, gotPath, "EntityDefinitions(LogicalName='new_customer')/Attributes")
	assert.Equal(t, "Microsoft.Dynamics.CRM.StringAttributeMetadata", gotPayload["@odata.type"])
	assert.Equal(t, float64(255), gotPayload["MaxLength"])
}

func TestCreateRelationship_OneToManyPayload(t *testing.T) {
	var gotPayload map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	})

	created, err := client.CreateRelationship(context.Background(), metadata.RelationshipDefinition{
		Type:                 metadata.TypeOneToMany,
		SchemaName:           "new_customer_order",
		ReferencedEntity:     "new_customer",
		ReferencingEntity:    "new_order",
		ReferencingAttribute: "new_customer_id",
	})
	require.NoError(t, err)
	assert.Equal(t, "new_customer_order", created.SchemaName)
	assert.Equal(t, "Microsoft.Dynamics.CRM.OneToManyRelationshipMetadata", gotPayload["@odata.type"])
	lookup, ok := gotPayload["Lookup"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new_customer_id", lookup["LogicalName"])
}

func TestDeleteEntity_DependencyIsReferenced(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "The entity cannot be deleted because it is referenced by dependencies",
			},
		})
	})

	err := client.DeleteEntity(context.Background(), "new_customer")
	assert.True(t, apperrors.IsReferenced(err))
}

func TestDeleteEntity_MissingIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.DeleteEntity(context.Background(), "new_ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEnsurePublisher_ReusesExisting(t *testing.T) {
	var posts int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{
				"publisherid":         "pub-1",
				"uniquename":          "erdflowpublisher",
				"friendlyname":        "ERD Flow Publisher",
				"customizationprefix": "new",
			}},
		})
	})

	publisher, err := client.EnsurePublisher(context.Background(), ports.Publisher{
		UniqueName: "erdflowpublisher",
		Prefix:     "new",
	})
	require.NoError(t, err)
	assert.Equal(t, "pub-1", publisher.ID)
	assert.Equal(t, "new", publisher.Prefix)
	assert.Zero(t, posts)
}

func TestEnsureSolution_CreatesWhenAbsent(t *testing.T) {
	var posted map[string]any
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&posted)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		calls++
		if calls == 1 {
			// Not found on the first lookup.
			_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{
				"solutionid":         "sol-1",
				"uniquename":         "erdflow",
				"friendlyname":       "ERD Flow",
				"_publisherid_value": "pub-1",
			}},
		})
	})

	solution, err := client.EnsureSolution(context.Background(), "erdflow", "ERD Flow", &ports.Publisher{ID: "pub-1"})
	require.NoError(t, err)
	assert.Equal(t, "sol-1", solution.ID)
	assert.Equal(t, "pub-1", solution.PublisherID)
	assert.Equal(t, "/publishers(pub-1)", posted["publisherid@odata.bind"])
}

func TestAddComponentToSolution(t *testing.T) {
	var gotPayload map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "AddSolutionComponent")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	})

	solution := &ports.Solution{ID: "8f7c1a9e-0000-0000-0000-000000000001", UniqueName: "erdflow"}
	err := client.AddComponentToSolution(context.Background(), ports.ComponentTypeEntity, "meta-123", solution)
	require.NoError(t, err)
	assert.Equal(t, float64(1), gotPayload["ComponentType"])
	assert.Equal(t, "meta-123", gotPayload["ComponentId"])
	// The action addresses the solution by unique name, never by its guid.
	assert.Equal(t, "erdflow", gotPayload["SolutionUniqueName"])
}

func TestAddComponentToSolution_RequiresUniqueName(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	err := client.AddComponentToSolution(context.Background(), ports.ComponentTypeEntity, "meta-123",
		&ports.Solution{ID: "8f7c1a9e-0000-0000-0000-000000000001"})
	require.Error(t, err)
}
