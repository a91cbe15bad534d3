package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erdflow/backend/internal/application/services"
	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	"github.com/erdflow/backend/internal/interfaces/rest"
)

const customerOrderDiagram = `erDiagram
    Customer {
        guid id PK
        string name
        string email
    }
    Order {
        guid id PK
        guid customer_id FK
    }
    Customer ||--o{ Order : places
`

// fakeClient is an in-memory MetadataClient for exercising the full
// deploy round trip through the HTTP layer.
type fakeClient struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

var _ ports.MetadataClient = (*fakeClient)(nil)

func (f *fakeClient) GetEntity(ctx context.Context, logicalName string) (*ports.EntityMetadata, error) {
	return nil, nil
}

func (f *fakeClient) CreateEntity(ctx context.Context, def metadata.EntityDefinition) (*ports.CreatedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, def.LogicalName)
	return &ports.CreatedEntity{LogicalName: def.LogicalName, MetadataID: fmt.Sprintf("meta-%d", len(f.created))}, nil
}

func (f *fakeClient) CreateAttribute(ctx context.Context, entityLogicalName string, def metadata.AttributeDefinition) (*ports.CreatedAttribute, error) {
	return &ports.CreatedAttribute{LogicalName: def.LogicalName}, nil
}

func (f *fakeClient) CreateRelationship(ctx context.Context, def metadata.RelationshipDefinition) (*ports.CreatedRelationship, error) {
	return &ports.CreatedRelationship{SchemaName: def.SchemaName}, nil
}

func (f *fakeClient) DeleteEntity(ctx context.Context, logicalName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, logicalName)
	return nil
}

func (f *fakeClient) GetPublisher(ctx context.Context, uniqueName string) (*ports.Publisher, error) {
	return nil, nil
}

func (f *fakeClient) EnsurePublisher(ctx context.Context, def ports.Publisher) (*ports.Publisher, error) {
	def.ID = "pub-1"
	return &def, nil
}

func (f *fakeClient) EnsureSolution(ctx context.Context, uniqueName, displayName string, publisher *ports.Publisher) (*ports.Solution, error) {
	return &ports.Solution{ID: "sol-1", UniqueName: uniqueName, DisplayName: displayName, PublisherID: publisher.ID}, nil
}

func (f *fakeClient) AddComponentToSolution(ctx context.Context, componentType int, componentID string, solution *ports.Solution) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := &fakeClient{}
	svc := services.NewPipelineService(client, nil, deploy.Options{
		Concurrency: 2,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})

	router := gin.New()
	rest.NewPipelineHandler(svc).RegisterRoutes(router.Group("/api"))
	return router, client
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestParseDiagram(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/diagram/parse", gin.H{"diagram": customerOrderDiagram})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	model := body["model"].(map[string]any)
	assert.Len(t, model["entities"], 2)
	assert.Len(t, model["relationships"], 1)
}

func TestParseDiagram_Empty(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/diagram/parse", gin.H{"diagram": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateDiagram_ReportsIssues(t *testing.T) {
	router, _ := newTestRouter(t)

	diagram := "erDiagram\n    Widget {\n        string name\n    }\n"
	w := doJSON(t, router, "POST", "/api/diagram/validate", gin.H{"diagram": diagram})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	issues := body["issues"].([]any)
	require.NotEmpty(t, issues)
	first := issues[0].(map[string]any)
	assert.Equal(t, "missing-primary-key", first["type"])
}

func TestAutoFix_All(t *testing.T) {
	router, _ := newTestRouter(t)

	diagram := "erDiagram\n    Widget {\n        string name\n    }\n"
	w := doJSON(t, router, "POST", "/api/diagram/autofix", gin.H{"diagram": diagram})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Contains(t, body["diagram"], "id PK")
}

func TestGenerateSchema_BlockedByValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	diagram := "erDiagram\n    Widget {\n        string name\n    }\n"
	w := doJSON(t, router, "POST", "/api/schema/generate", gin.H{"diagram": diagram, "prefix": "new"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateSchema_ProducesDocument(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/schema/generate", gin.H{
		"diagram": customerOrderDiagram,
		"prefix":  "new",
		"source":  "test",
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	result := body["result"].(map[string]any)
	doc := result["document"].(map[string]any)
	assert.Len(t, doc["entities"], 2)
}

func TestDetectCDM(t *testing.T) {
	router, _ := newTestRouter(t)

	diagram := "erDiagram\n    Contact {\n        guid id PK\n        string name\n    }\n"
	w := doJSON(t, router, "POST", "/api/cdm/detect", gin.H{"diagram": diagram})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Contains(t, body, "detection")
}

func TestGetDeployment_Unknown(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/deploy/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeploy_RoundTrip(t *testing.T) {
	router, client := newTestRouter(t)

	// Generate a document through the API, then deploy it.
	genW := doJSON(t, router, "POST", "/api/schema/generate", gin.H{
		"diagram": customerOrderDiagram,
		"prefix":  "new",
		"source":  "test",
	})
	require.Equal(t, http.StatusOK, genW.Code)
	genBody := decodeBody(t, genW)
	document := genBody["result"].(map[string]any)["document"]

	deployW := doJSON(t, router, "POST", "/api/deploy", gin.H{
		"document": document,
		"config": gin.H{
			"publisherPrefix": "new",
			"solutionName":    "erdflow_test",
		},
	})
	require.Equal(t, http.StatusAccepted, deployW.Code)
	runID := decodeBody(t, deployW)["runId"].(string)
	require.NotEmpty(t, runID)

	// Poll until the background run finishes.
	deadline := time.Now().Add(5 * time.Second)
	var run map[string]any
	for {
		w := doJSON(t, router, "GET", "/api/deploy/"+runID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		run = decodeBody(t, w)["run"].(map[string]any)
		status := run["status"].(string)
		if status != "pending" && status != "running" {
			break
		}
		require.True(t, time.Now().Before(deadline), "deployment did not finish in time")
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, "succeeded", run["status"])
	client.mu.Lock()
	assert.Len(t, client.created, 2)
	client.mu.Unlock()

	// Roll the run back and confirm the entities are deleted.
	rbW := doJSON(t, router, "POST", "/api/deploy/"+runID+"/rollback", nil)
	require.Equal(t, http.StatusOK, rbW.Code)

	client.mu.Lock()
	assert.Len(t, client.deleted, 2)
	client.mu.Unlock()
}

func TestDeploy_RequiresPrefix(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/deploy", gin.H{
		"document": gin.H{"entities": []gin.H{{"LogicalName": "new_thing"}}},
		"config":   gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
