package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	"github.com/erdflow/backend/internal/generator"
	"github.com/erdflow/backend/internal/validation"
	apperrors "github.com/erdflow/backend/pkg/errors"
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

// stubClient is a minimal in-memory platform for pipeline tests.
type stubClient struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (c *stubClient) GetEntity(ctx context.Context, logicalName string) (*ports.EntityMetadata, error) {
	return nil, nil
}

func (c *stubClient) CreateEntity(ctx context.Context, def metadata.EntityDefinition) (*ports.CreatedEntity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, def.LogicalName)
	return &ports.CreatedEntity{LogicalName: def.LogicalName, MetadataID: "meta-" + def.LogicalName}, nil
}

func (c *stubClient) CreateAttribute(ctx context.Context, entityLogicalName string, def metadata.AttributeDefinition) (*ports.CreatedAttribute, error) {
	return &ports.CreatedAttribute{LogicalName: def.LogicalName}, nil
}

func (c *stubClient) CreateRelationship(ctx context.Context, def metadata.RelationshipDefinition) (*ports.CreatedRelationship, error) {
	return &ports.CreatedRelationship{SchemaName: def.SchemaName}, nil
}

func (c *stubClient) DeleteEntity(ctx context.Context, logicalName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, logicalName)
	return nil
}

func (c *stubClient) GetPublisher(ctx context.Context, uniqueName string) (*ports.Publisher, error) {
	return nil, nil
}

func (c *stubClient) EnsurePublisher(ctx context.Context, def ports.Publisher) (*ports.Publisher, error) {
	created := def
	created.ID = "pub-1"
	return &created, nil
}

func (c *stubClient) EnsureSolution(ctx context.Context, uniqueName, displayName string, publisher *ports.Publisher) (*ports.Solution, error) {
	return &ports.Solution{ID: "sol-1", UniqueName: uniqueName, DisplayName: displayName, PublisherID: publisher.ID}, nil
}

func (c *stubClient) AddComponentToSolution(ctx context.Context, componentType int, componentID string, solution *ports.Solution) error {
	return nil
}

func newTestPipeline() (*PipelineService, *stubClient) {
	client := &stubClient{}
	svc := NewPipelineService(client, nil, deploy.Options{
		Concurrency: 2,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})
	return svc, client
}

// waitForRun polls until the run leaves the running states.
func waitForRun(t *testing.T, svc *PipelineService, runID string) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, err := svc.GetRun(runID)
		require.NoError(t, err)
		if record.Status != RunPending && record.Status != RunRunning {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", runID)
	return nil
}

func TestParseDiagram_EmptyRejected(t *testing.T) {
	svc, _ := newTestPipeline()
	_, _, err := svc.ParseDiagram("   \n")
	assert.True(t, apperrors.IsValidation(err))
}

func TestParseDiagram_ReturnsModel(t *testing.T) {
	svc, _ := newTestPipeline()
	model, warnings, err := svc.ParseDiagram(customerOrderDiagram)
	require.NoError(t, err)
	assert.Len(t, model.Entities, 2)
	assert.Len(t, model.Relationships, 1)
	assert.Empty(t, warnings)
}

func TestValidateDiagram_ReportsIssues(t *testing.T) {
	svc, _ := newTestPipeline()
	issues, _, err := svc.ValidateDiagram(`erDiagram
    Widget {
        string label
    }
`)
	require.NoError(t, err)
	found := false
	for _, issue := range issues {
		if issue.Type == validation.IssueMissingPrimaryKey {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAutoFixIssue_UnknownIDIsNotFound(t *testing.T) {
	svc, _ := newTestPipeline()
	_, err := svc.AutoFixIssue(customerOrderDiagram, "missing-primary-key:nosuch:")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAutoFixIssue_FixesByID(t *testing.T) {
	svc, _ := newTestPipeline()
	broken := `erDiagram
    Widget {
        string label
    }
`
	issues, _, err := svc.ValidateDiagram(broken)
	require.NoError(t, err)
	var target validation.Issue
	for _, issue := range issues {
		if issue.Type == validation.IssueMissingPrimaryKey {
			target = issue
		}
	}
	require.NotEmpty(t, target.ID)

	fixed, err := svc.AutoFixIssue(broken, target.ID)
	require.NoError(t, err)
	assert.Contains(t, fixed, "guid id PK")
}

func TestAutoFixAll_Converges(t *testing.T) {
	svc, _ := newTestPipeline()
	broken := `erDiagram
    Student {
        string label
    }
    Course {
        guid id PK
    }
    Student }o--o{ Course : enrolls
`
	fixed, remaining, err := svc.AutoFixAll(broken)
	require.NoError(t, err)

	issues, _, err := svc.ValidateDiagram(fixed)
	require.NoError(t, err)
	for _, issue := range issues {
		assert.False(t, issue.AutoFixable, "issue %s should have been fixed", issue.ID)
	}
	for _, issue := range remaining {
		assert.False(t, issue.AutoFixable)
	}
	assert.Contains(t, fixed, "Student_Course")
}

func TestAutoFixAll_MixedCaseDuplicateColumns(t *testing.T) {
	svc, _ := newTestPipeline()
	broken := `erDiagram
    Customer {
        guid id PK
        string Email
        string email
    }
`
	fixed, remaining, err := svc.AutoFixAll(broken)
	require.NoError(t, err)
	assert.NotEqual(t, broken, fixed)

	for _, issue := range remaining {
		assert.NotEqual(t, validation.IssueDuplicateColumns, issue.Type)
	}
	// The first declaration survives with its original casing.
	assert.Contains(t, fixed, "string Email")
	assert.NotContains(t, fixed, "string email")
}

func TestAutoFixAll_ReportsNonConvergingFixableIssues(t *testing.T) {
	svc, _ := newTestPipeline()
	// Unterminated block: the validator still sees the entity, but the
	// textual fixer cannot locate the block to patch it.
	broken := `erDiagram
    Customer {
        string label`
	fixed, remaining, err := svc.AutoFixAll(broken)
	require.NoError(t, err)
	assert.Equal(t, broken, fixed)

	var unfixed *validation.Issue
	for i := range remaining {
		if remaining[i].Type == validation.IssueMissingPrimaryKey {
			unfixed = &remaining[i]
		}
	}
	require.NotNil(t, unfixed, "failed fix must stay on the remaining list")
	assert.True(t, unfixed.AutoFixable)
}

func TestDetectCDM_MatchesCatalog(t *testing.T) {
	svc, _ := newTestPipeline()
	result, err := svc.DetectCDM(`erDiagram
    Contact {
        guid id PK
        string name
    }
    Widget {
        guid id PK
    }
`)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "contact", result.Matches[0].Entry.LogicalName)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "Widget", result.Unmatched[0].Name)
}

func TestGenerateSchema_BlockedByValidationErrors(t *testing.T) {
	svc, _ := newTestPipeline()
	_, err := svc.GenerateSchema(`erDiagram
    Widget {
        string label
    }
`, generator.Options{Prefix: "new"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestGenerateSchema_ProducesDocument(t *testing.T) {
	svc, _ := newTestPipeline()
	result, err := svc.GenerateSchema(customerOrderDiagram, generator.Options{Prefix: "new"})
	require.NoError(t, err)
	require.NotNil(t, result.Document)
	assert.Len(t, result.Document.Entities, 2)
	assert.Len(t, result.Document.Relationships, 1)
}

func TestStartDeploy_RequiresPrefix(t *testing.T) {
	svc, _ := newTestPipeline()
	_, err := svc.StartDeploy(&metadata.Document{Entities: []metadata.EntityDefinition{{LogicalName: "new_x"}}}, deploy.Config{})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestStartDeploy_RunsToCompletion(t *testing.T) {
	svc, client := newTestPipeline()
	result, err := svc.GenerateSchema(customerOrderDiagram, generator.Options{Prefix: "new"})
	require.NoError(t, err)

	runID, err := svc.StartDeploy(&result.Document, deploy.Config{PublisherPrefix: "new"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	record := waitForRun(t, svc, runID)
	assert.Equal(t, RunSucceeded, record.Status)
	require.NotNil(t, record.Result)
	assert.Equal(t, runID, record.Result.RunID)
	assert.True(t, record.Result.Success)
	assert.NotNil(t, record.FinishedAt)
	assert.NotEmpty(t, record.Progress)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.created, 2)
}

func TestGetRun_UnknownIsNotFound(t *testing.T) {
	svc, _ := newTestPipeline()
	_, err := svc.GetRun("nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRollbackRun_DeletesCreatedEntities(t *testing.T) {
	svc, client := newTestPipeline()
	result, err := svc.GenerateSchema(customerOrderDiagram, generator.Options{Prefix: "new"})
	require.NoError(t, err)

	runID, err := svc.StartDeploy(&result.Document, deploy.Config{PublisherPrefix: "new"})
	require.NoError(t, err)
	waitForRun(t, svc, runID)

	rollback, err := svc.RollbackRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 2, rollback.EntitiesProcessed)
	assert.Equal(t, 2, rollback.EntitiesDeleted)

	record, err := svc.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, RunRolledBack, record.Status)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.deleted, 2)
}

var _ ports.MetadataClient = (*stubClient)(nil)
