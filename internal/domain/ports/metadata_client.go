package ports

import (
	"context"

	"github.com/erdflow/backend/internal/domain/metadata"
)

// EntityMetadata is the canonical shape of an entity as reported by the
// remote platform. Client implementations normalize whatever casing the
// platform returns into this shape at the boundary.
type EntityMetadata struct {
	LogicalName string `json:"logicalName"`
	MetadataID  string `json:"metadataId"`
	DisplayName string `json:"displayName"`
	IsCustom    bool   `json:"isCustom"`
}

// Publisher is a namespace owner supplying the prefix for logical names.
type Publisher struct {
	ID           string `json:"id"`
	UniqueName   string `json:"uniqueName"`
	FriendlyName string `json:"friendlyName"`
	Prefix       string `json:"prefix"`
}

// Solution is the deployable container grouping created components.
type Solution struct {
	ID          string `json:"id"`
	UniqueName  string `json:"uniqueName"`
	DisplayName string `json:"displayName"`
	PublisherID string `json:"publisherId"`
}

// CreatedEntity is the platform's acknowledgement of an entity create.
type CreatedEntity struct {
	LogicalName string `json:"logicalName"`
	MetadataID  string `json:"metadataId"`
}

// CreatedAttribute is the platform's acknowledgement of an attribute create.
type CreatedAttribute struct {
	LogicalName string `json:"logicalName"`
}

// CreatedRelationship is the platform's acknowledgement of a relationship
// create.
type CreatedRelationship struct {
	SchemaName string `json:"schemaName"`
}

// Solution component types registered via AddComponentToSolution.
const (
	ComponentTypeEntity       = 1
	ComponentTypeAttribute    = 2
	ComponentTypeRelationship = 10
)

// MetadataClient is the orchestrator's only view of the remote platform.
// Implementations classify failures with pkg/errors (TransientError for
// retryable conditions, PermanentError otherwise); the orchestrator never
// inspects transport details. Every call is idempotent from the caller's
// perspective: the orchestrator performs its own duplicate checks before
// creating anything.
type MetadataClient interface {
	// GetEntity returns entity metadata by logical name, or nil when the
	// entity does not exist.
	GetEntity(ctx context.Context, logicalName string) (*EntityMetadata, error)

	// CreateEntity creates an entity with its inline attributes.
	CreateEntity(ctx context.Context, def metadata.EntityDefinition) (*CreatedEntity, error)

	// CreateAttribute adds one attribute to an existing entity.
	CreateAttribute(ctx context.Context, entityLogicalName string, def metadata.AttributeDefinition) (*CreatedAttribute, error)

	// CreateRelationship creates a relationship between two existing
	// entities.
	CreateRelationship(ctx context.Context, def metadata.RelationshipDefinition) (*CreatedRelationship, error)

	// DeleteEntity removes an entity. A dependency conflict surfaces as a
	// PermanentError with Referenced=true, a missing entity as a
	// NotFoundError.
	DeleteEntity(ctx context.Context, logicalName string) error

	// GetPublisher returns a publisher by unique name, or nil when absent.
	GetPublisher(ctx context.Context, uniqueName string) (*Publisher, error)

	// EnsurePublisher returns the existing publisher or creates it.
	EnsurePublisher(ctx context.Context, def Publisher) (*Publisher, error)

	// EnsureSolution returns the existing solution or creates it under the
	// given publisher.
	EnsureSolution(ctx context.Context, uniqueName, displayName string, publisher *Publisher) (*Solution, error)

	// AddComponentToSolution registers a created component with a solution.
	// The full solution record is passed because backends address solutions
	// differently: the Web API wants the unique name, SQL wants the row id.
	AddComponentToSolution(ctx context.Context, componentType int, componentID string, solution *Solution) error
}

// ProgressSink receives stage-boundary notifications from the orchestrator.
// Implementations must be fast or internally buffered; the orchestrator
// never blocks on them.
type ProgressSink interface {
	OnProgress(stage string, message string, details map[string]any)
}

// ProgressFunc adapts a plain function to the ProgressSink interface.
type ProgressFunc func(stage string, message string, details map[string]any)

// OnProgress implements ProgressSink.
func (f ProgressFunc) OnProgress(stage string, message string, details map[string]any) {
	f(stage, message, details)
}
