package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

const defaultAPIVersion = "v9.2"

// TokenProvider supplies a bearer token for each request. Acquisition and
// refresh live outside this package; the client only attaches what it is
// given.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken adapts a fixed token string to a TokenProvider.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// Config holds the connection settings for one environment.
type Config struct {
	// BaseURL is the environment root, e.g. https://org.crm.dynamics.com
	BaseURL    string
	APIVersion string
	Token      TokenProvider
	HTTPClient *http.Client
}

// Client talks to the platform's Web API and implements
// ports.MetadataClient. All response decoding funnels through the
// normalize layer so casing quirks never leak past this package.
type Client struct {
	baseURL    string
	apiVersion string
	token      TokenProvider
	http       *http.Client
}

// NewClient validates the config and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.NewConfigurationError("baseURL", "base URL is required")
	}
	if cfg.Token == nil {
		return nil, apperrors.NewConfigurationError("token", "token provider is required")
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: version,
		token:      cfg.Token,
		http:       httpClient,
	}, nil
}

// GetEntity implements ports.MetadataClient.
func (c *Client) GetEntity(ctx context.Context, logicalName string) (*ports.EntityMetadata, error) {
	path := fmt.Sprintf("EntityDefinitions(LogicalName='%s')", url.PathEscape(logicalName))
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, classifyStatus("get entity "+logicalName, status, body)
	}

	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode entity response: %w", err)
	}
	entity := normalizeEntity(raw)
	return &entity, nil
}

// CreateEntity implements ports.MetadataClient.
func (c *Client) CreateEntity(ctx context.Context, def metadata.EntityDefinition) (*ports.CreatedEntity, error) {
	log.Printf("🚀 Creating entity via Web API: %s", def.LogicalName)

	body, status, err := c.do(ctx, http.MethodPost, "EntityDefinitions", entityPayload(def))
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent && status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus("create entity "+def.LogicalName, status, body)
	}

	created := &ports.CreatedEntity{LogicalName: def.LogicalName}
	if len(body) > 0 {
		raw := map[string]any{}
		if err := json.Unmarshal(body, &raw); err == nil {
			created.MetadataID = normalizeEntity(raw).MetadataID
		}
	}
	if created.MetadataID == "" {
		// The platform acknowledges creates with 204 and an OData-EntityId
		// header; re-read to obtain the metadata id for solution membership.
		existing, getErr := c.GetEntity(ctx, def.LogicalName)
		if getErr == nil && existing != nil {
			created.MetadataID = existing.MetadataID
		}
	}
	return created, nil
}

// CreateAttribute implements ports.MetadataClient.
func (c *Client) CreateAttribute(ctx context.Context, entityLogicalName string, def metadata.AttributeDefinition) (*ports.CreatedAttribute, error) {
	path := fmt.Sprintf("EntityDefinitions(LogicalName='%s')/Attributes", url.PathEscape(entityLogicalName))
	body, status, err := c.do(ctx, http.MethodPost, path, attributePayload(def))
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent && status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus(fmt.Sprintf("create attribute %s.%s", entityLogicalName, def.LogicalName), status, body)
	}
	return &ports.CreatedAttribute{LogicalName: def.LogicalName}, nil
}

// CreateRelationship implements ports.MetadataClient.
func (c *Client) CreateRelationship(ctx context.Context, def metadata.RelationshipDefinition) (*ports.CreatedRelationship, error) {
	body, status, err := c.do(ctx, http.MethodPost, "RelationshipDefinitions", relationshipPayload(def))
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent && status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus("create relationship "+def.SchemaName, status, body)
	}
	return &ports.CreatedRelationship{SchemaName: def.SchemaName}, nil
}

// DeleteEntity implements ports.MetadataClient.
func (c *Client) DeleteEntity(ctx context.Context, logicalName string) error {
	log.Printf("🔥 Deleting entity via Web API: %s", logicalName)

	path := fmt.Sprintf("EntityDefinitions(LogicalName='%s')", url.PathEscape(logicalName))
	body, status, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNoContent || status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return apperrors.NewNotFoundError("entity", logicalName)
	case isDependencyFailure(body):
		return apperrors.NewReferencedError("delete entity "+logicalName,
			fmt.Sprintf("entity '%s' is referenced by other components", logicalName))
	default:
		return classifyStatus("delete entity "+logicalName, status, body)
	}
}

// GetPublisher implements ports.MetadataClient.
func (c *Client) GetPublisher(ctx context.Context, uniqueName string) (*ports.Publisher, error) {
	path := "publishers?$filter=" + url.QueryEscape(fmt.Sprintf("uniquename eq '%s'", uniqueName))
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus("get publisher "+uniqueName, status, body)
	}

	raw := firstListItem(body)
	if raw == nil {
		return nil, nil
	}
	publisher := normalizePublisher(raw)
	return &publisher, nil
}

// EnsurePublisher implements ports.MetadataClient.
func (c *Client) EnsurePublisher(ctx context.Context, def ports.Publisher) (*ports.Publisher, error) {
	existing, err := c.GetPublisher(ctx, def.UniqueName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("♻️  Reusing publisher: %s (prefix %s)", existing.UniqueName, existing.Prefix)
		return existing, nil
	}

	payload := map[string]any{
		"uniquename":                     def.UniqueName,
		"friendlyname":                   def.FriendlyName,
		"customizationprefix":            def.Prefix,
		"customizationoptionvalueprefix": 10000,
	}
	body, status, err := c.do(ctx, http.MethodPost, "publishers", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent && status != http.StatusCreated {
		return nil, classifyStatus("create publisher "+def.UniqueName, status, body)
	}

	created, err := c.GetPublisher(ctx, def.UniqueName)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, apperrors.NewPermanentError("create publisher "+def.UniqueName, "publisher not visible after create")
	}
	return created, nil
}

// EnsureSolution implements ports.MetadataClient.
func (c *Client) EnsureSolution(ctx context.Context, uniqueName, displayName string, publisher *ports.Publisher) (*ports.Solution, error) {
	path := "solutions?$filter=" + url.QueryEscape(fmt.Sprintf("uniquename eq '%s'", uniqueName))
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus("get solution "+uniqueName, status, body)
	}
	if raw := firstListItem(body); raw != nil {
		solution := normalizeSolution(raw)
		log.Printf("♻️  Reusing solution: %s", solution.UniqueName)
		return &solution, nil
	}

	payload := map[string]any{
		"uniquename":             uniqueName,
		"friendlyname":           displayName,
		"version":                "1.0.0.0",
		"publisherid@odata.bind": fmt.Sprintf("/publishers(%s)", publisher.ID),
	}
	body, status, err = c.do(ctx, http.MethodPost, "solutions", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent && status != http.StatusCreated {
		return nil, classifyStatus("create solution "+uniqueName, status, body)
	}

	body, status, err = c.do(ctx, http.MethodGet,
		"solutions?$filter="+url.QueryEscape(fmt.Sprintf("uniquename eq '%s'", uniqueName)), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus("get solution "+uniqueName, status, body)
	}
	raw := firstListItem(body)
	if raw == nil {
		return nil, apperrors.NewPermanentError("create solution "+uniqueName, "solution not visible after create")
	}
	solution := normalizeSolution(raw)
	return &solution, nil
}

// AddComponentToSolution implements ports.MetadataClient. The
// AddSolutionComponent action addresses the solution by unique name, not
// by its id.
func (c *Client) AddComponentToSolution(ctx context.Context, componentType int, componentID string, solution *ports.Solution) error {
	if solution == nil || solution.UniqueName == "" {
		return apperrors.NewValidationError("solution", "solution unique name is required to register a component")
	}
	payload := map[string]any{
		"ComponentId":               componentID,
		"ComponentType":             componentType,
		"SolutionUniqueName":        solution.UniqueName,
		"AddRequiredComponents":     false,
		"DoNotIncludeSubcomponents": false,
	}
	body, status, err := c.do(ctx, http.MethodPost, "AddSolutionComponent", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return classifyStatus("add solution component "+componentID, status, body)
	}
	return nil
}

// do executes one Web API request and returns the raw body and status.
// Transport-level failures (DNS, reset, timeout) classify as transient so
// the orchestrator's retry loop can take over.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	endpoint := fmt.Sprintf("%s/api/data/%s/%s", c.baseURL, c.apiVersion, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, apperrors.NewTransientError(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apperrors.NewTransientError(method+" "+path, err)
	}
	return body, resp.StatusCode, nil
}

// firstListItem decodes an OData collection response and returns its first
// element, or nil when the collection is empty.
func firstListItem(body []byte) map[string]any {
	var list struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.Unmarshal(body, &list); err != nil || len(list.Value) == 0 {
		// Some gateways capitalize the collection key.
		var alt struct {
			Value []map[string]any `json:"Value"`
		}
		if err := json.Unmarshal(body, &alt); err != nil || len(alt.Value) == 0 {
			return nil
		}
		return alt.Value[0]
	}
	return list.Value[0]
}
