package deploy

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

// Config identifies the deployment target namespace.
type Config struct {
	PublisherName       string `json:"publisherName"`
	PublisherPrefix     string `json:"publisherPrefix"`
	SolutionName        string `json:"solutionName"`
	SolutionDisplayName string `json:"solutionDisplayName"`
	// RunID lets the caller pre-assign the run identifier, so a tracking
	// record can exist before Deploy returns. Generated when empty.
	RunID string `json:"runId,omitempty"`
}

// Options tunes one orchestrator instance.
type Options struct {
	// Concurrency bounds the entity-creation fan-out. Attribute and
	// relationship ordering is enforced regardless.
	Concurrency int
	// MaxAttempts is the retry ceiling for transient failures.
	MaxAttempts int
	// Backoff is the base delay between retry attempts, doubled per attempt.
	Backoff time.Duration
	// Sink receives stage-boundary progress events. Optional.
	Sink ports.ProgressSink
}

// Orchestrator creates and reconciles metadata documents against the
// remote platform in dependency order: publisher, solution, entities,
// attributes, relationships. It holds no cross-run state.
type Orchestrator struct {
	client      ports.MetadataClient
	sink        ports.ProgressSink
	concurrency int
	maxAttempts int
	backoff     time.Duration

	progressWG sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over a metadata client.
func NewOrchestrator(client ports.MetadataClient, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Orchestrator{
		client:      client,
		sink:        opts.Sink,
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
}

// Deploy applies a metadata document. Partial stage failures never abort
// the run: failed items are recorded and the remaining stages proceed for
// the items that succeeded. Only configuration errors abort before any
// remote call.
func (o *Orchestrator) Deploy(ctx context.Context, doc *metadata.Document, cfg Config) (*Result, error) {
	if cfg.PublisherPrefix == "" {
		return nil, apperrors.NewConfigurationError("publisherPrefix", "publisher prefix is required")
	}
	if doc == nil || (len(doc.Entities) == 0 && len(doc.Relationships) == 0 && len(doc.AdditionalColumns) == 0) {
		return nil, apperrors.NewConfigurationError("document", "nothing to deploy")
	}
	if cfg.PublisherName == "" {
		cfg.PublisherName = cfg.PublisherPrefix + "publisher"
	}
	if cfg.SolutionName == "" {
		cfg.SolutionName = cfg.PublisherPrefix + "solution"
	}
	if cfg.SolutionDisplayName == "" {
		cfg.SolutionDisplayName = cfg.SolutionName
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	r := &run{
		result: &Result{
			RunID: cfg.RunID,
			State: StageIdle,
		},
		known: make(map[string]*ports.EntityMetadata),
	}
	defer o.progressWG.Wait()

	log.Printf("🚀 Deployment %s starting: %d entities, %d relationships", r.result.RunID, len(doc.Entities), len(doc.Relationships))

	// Stage: publisher.
	if err := o.ensurePublisher(ctx, r, cfg); err != nil {
		return o.fail(r, err), nil
	}
	r.result.State = StagePublisher
	o.emit(string(StagePublisher), "publisher ready", map[string]any{"publisher": cfg.PublisherName})
	if o.cancelled(ctx, r) {
		return r.result, nil
	}

	// Stage: solution.
	if err := o.ensureSolution(ctx, r, cfg); err != nil {
		return o.fail(r, err), nil
	}
	r.result.State = StageSolution
	o.emit(string(StageSolution), "solution ready", map[string]any{"solution": cfg.SolutionName})
	if o.cancelled(ctx, r) {
		return r.result, nil
	}

	// Stage: entities (bounded fan-out; duplicates resolved against the
	// run-scoped cache afterwards so the second occurrence never triggers a
	// second create call).
	o.createEntities(ctx, r, doc)
	r.result.State = StageEntities
	o.emit(string(StageEntities), "entities created", map[string]any{"count": len(r.result.Entities)})
	if o.cancelled(ctx, r) {
		return r.result, nil
	}

	// Stage: attributes, strictly after their entity exists.
	o.createAttributes(ctx, r, doc)
	r.result.State = StageAttributes
	o.emit(string(StageAttributes), "attributes created", map[string]any{"count": len(r.result.Attributes)})
	if o.cancelled(ctx, r) {
		return r.result, nil
	}

	// Stage: relationships, strictly after both endpoints exist.
	o.createRelationships(ctx, r, doc)
	r.result.State = StageRelationships
	o.emit(string(StageRelationships), "relationships created", map[string]any{"count": len(r.result.Relationships)})

	r.result.State = StageComplete
	r.result.Success = len(r.result.Errors) == 0
	if r.result.Success {
		log.Printf("✅ Deployment %s complete", r.result.RunID)
	} else {
		log.Printf("⚠️  Deployment %s finished with %d errors", r.result.RunID, len(r.result.Errors))
	}
	o.emit(string(StageComplete), "deployment finished", map[string]any{"success": r.result.Success})

	return r.result, nil
}

func (o *Orchestrator) ensurePublisher(ctx context.Context, r *run, cfg Config) error {
	var pub *ports.Publisher
	err := o.withRetry(ctx, "get publisher", func() error {
		var err error
		pub, err = o.client.GetPublisher(ctx, cfg.PublisherName)
		return err
	})
	if err != nil {
		return err
	}
	if pub != nil {
		log.Printf("♻️  Reusing existing publisher '%s'", cfg.PublisherName)
		r.result.Publisher = pub
		return nil
	}

	err = o.withRetry(ctx, "create publisher", func() error {
		var err error
		pub, err = o.client.EnsurePublisher(ctx, ports.Publisher{
			UniqueName:   cfg.PublisherName,
			FriendlyName: cfg.PublisherName,
			Prefix:       cfg.PublisherPrefix,
		})
		return err
	})
	if err != nil {
		return err
	}
	r.result.Publisher = pub
	return nil
}

func (o *Orchestrator) ensureSolution(ctx context.Context, r *run, cfg Config) error {
	var sol *ports.Solution
	err := o.withRetry(ctx, "ensure solution", func() error {
		var err error
		sol, err = o.client.EnsureSolution(ctx, cfg.SolutionName, cfg.SolutionDisplayName, r.result.Publisher)
		return err
	})
	if err != nil {
		return err
	}
	r.result.Solution = sol
	return nil
}

// createEntities creates independent entities concurrently up to the
// configured limit. Duplicated names in the document are processed after
// the fan-out so they hit the run cache instead of the platform.
func (o *Orchestrator) createEntities(ctx context.Context, r *run, doc *metadata.Document) {
	var mu sync.Mutex
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	firstByName := make(map[string]bool, len(doc.Entities))
	var firsts []metadata.EntityDefinition
	var duplicates []metadata.EntityDefinition
	for _, def := range doc.Entities {
		key := lowerKey(def.LogicalName)
		if firstByName[key] {
			duplicates = append(duplicates, def)
			continue
		}
		firstByName[key] = true
		firsts = append(firsts, def)
	}

	for _, def := range firsts {
		wg.Add(1)
		go func(def metadata.EntityDefinition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := o.createEntity(ctx, r, &mu, def)
			mu.Lock()
			r.result.Entities = append(r.result.Entities, outcome)
			if outcome.Status == StatusFailed {
				r.result.Errors = append(r.result.Errors, fmt.Sprintf("entity '%s': %s", def.LogicalName, outcome.Error))
			}
			mu.Unlock()
		}(def)
	}
	wg.Wait()

	for _, def := range duplicates {
		outcome := o.createEntity(ctx, r, &mu, def)
		r.result.Entities = append(r.result.Entities, outcome)
		if outcome.Status == StatusFailed {
			r.result.Errors = append(r.result.Errors, fmt.Sprintf("entity '%s': %s", def.LogicalName, outcome.Error))
		}
	}
}

// createEntity performs the duplicate check and the create call for one
// entity definition. The mutex guards the run cache and the rollback
// ledger during concurrent creation.
func (o *Orchestrator) createEntity(ctx context.Context, r *run, mu *sync.Mutex, def metadata.EntityDefinition) ItemOutcome {
	mu.Lock()
	cached, seen := r.lookup(def.LogicalName)
	mu.Unlock()
	if seen && cached != nil {
		return ItemOutcome{Name: def.LogicalName, Status: StatusAlreadyExisted, AlreadyPresent: true}
	}

	if !seen {
		var existing *ports.EntityMetadata
		err := o.withRetry(ctx, "get entity "+def.LogicalName, func() error {
			var err error
			existing, err = o.client.GetEntity(ctx, def.LogicalName)
			return err
		})
		if err == nil && existing != nil {
			log.Printf("♻️  Entity '%s' already exists, reusing", def.LogicalName)
			mu.Lock()
			r.remember(def.LogicalName, existing)
			mu.Unlock()
			return ItemOutcome{Name: def.LogicalName, Status: StatusAlreadyExisted, AlreadyPresent: true}
		}
		// A failed existence check falls through to create; the platform's
		// own conflict answer is authoritative.
	}

	var created *ports.CreatedEntity
	err := o.withRetry(ctx, "create entity "+def.LogicalName, func() error {
		var err error
		created, err = o.client.CreateEntity(ctx, def)
		return err
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			mu.Lock()
			r.remember(def.LogicalName, &ports.EntityMetadata{LogicalName: def.LogicalName})
			mu.Unlock()
			return ItemOutcome{Name: def.LogicalName, Status: StatusAlreadyExisted, AlreadyPresent: true}
		}
		log.Printf("❌ Failed to create entity '%s': %v", def.LogicalName, err)
		return ItemOutcome{Name: def.LogicalName, Status: StatusFailed, Error: err.Error()}
	}

	mu.Lock()
	r.remember(def.LogicalName, &ports.EntityMetadata{
		LogicalName: created.LogicalName,
		MetadataID:  created.MetadataID,
		IsCustom:    true,
	})
	r.result.CreatedEntities = append(r.result.CreatedEntities, created.LogicalName)
	mu.Unlock()

	if r.result.Solution != nil {
		err := o.withRetry(ctx, "register entity "+def.LogicalName, func() error {
			return o.client.AddComponentToSolution(ctx, ports.ComponentTypeEntity, created.MetadataID, r.result.Solution)
		})
		if err != nil {
			mu.Lock()
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("entity '%s' created but not registered in solution: %v", def.LogicalName, err))
			mu.Unlock()
		}
	}

	return ItemOutcome{Name: def.LogicalName, Status: StatusCreated}
}

// createAttributes creates the non-primary attributes of each successfully
// created or reused entity, plus every additional lookup column. Attribute
// creation for an entity never runs before that entity exists.
func (o *Orchestrator) createAttributes(ctx context.Context, r *run, doc *metadata.Document) {
	for _, def := range doc.Entities {
		if _, ok := r.lookup(def.LogicalName); !ok {
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("skipping attributes of '%s': entity was not created", def.LogicalName))
			continue
		}
		for _, attr := range def.Attributes {
			if attr.IsPrimaryID || attr.IsPrimaryName {
				// Created inline with the entity shell.
				continue
			}
			r.result.Attributes = append(r.result.Attributes, o.createAttribute(ctx, r, def.LogicalName, attr))
		}
	}

	for _, col := range doc.AdditionalColumns {
		if _, ok := r.lookup(col.EntityLogicalName); !ok {
			var existing *ports.EntityMetadata
			err := o.withRetry(ctx, "get entity "+col.EntityLogicalName, func() error {
				var err error
				existing, err = o.client.GetEntity(ctx, col.EntityLogicalName)
				return err
			})
			if err != nil || existing == nil {
				r.result.Attributes = append(r.result.Attributes, ItemOutcome{
					Name:   col.EntityLogicalName + "." + col.Column.LogicalName,
					Status: StatusSkipped,
					Error:  "target entity does not exist",
				})
				r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("lookup column '%s' skipped: entity '%s' does not exist", col.Column.LogicalName, col.EntityLogicalName))
				continue
			}
			r.remember(col.EntityLogicalName, existing)
		}
		r.result.Attributes = append(r.result.Attributes, o.createAttribute(ctx, r, col.EntityLogicalName, col.Column))
	}
}

func (o *Orchestrator) createAttribute(ctx context.Context, r *run, entityLogicalName string, attr metadata.AttributeDefinition) ItemOutcome {
	name := entityLogicalName + "." + attr.LogicalName
	err := o.withRetry(ctx, "create attribute "+name, func() error {
		_, err := o.client.CreateAttribute(ctx, entityLogicalName, attr)
		return err
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			return ItemOutcome{Name: name, Status: StatusAlreadyExisted, AlreadyPresent: true}
		}
		if apperrors.IsTransient(err) {
			r.result.Errors = append(r.result.Errors, fmt.Sprintf("attribute '%s': %v", name, err))
			return ItemOutcome{Name: name, Status: StatusFailed, Error: err.Error()}
		}
		// Permanent rejection: skip with warning, do not fail the stage.
		r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("attribute '%s' skipped: %v", name, err))
		return ItemOutcome{Name: name, Status: StatusSkipped, Error: err.Error()}
	}
	return ItemOutcome{Name: name, Status: StatusCreated}
}

// createRelationships creates each relationship once both endpoints are
// known to exist, either created in this run or already present remotely.
func (o *Orchestrator) createRelationships(ctx context.Context, r *run, doc *metadata.Document) {
	for _, rel := range doc.Relationships {
		endpoints := []string{rel.ReferencedEntity, rel.ReferencingEntity}
		if rel.Type == metadata.TypeManyToMany {
			endpoints = []string{rel.Entity1LogicalName, rel.Entity2LogicalName}
		}

		missing := ""
		for _, endpoint := range endpoints {
			if !o.endpointExists(ctx, r, endpoint) {
				missing = endpoint
				break
			}
		}
		if missing != "" {
			r.result.Relationships = append(r.result.Relationships, ItemOutcome{
				Name:   rel.SchemaName,
				Status: StatusSkipped,
				Error:  fmt.Sprintf("endpoint '%s' does not exist", missing),
			})
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("relationship '%s' skipped: endpoint '%s' does not exist", rel.SchemaName, missing))
			continue
		}

		err := o.withRetry(ctx, "create relationship "+rel.SchemaName, func() error {
			_, err := o.client.CreateRelationship(ctx, rel)
			return err
		})
		if err != nil {
			if apperrors.IsConflict(err) {
				r.result.Relationships = append(r.result.Relationships, ItemOutcome{Name: rel.SchemaName, Status: StatusAlreadyExisted, AlreadyPresent: true})
				continue
			}
			if apperrors.IsTransient(err) {
				r.result.Errors = append(r.result.Errors, fmt.Sprintf("relationship '%s': %v", rel.SchemaName, err))
				r.result.Relationships = append(r.result.Relationships, ItemOutcome{Name: rel.SchemaName, Status: StatusFailed, Error: err.Error()})
				continue
			}
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("relationship '%s' skipped: %v", rel.SchemaName, err))
			r.result.Relationships = append(r.result.Relationships, ItemOutcome{Name: rel.SchemaName, Status: StatusSkipped, Error: err.Error()})
			continue
		}
		r.result.Relationships = append(r.result.Relationships, ItemOutcome{Name: rel.SchemaName, Status: StatusCreated})
	}
}

func (o *Orchestrator) endpointExists(ctx context.Context, r *run, logicalName string) bool {
	if logicalName == "" {
		return false
	}
	if meta, ok := r.lookup(logicalName); ok {
		return meta != nil
	}
	var existing *ports.EntityMetadata
	err := o.withRetry(ctx, "get entity "+logicalName, func() error {
		var err error
		existing, err = o.client.GetEntity(ctx, logicalName)
		return err
	})
	if err != nil {
		return false
	}
	r.remember(logicalName, existing)
	return existing != nil
}

// Rollback deletes the entities created by a run, in reverse dependency
// order. Dependency conflicts ("referenced by other components") are
// warnings, never run-aborting errors: the remaining entities are still
// processed.
func (o *Orchestrator) Rollback(ctx context.Context, result *Result) *RollbackResult {
	rb := &RollbackResult{}
	if result == nil || len(result.CreatedEntities) == 0 {
		return rb
	}

	log.Printf("🔥 Rolling back deployment %s: %d entities", result.RunID, len(result.CreatedEntities))

	for i := len(result.CreatedEntities) - 1; i >= 0; i-- {
		logicalName := result.CreatedEntities[i]
		rb.EntitiesProcessed++

		err := o.withRetry(ctx, "delete entity "+logicalName, func() error {
			return o.client.DeleteEntity(ctx, logicalName)
		})
		switch {
		case err == nil:
			rb.EntitiesDeleted++
		case apperrors.IsReferenced(err):
			rb.EntitiesSkipped++
			rb.Warnings = append(rb.Warnings, fmt.Sprintf("entity '%s' is referenced by other components, skipped", logicalName))
		case apperrors.IsNotFound(err):
			rb.EntitiesSkipped++
			rb.Warnings = append(rb.Warnings, fmt.Sprintf("entity '%s' was already gone", logicalName))
		default:
			rb.EntitiesSkipped++
			rb.Errors = append(rb.Errors, fmt.Sprintf("entity '%s': %v", logicalName, err))
		}
	}

	log.Printf("   Rollback done: %d deleted, %d skipped", rb.EntitiesDeleted, rb.EntitiesSkipped)
	return rb
}

// fail marks the run as terminally failed. Configuration problems never
// reach here; they abort before the run object exists.
func (o *Orchestrator) fail(r *run, err error) *Result {
	log.Printf("❌ Deployment %s failed: %v", r.result.RunID, err)
	r.result.State = StageFailed
	r.result.Errors = append(r.result.Errors, err.Error())
	o.emit(string(StageFailed), err.Error(), nil)
	return r.result
}

// cancelled checks the external cancellation signal between stages. A
// cancelled run keeps its partial results.
func (o *Orchestrator) cancelled(ctx context.Context, r *run) bool {
	if ctx.Err() == nil {
		return false
	}
	log.Printf("🛑 Deployment %s cancelled after stage %s", r.result.RunID, r.result.State)
	r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("run cancelled after stage %s", r.result.State))
	r.result.State = StageFailed
	return true
}

// emit dispatches a progress event without ever blocking the critical
// path. Deploy waits for in-flight events before returning.
func (o *Orchestrator) emit(stage, message string, details map[string]any) {
	if o.sink == nil {
		return
	}
	o.progressWG.Add(1)
	go func() {
		defer o.progressWG.Done()
		o.sink.OnProgress(stage, message, details)
	}()
}
