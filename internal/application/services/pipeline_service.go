package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/erdflow/backend/internal/cdm"
	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/domain/erd"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	"github.com/erdflow/backend/internal/generator"
	"github.com/erdflow/backend/internal/parser"
	"github.com/erdflow/backend/internal/validation"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

// maxAutoFixPasses bounds the fix-revalidate loop; each pass resolves at
// least one issue, so the bound only guards against a fix that does not
// converge.
const maxAutoFixPasses = 25

// PipelineService drives the diagram-to-deployment flow: parse, validate,
// auto-fix, catalog matching, schema generation and deployment tracking.
// It is the single entry point the transport layer talks to.
type PipelineService struct {
	client     ports.MetadataClient
	matcher    *cdm.Matcher
	generator  *generator.Generator
	runs       *RunStore
	deployOpts deploy.Options
	defaults   deploy.Config
}

// NewPipelineService wires the pipeline over a metadata client. A nil
// catalog selects the built-in one.
func NewPipelineService(client ports.MetadataClient, catalog *cdm.Catalog, deployOpts deploy.Options) *PipelineService {
	return &PipelineService{
		client:     client,
		matcher:    cdm.NewMatcher(catalog),
		generator:  generator.New(),
		runs:       NewRunStore(),
		deployOpts: deployOpts,
	}
}

// SetDeployDefaults registers fallback values for deploy requests that omit
// publisher or solution settings.
func (s *PipelineService) SetDeployDefaults(defaults deploy.Config) {
	s.defaults = defaults
}

// ParseDiagram parses diagram text into the entity model.
func (s *PipelineService) ParseDiagram(text string) (*erd.Model, []parser.ParseWarning, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, apperrors.NewValidationError("diagram", "diagram text is empty")
	}
	model, warnings := parser.Parse(text)
	return model, warnings, nil
}

// ValidateDiagram parses and validates diagram text.
func (s *PipelineService) ValidateDiagram(text string) ([]validation.Issue, []parser.ParseWarning, error) {
	model, warnings, err := s.ParseDiagram(text)
	if err != nil {
		return nil, nil, err
	}
	return validation.Validate(model), warnings, nil
}

// AutoFixIssue applies the fix for one issue, identified by its stable id,
// and returns the corrected diagram text.
func (s *PipelineService) AutoFixIssue(text, issueID string) (string, error) {
	issues, _, err := s.ValidateDiagram(text)
	if err != nil {
		return "", err
	}
	for _, issue := range issues {
		if issue.ID != issueID {
			continue
		}
		fixed, err := validation.AutoFix(text, issue)
		if err != nil {
			return "", err
		}
		if !validation.VerifyFixed(fixed, issue) {
			return "", apperrors.NewInternalError("auto-fix did not resolve issue "+issueID, nil)
		}
		return fixed, nil
	}
	return "", apperrors.NewNotFoundError("issue", issueID)
}

// AutoFixAll repeatedly applies fixes until no auto-fixable issues remain,
// re-validating after every pass because one fix can change the line spans
// the next fix anchors on. Returns the corrected text and every issue left
// standing, including auto-fixable ones whose fix failed to take.
func (s *PipelineService) AutoFixAll(text string) (string, []validation.Issue, error) {
	current := text
	for pass := 0; pass < maxAutoFixPasses; pass++ {
		issues, _, err := s.ValidateDiagram(current)
		if err != nil {
			return "", nil, err
		}

		applied := false
		for _, issue := range issues {
			if !issue.AutoFixable {
				continue
			}
			fixed, err := validation.AutoFix(current, issue)
			if err != nil {
				continue
			}
			if !validation.VerifyFixed(fixed, issue) {
				log.Printf("⚠️ Auto-fix for issue '%s' did not converge, leaving as-is", issue.ID)
				continue
			}
			current = fixed
			applied = true
			break
		}
		if !applied {
			// Anything still on the list at this point either is not
			// auto-fixable or had a fix that failed to converge; both
			// belong to the caller.
			return current, issues, nil
		}
	}

	issues, _, err := s.ValidateDiagram(current)
	if err != nil {
		return "", nil, err
	}
	return current, issues, nil
}

// DetectCDM matches diagram entities against the standard entity catalog.
func (s *PipelineService) DetectCDM(text string) (*cdm.DetectionResult, error) {
	model, _, err := s.ParseDiagram(text)
	if err != nil {
		return nil, err
	}
	result := s.matcher.Detect(model.Entities)
	return &result, nil
}

// GenerateSchema turns diagram text into a deployable metadata document.
// Validation errors (severity error) block generation; warnings and infos
// pass through into the result.
func (s *PipelineService) GenerateSchema(text string, opts generator.Options) (*generator.Result, error) {
	model, parseWarnings, err := s.ParseDiagram(text)
	if err != nil {
		return nil, err
	}

	for _, issue := range validation.Validate(model) {
		if issue.Severity == validation.SeverityError {
			return nil, apperrors.NewValidationError(issue.Entity,
				"diagram has blocking validation issues, resolve or auto-fix them first: "+issue.Message)
		}
	}

	var matches []cdm.Match
	if opts.UseCDM {
		detection := s.matcher.Detect(model.Entities)
		matches = detection.Matches
	}

	result, err := s.generator.Generate(model, matches, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range parseWarnings {
		result.Warnings = append(result.Warnings, w.Message)
	}
	return result, nil
}

// StartDeploy submits a deployment run and returns its tracking id. The
// run executes on a background goroutine; progress and the final result
// land in the run store.
func (s *PipelineService) StartDeploy(doc *metadata.Document, cfg deploy.Config) (string, error) {
	if cfg.PublisherPrefix == "" {
		cfg.PublisherPrefix = s.defaults.PublisherPrefix
	}
	if cfg.PublisherName == "" {
		cfg.PublisherName = s.defaults.PublisherName
	}
	if cfg.SolutionName == "" {
		cfg.SolutionName = s.defaults.SolutionName
	}
	if cfg.SolutionDisplayName == "" {
		cfg.SolutionDisplayName = s.defaults.SolutionDisplayName
	}
	if cfg.PublisherPrefix == "" {
		return "", apperrors.NewConfigurationError("publisherPrefix", "publisher prefix is required")
	}
	if doc == nil || (len(doc.Entities) == 0 && len(doc.Relationships) == 0 && len(doc.AdditionalColumns) == 0) {
		return "", apperrors.NewConfigurationError("document", "nothing to deploy")
	}

	runID := s.runs.Create()
	cfg.RunID = runID

	opts := s.deployOpts
	opts.Sink = ports.ProgressFunc(func(stage, message string, details map[string]any) {
		s.runs.AppendProgress(runID, ProgressEvent{
			Stage:   stage,
			Message: message,
			Details: details,
			At:      time.Now(),
		})
	})
	orchestrator := deploy.NewOrchestrator(s.client, opts)

	s.runs.Update(runID, func(record *RunRecord) { record.Status = RunRunning })

	go func() {
		result, err := orchestrator.Deploy(context.Background(), doc, cfg)
		finished := time.Now()
		s.runs.Update(runID, func(record *RunRecord) {
			record.FinishedAt = &finished
			if err != nil {
				record.Status = RunFailed
				record.Result = &deploy.Result{RunID: runID, State: deploy.StageFailed, Errors: []string{err.Error()}}
				return
			}
			record.Result = result
			if result.Success {
				record.Status = RunSucceeded
			} else {
				record.Status = RunFailed
			}
		})
	}()

	return runID, nil
}

// GetRun returns a snapshot of a tracked run.
func (s *PipelineService) GetRun(id string) (*RunRecord, error) {
	record := s.runs.Get(id)
	if record == nil {
		return nil, apperrors.NewNotFoundError("deployment run", id)
	}
	return record, nil
}

// RollbackRun deletes the entities a finished run created, in reverse
// order. Running runs cannot be rolled back.
func (s *PipelineService) RollbackRun(ctx context.Context, id string) (*deploy.RollbackResult, error) {
	record := s.runs.Get(id)
	if record == nil {
		return nil, apperrors.NewNotFoundError("deployment run", id)
	}
	if record.Status == RunPending || record.Status == RunRunning {
		return nil, apperrors.NewConflictError("deployment run", "run is still in progress")
	}
	if record.Result == nil || len(record.Result.CreatedEntities) == 0 {
		return &deploy.RollbackResult{}, nil
	}

	orchestrator := deploy.NewOrchestrator(s.client, s.deployOpts)
	rollback := orchestrator.Rollback(ctx, record.Result)
	s.runs.Update(id, func(r *RunRecord) {
		r.Rollback = rollback
		if len(rollback.Errors) == 0 {
			r.Status = RunRolledBack
		}
	})
	return rollback, nil
}
