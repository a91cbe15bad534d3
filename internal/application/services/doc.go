// Package services provides the application layer of the diagram pipeline.
//
// PipelineService is the single entry point the transport layers (REST and
// CLI) talk to. It chains the steps of the flow:
//   - Parsing Mermaid erDiagram text into the entity model
//   - Validation with stable issue ids and severities
//   - Automatic fixing of fixable issues, one pass at a time
//   - Matching entities against the standard entity catalog
//   - Schema generation into a platform metadata document
//   - Deployment runs tracked in the in-memory RunStore
//
// Deployments execute on background goroutines; RunStore carries their
// status, progress events and final results for polling and rollback.
package services
