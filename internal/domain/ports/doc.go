// Package ports defines the interfaces the deployment orchestrator depends
// on. Infrastructure adapters (the Web API client, the SQL backend)
// implement them; tests substitute in-memory fakes.
package ports
