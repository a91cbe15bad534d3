// Package backends constructs the metadata client selected by configuration.
package backends

import (
	"context"

	"github.com/erdflow/backend/internal/config"
	"github.com/erdflow/backend/internal/domain/ports"
	"github.com/erdflow/backend/internal/infrastructure/dataverse"
	"github.com/erdflow/backend/internal/infrastructure/sqlmeta"
)

// New builds the metadata client for cfg.Backend. The SQL backend opens the
// database connection and creates the registry tables on first use.
func New(ctx context.Context, cfg *config.Config) (ports.MetadataClient, error) {
	if cfg.Backend == config.BackendDataverse {
		return dataverse.NewClient(dataverse.Config{
			BaseURL:    cfg.Dataverse.BaseURL,
			APIVersion: cfg.Dataverse.APIVersion,
			Token:      dataverse.StaticToken(cfg.Dataverse.Token),
		})
	}

	db, err := sqlmeta.Connect()
	if err != nil {
		return nil, err
	}
	client := sqlmeta.NewClient(db)
	if err := client.EnsureRegistry(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}
