package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erdflow/backend/internal/config"
	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	"github.com/erdflow/backend/internal/infrastructure/backends"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <document.json>",
	Short: "Deploy a generated metadata document to the configured backend",
	Long: `Deploy reads a metadata document produced by "erdctl generate" and
creates its publisher, solution, entities, attributes and relationships
on the backend selected by METADATA_BACKEND (sql or dataverse).

The run is synchronous; progress is logged per stage. Ctrl-C cancels
the run between operations.

Examples:
  # Deploy against the SQL backend with config defaults
  erdctl deploy document.json

  # Override publisher and solution
  erdctl deploy document.json --prefix acme --solution acme_core

  # Undo created entities when the run fails partway
  erdctl deploy document.json --rollback-on-failure`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

var deployFlags struct {
	prefix            string
	publisher         string
	solution          string
	solutionDisplay   string
	rollbackOnFailure bool
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVar(&deployFlags.prefix, "prefix", "", "Publisher prefix (default from config)")
	deployCmd.Flags().StringVar(&deployFlags.publisher, "publisher", "", "Publisher unique name")
	deployCmd.Flags().StringVar(&deployFlags.solution, "solution", "", "Solution unique name (default from config)")
	deployCmd.Flags().StringVar(&deployFlags.solutionDisplay, "solution-display", "", "Solution display name")
	deployCmd.Flags().BoolVar(&deployFlags.rollbackOnFailure, "rollback-on-failure", false, "Delete entities created by this run when it fails")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var doc metadata.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	deployCfg := deploy.Config{
		PublisherPrefix:     cfg.Deploy.PublisherPrefix,
		PublisherName:       cfg.Deploy.PublisherName,
		SolutionName:        cfg.Deploy.SolutionName,
		SolutionDisplayName: cfg.Deploy.SolutionFriendly,
	}
	if deployFlags.prefix != "" {
		deployCfg.PublisherPrefix = deployFlags.prefix
	}
	if deployFlags.publisher != "" {
		deployCfg.PublisherName = deployFlags.publisher
	}
	if deployFlags.solution != "" {
		deployCfg.SolutionName = deployFlags.solution
	}
	if deployFlags.solutionDisplay != "" {
		deployCfg.SolutionDisplayName = deployFlags.solutionDisplay
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := backends.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect metadata backend (%s): %w", cfg.Backend, err)
	}

	orchestrator := deploy.NewOrchestrator(client, deploy.Options{
		Concurrency: cfg.Deploy.Concurrency,
		MaxAttempts: cfg.Deploy.MaxAttempts,
		Backoff:     cfg.Deploy.Backoff,
		Sink: ports.ProgressFunc(func(stage, message string, details map[string]any) {
			log.Printf("📦 [%s] %s", stage, message)
		}),
	})

	result, err := orchestrator.Deploy(ctx, &doc, deployCfg)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Success {
		return nil
	}

	if deployFlags.rollbackOnFailure && len(result.CreatedEntities) > 0 {
		log.Printf("♻️  Rolling back %d created entities", len(result.CreatedEntities))
		rollback := orchestrator.Rollback(ctx, result)
		if err := printJSON(rollback); err != nil {
			return err
		}
	}
	return fmt.Errorf("deployment failed in state %s", result.State)
}
