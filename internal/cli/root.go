// Package cli implements the erdctl command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/erdflow/backend/internal/application/services"
	"github.com/erdflow/backend/internal/deploy"
)

var rootCmd = &cobra.Command{
	Use:   "erdctl",
	Short: "ER diagram to platform schema toolkit",
	Long: `erdctl turns Mermaid erDiagram files into platform metadata.

The pipeline: parse the diagram, validate it, auto-fix what is fixable,
generate a metadata document, and deploy it to the configured backend.

Exit Codes:
  0 - Success
  1 - Command failed (validation errors, deployment failure)
  2 - CLI usage error (invalid arguments or flags)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newPipeline builds the offline portion of the pipeline: parse, validate,
// auto-fix and generate need no metadata backend.
func newPipeline() *services.PipelineService {
	return services.NewPipelineService(nil, nil, deploy.Options{})
}

// readDiagram loads diagram text from path, or stdin when path is "-".
func readDiagram(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
