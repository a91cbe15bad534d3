package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erdflow/backend/internal/validation"
)

var parseCmd = &cobra.Command{
	Use:   "parse <diagram>",
	Short: "Parse a Mermaid erDiagram and print the entity model",
	Long: `Parse reads a Mermaid erDiagram file and prints the parsed entity
model as JSON, including any parse warnings for skipped lines.

Use "-" to read the diagram from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var validateCmd = &cobra.Command{
	Use:   "validate <diagram>",
	Short: "Validate a diagram and print the issues found",
	Long: `Validate parses the diagram and runs the validation rules, printing
each issue with its stable id, severity and auto-fixability.

The command fails when any error-severity issue remains, so it can gate
CI or a deployment script.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var autofixCmd = &cobra.Command{
	Use:   "autofix <diagram>",
	Short: "Apply automatic fixes to a diagram",
	Long: `Autofix applies the automatic fix for a single issue (--issue) or
keeps fixing until no fixable issue remains. The corrected diagram text
goes to stdout, or back to the file with --write.`,
	Args: cobra.ExactArgs(1),
	RunE: runAutofix,
}

var autofixFlags struct {
	issueID string
	write   bool
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(autofixCmd)

	autofixCmd.Flags().StringVar(&autofixFlags.issueID, "issue", "", "Fix only the issue with this id")
	autofixCmd.Flags().BoolVar(&autofixFlags.write, "write", false, "Write the fixed diagram back to the file")
}

func runParse(cmd *cobra.Command, args []string) error {
	text, err := readDiagram(args[0])
	if err != nil {
		return err
	}
	model, warnings, err := newPipeline().ParseDiagram(text)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"model":    model,
		"warnings": warnings,
	})
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readDiagram(args[0])
	if err != nil {
		return err
	}
	issues, warnings, err := newPipeline().ValidateDiagram(text)
	if err != nil {
		return err
	}
	if err := printJSON(map[string]any{
		"issues":   issues,
		"warnings": warnings,
	}); err != nil {
		return err
	}

	errorCount := 0
	for _, issue := range issues {
		if issue.Severity == validation.SeverityError {
			errorCount++
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("%d validation error(s) found", errorCount)
	}
	return nil
}

func runAutofix(cmd *cobra.Command, args []string) error {
	text, err := readDiagram(args[0])
	if err != nil {
		return err
	}

	svc := newPipeline()
	var fixed string
	if autofixFlags.issueID != "" {
		fixed, err = svc.AutoFixIssue(text, autofixFlags.issueID)
		if err != nil {
			return err
		}
	} else {
		var remaining []validation.Issue
		fixed, remaining, err = svc.AutoFixAll(text)
		if err != nil {
			return err
		}
		for _, issue := range remaining {
			fmt.Fprintf(os.Stderr, "⚠️  unfixed [%s] %s\n", issue.Severity, issue.Message)
		}
	}

	if autofixFlags.write && args[0] != "-" {
		return os.WriteFile(args[0], []byte(fixed), 0o644)
	}
	fmt.Print(fixed)
	return nil
}
