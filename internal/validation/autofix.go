package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/erdflow/backend/internal/parser"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

// AutoFix applies the textual correction for one auto-fixable issue and
// returns the corrected diagram text. Fixes are anchored substring and
// line rewrites against the original source, never re-serializations of
// the parsed model, so unmodeled formatting and comments survive. Callers
// must re-parse and re-validate the result; VerifyFixed does both.
func AutoFix(text string, issue Issue) (string, error) {
	if !issue.AutoFixable {
		return "", apperrors.NewValidationError("issue", fmt.Sprintf("issue '%s' is not auto-fixable", issue.ID))
	}

	switch issue.Type {
	case IssueMissingPrimaryKey:
		return fixMissingPrimaryKey(text, issue)
	case IssueMultiplePrimaryKeys:
		return fixMultiplePrimaryKeys(text, issue)
	case IssueDuplicateColumns:
		return fixDuplicateColumns(text, issue)
	case IssueMissingForeignKey:
		return fixMissingForeignKey(text, issue)
	case IssueForeignKeyNaming:
		return fixForeignKeyFlag(text, issue)
	case IssueManyToMany:
		return fixManyToMany(text, issue)
	default:
		return "", apperrors.NewValidationError("issue", fmt.Sprintf("no fix registered for issue type '%s'", issue.Type))
	}
}

// VerifyFixed re-parses corrected text and reports whether the issue is
// gone. The patch is never trusted blindly.
func VerifyFixed(text string, issue Issue) bool {
	model, _ := parser.Parse(text)
	for _, found := range Validate(model) {
		if found.ID == issue.ID {
			return false
		}
	}
	return true
}

// entityBlock locates the line span of an entity block: start is the
// "Name {" line, end the closing "}" line. Returns -1,-1 when absent.
func entityBlock(lines []string, entity string) (start, end int) {
	blockStart := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(entity) + `\s*\{$`)
	start = -1
	for i, line := range lines {
		if start < 0 {
			if blockStart.MatchString(line) {
				start = i
			}
			continue
		}
		if strings.TrimSpace(line) == "}" {
			return start, i
		}
	}
	return -1, -1
}

// columnLine matches an attribute declaration for the named column inside
// a block. Matching is case-insensitive: Issue.Column carries the
// lowercased column name while the diagram may declare it in any casing.
func columnLine(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(\s*)(\S+)\s+` + regexp.QuoteMeta(name) + `(\s|$)`)
}

func indentOf(lines []string, start, end int) string {
	for i := start + 1; i < end; i++ {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
		}
	}
	return "        "
}

func fixMissingPrimaryKey(text string, issue Issue) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := entityBlock(lines, issue.Entity)
	if start < 0 {
		return "", apperrors.NewValidationError("entity", fmt.Sprintf("entity block '%s' not found in diagram", issue.Entity))
	}

	// Prefer promoting an existing "id" column over inserting a new one.
	idLine := columnLine("id")
	for i := start + 1; i < end; i++ {
		if idLine.MatchString(lines[i]) && !strings.Contains(lines[i], " PK") {
			lines[i] = appendFlag(lines[i], "PK")
			return strings.Join(lines, "\n"), nil
		}
	}

	indent := indentOf(lines, start, end)
	inserted := indent + "guid id PK"
	lines = append(lines[:start+1], append([]string{inserted}, lines[start+1:]...)...)
	return strings.Join(lines, "\n"), nil
}

func fixMultiplePrimaryKeys(text string, issue Issue) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := entityBlock(lines, issue.Entity)
	if start < 0 {
		return "", apperrors.NewValidationError("entity", fmt.Sprintf("entity block '%s' not found in diagram", issue.Entity))
	}

	pkRe := regexp.MustCompile(`\s+PK\b`)
	kept := false
	for i := start + 1; i < end; i++ {
		if !pkRe.MatchString(lines[i]) {
			continue
		}
		if !kept {
			kept = true
			continue
		}
		lines[i] = pkRe.ReplaceAllString(lines[i], "")
	}
	return strings.Join(lines, "\n"), nil
}

func fixDuplicateColumns(text string, issue Issue) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := entityBlock(lines, issue.Entity)
	if start < 0 {
		return "", apperrors.NewValidationError("entity", fmt.Sprintf("entity block '%s' not found in diagram", issue.Entity))
	}

	col := columnLine(issue.Column)
	kept := false
	var out []string
	for i, line := range lines {
		if i > start && i < end && col.MatchString(line) {
			if kept {
				continue // drop the duplicate declaration
			}
			kept = true
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), nil
}

func fixMissingForeignKey(text string, issue Issue) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := entityBlock(lines, issue.Entity)
	if start < 0 {
		return "", apperrors.NewValidationError("entity", fmt.Sprintf("entity block '%s' not found in diagram", issue.Entity))
	}

	indent := indentOf(lines, start, end)
	inserted := indent + "guid " + issue.Column + " FK"
	lines = append(lines[:end], append([]string{inserted}, lines[end:]...)...)
	return strings.Join(lines, "\n"), nil
}

func fixForeignKeyFlag(text string, issue Issue) (string, error) {
	lines := strings.Split(text, "\n")
	start, end := entityBlock(lines, issue.Entity)
	if start < 0 {
		return "", apperrors.NewValidationError("entity", fmt.Sprintf("entity block '%s' not found in diagram", issue.Entity))
	}

	col := columnLine(issue.Column)
	for i := start + 1; i < end; i++ {
		if col.MatchString(lines[i]) && !strings.Contains(lines[i], " FK") {
			lines[i] = appendFlag(lines[i], "FK")
			return strings.Join(lines, "\n"), nil
		}
	}
	return "", apperrors.NewValidationError("column", fmt.Sprintf("column '%s' not found in entity '%s'", issue.Column, issue.Entity))
}

// fixManyToMany performs the documented conversion: the direct
// many-to-many line becomes an explicit junction entity plus two
// one-to-many relationships, labeled as an auto-correction.
func fixManyToMany(text string, issue Issue) (string, error) {
	from, to, ok := strings.Cut(issue.Relationship, "-")
	if !ok {
		return "", apperrors.NewValidationError("relationship", fmt.Sprintf("malformed relationship key '%s'", issue.Relationship))
	}

	lineRe := regexp.MustCompile(`^(\s*)` + regexp.QuoteMeta(from) + `\s*\}o--o\{\s*` + regexp.QuoteMeta(to) + `\s*:\s*(.+)$`)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, label := m[1], strings.TrimSpace(m[2])
		junction := from + "_" + to

		replacement := []string{
			fmt.Sprintf("%s%%%% auto-fix: converted many-to-many '%s - %s' into junction entity '%s'", indent, from, to, junction),
			indent + junction + " {",
			indent + "    guid id PK",
			indent + "    guid " + strings.ToLower(from) + "_id FK",
			indent + "    guid " + strings.ToLower(to) + "_id FK",
			indent + "}",
			fmt.Sprintf("%s%s ||--o{ %s : %s", indent, from, junction, label),
			fmt.Sprintf("%s%s ||--o{ %s : %s", indent, to, junction, label),
		}

		out := append([]string{}, lines[:i]...)
		out = append(out, replacement...)
		out = append(out, lines[i+1:]...)
		return strings.Join(out, "\n"), nil
	}

	return "", apperrors.NewValidationError("relationship", fmt.Sprintf("many-to-many line '%s - %s' not found in diagram", from, to))
}

// appendFlag appends a PK/FK/UK flag to an attribute line, keeping a
// trailing quoted description in place.
func appendFlag(line, flag string) string {
	descRe := regexp.MustCompile(`\s*"[^"]*"\s*$`)
	if loc := descRe.FindStringIndex(line); loc != nil {
		return line[:loc[0]] + " " + flag + line[loc[0]:]
	}
	return strings.TrimRight(line, " \t") + " " + flag
}
