package sqlmeta

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // parser value expression driver

	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/pkg/attrtypes"
)

var validTableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// sqlTypeForPlatform resolves the SQL storage type for a platform attribute
// type by consulting the attribute type registry. Unmapped types store as
// VARCHAR so a create never invents a column type silently.
func sqlTypeForPlatform(platformType string) string {
	for _, def := range attrtypes.GetRegistry().GetAll() {
		if def.PlatformType == platformType && def.SQLType != "" {
			return def.SQLType
		}
	}
	return "VARCHAR(255)"
}

// buildColumnDDL renders one column clause of a CREATE or ALTER statement.
func buildColumnDDL(def metadata.AttributeDefinition) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("`%s` %s", def.LogicalName, sqlTypeForPlatform(def.AttributeType)))
	if def.IsPrimaryID {
		sb.WriteString(" NOT NULL")
	} else if def.Required {
		sb.WriteString(" NOT NULL")
	} else {
		sb.WriteString(" NULL")
	}
	if def.IsUnique && !def.IsPrimaryID {
		sb.WriteString(" UNIQUE")
	}
	if def.DisplayName != "" {
		sb.WriteString(fmt.Sprintf(" COMMENT '%s'", strings.ReplaceAll(def.DisplayName, "'", "''")))
	}
	return sb.String()
}

// buildCreateTableDDL renders the CREATE TABLE statement for an entity
// shell: primary id, primary name and the standard audit columns. The
// remaining attributes arrive through ALTER TABLE in the attribute stage.
func buildCreateTableDDL(def metadata.EntityDefinition) (string, error) {
	if !validTableName.MatchString(def.LogicalName) {
		return "", fmt.Errorf("table name '%s' must be snake_case (lowercase, alphanumeric, underscores)", def.LogicalName)
	}

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n", def.LogicalName))

	for _, attr := range def.Attributes {
		if !attr.IsPrimaryID && !attr.IsPrimaryName {
			continue
		}
		ddl.WriteString("  ")
		ddl.WriteString(buildColumnDDL(attr))
		ddl.WriteString(",\n")
	}

	// Standard audit columns every entity table carries.
	ddl.WriteString("  `created_at` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,\n")
	ddl.WriteString("  `updated_at` DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,\n")
	ddl.WriteString(fmt.Sprintf("  PRIMARY KEY (`%s`)\n", def.PrimaryIDName))
	ddl.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")

	return ddl.String(), nil
}

// buildAddColumnDDL renders the ALTER TABLE statement adding one attribute.
func buildAddColumnDDL(entityLogicalName string, def metadata.AttributeDefinition) string {
	return fmt.Sprintf("ALTER TABLE `%s` ADD COLUMN %s", entityLogicalName, buildColumnDDL(def))
}

// buildAddForeignKeyDDL renders the ALTER TABLE statement materializing a
// one-to-many relationship as a foreign key constraint.
func buildAddForeignKeyDDL(def metadata.RelationshipDefinition, referencedPrimaryID string) string {
	return fmt.Sprintf(
		"ALTER TABLE `%s` ADD CONSTRAINT `%s` FOREIGN KEY (`%s`) REFERENCES `%s` (`%s`)",
		def.ReferencingEntity, def.SchemaName, def.ReferencingAttribute,
		def.ReferencedEntity, referencedPrimaryID)
}

// validateDDL parses a generated statement before it reaches the database.
// A build bug in the DDL renderers should fail here with a parse error, not
// as a half-applied statement server-side.
func validateDDL(p *parser.Parser, sql string) error {
	stmtNodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return fmt.Errorf("generated DDL failed to parse: %w", err)
	}
	if len(stmtNodes) != 1 {
		return fmt.Errorf("generated DDL must be a single statement, got %d", len(stmtNodes))
	}
	switch stmtNodes[0].(type) {
	case *ast.CreateTableStmt, *ast.AlterTableStmt, *ast.DropTableStmt:
		return nil
	default:
		return fmt.Errorf("generated DDL is not a schema statement: %T", stmtNodes[0])
	}
}
