// Package sqlmeta implements the metadata client against a plain MySQL or
// TiDB database: entities become tables, attributes become columns and
// one-to-many relationships become foreign key constraints. A set of
// registry tables mirrors the platform concepts (publisher, solution,
// solution components) that have no physical counterpart.
package sqlmeta

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pingcap/tidb/pkg/parser"

	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/domain/ports"
	apperrors "github.com/erdflow/backend/pkg/errors"
)

// Registry table names. The underscore prefix keeps them visually apart
// from generated entity tables, which are always prefixed logical names.
const (
	tableEntity    = "_meta_entity"
	tablePublisher = "_meta_publisher"
	tableSolution  = "_meta_solution"
	tableComponent = "_meta_solution_component"
)

// Client implements ports.MetadataClient on top of *sql.DB.
type Client struct {
	db     *sql.DB
	parser *parser.Parser
}

// NewClient wraps an open database handle.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db, parser: parser.New()}
}

// EnsureRegistry creates the registry tables if they do not exist yet.
// Called once at startup.
func (c *Client) EnsureRegistry(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  metadata_id CHAR(36) NOT NULL,
  logical_name VARCHAR(128) NOT NULL,
  display_name VARCHAR(255) NOT NULL,
  primary_id_name VARCHAR(128) NOT NULL,
  is_custom TINYINT(1) NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (metadata_id),
  UNIQUE KEY uk_entity_logical_name (logical_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tableEntity),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id CHAR(36) NOT NULL,
  unique_name VARCHAR(128) NOT NULL,
  friendly_name VARCHAR(255) NOT NULL,
  prefix VARCHAR(16) NOT NULL,
  PRIMARY KEY (id),
  UNIQUE KEY uk_publisher_unique_name (unique_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tablePublisher),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id CHAR(36) NOT NULL,
  unique_name VARCHAR(128) NOT NULL,
  display_name VARCHAR(255) NOT NULL,
  publisher_id CHAR(36) NOT NULL,
  PRIMARY KEY (id),
  UNIQUE KEY uk_solution_unique_name (unique_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tableSolution),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id CHAR(36) NOT NULL,
  solution_id CHAR(36) NOT NULL,
  component_type INT NOT NULL,
  component_id CHAR(36) NOT NULL,
  PRIMARY KEY (id),
  UNIQUE KEY uk_component (solution_id, component_type, component_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, tableComponent),
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create registry table: %w", err)
		}
	}
	return nil
}

// GetEntity implements ports.MetadataClient.
func (c *Client) GetEntity(ctx context.Context, logicalName string) (*ports.EntityMetadata, error) {
	query := fmt.Sprintf(
		"SELECT metadata_id, display_name, is_custom FROM %s WHERE logical_name = ?", tableEntity)

	var entity ports.EntityMetadata
	entity.LogicalName = logicalName
	err := c.db.QueryRowContext(ctx, query, logicalName).Scan(
		&entity.MetadataID, &entity.DisplayName, &entity.IsCustom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifySQL("get entity "+logicalName, err)
	}
	return &entity, nil
}

// CreateEntity implements ports.MetadataClient. The physical table is
// created first and dropped again if registration fails, so the registry
// stays the source of truth.
func (c *Client) CreateEntity(ctx context.Context, def metadata.EntityDefinition) (created *ports.CreatedEntity, err error) {
	existing, err := c.GetEntity(ctx, def.LogicalName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflictError("entity", def.LogicalName)
	}

	ddl, err := buildCreateTableDDL(def)
	if err != nil {
		return nil, apperrors.NewPermanentError("create entity "+def.LogicalName, err.Error())
	}
	if err := validateDDL(c.parser, ddl); err != nil {
		return nil, apperrors.NewPermanentError("create entity "+def.LogicalName, err.Error())
	}

	log.Printf("📐 Creating table: %s", def.LogicalName)
	if _, err = c.db.ExecContext(ctx, ddl); err != nil {
		return nil, classifySQL("create entity "+def.LogicalName, err)
	}

	// COMPENSATION: drop the fresh table if registration fails. The table
	// was verified absent above, so the drop cannot hit pre-existing data.
	defer func() {
		if err != nil {
			log.Printf("⚠️ Registration failed, rolling back table creation: %s", def.LogicalName)
			if _, dropErr := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", def.LogicalName)); dropErr != nil {
				log.Printf("⚠️ Failed to cleanup table %s: %v", def.LogicalName, dropErr)
			}
		}
	}()

	metadataID := uuid.NewString()
	insert := fmt.Sprintf(
		"INSERT INTO %s (metadata_id, logical_name, display_name, primary_id_name, is_custom) VALUES (?, ?, ?, ?, 1)",
		tableEntity)
	if _, err = c.db.ExecContext(ctx, insert, metadataID, def.LogicalName, def.DisplayName, def.PrimaryIDName); err != nil {
		err = classifySQL("register entity "+def.LogicalName, err)
		return nil, err
	}

	log.Printf("✅ Table created and registered: %s", def.LogicalName)
	return &ports.CreatedEntity{LogicalName: def.LogicalName, MetadataID: metadataID}, nil
}

// CreateAttribute implements ports.MetadataClient.
func (c *Client) CreateAttribute(ctx context.Context, entityLogicalName string, def metadata.AttributeDefinition) (*ports.CreatedAttribute, error) {
	ddl := buildAddColumnDDL(entityLogicalName, def)
	if err := validateDDL(c.parser, ddl); err != nil {
		return nil, apperrors.NewPermanentError(
			fmt.Sprintf("create attribute %s.%s", entityLogicalName, def.LogicalName), err.Error())
	}

	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return nil, classifySQL(fmt.Sprintf("create attribute %s.%s", entityLogicalName, def.LogicalName), err)
	}
	return &ports.CreatedAttribute{LogicalName: def.LogicalName}, nil
}

// CreateRelationship implements ports.MetadataClient. One-to-many becomes
// a foreign key constraint on the referencing table. Many-to-many never
// reaches this client: schema generation materializes the junction as a
// regular entity with two one-to-many relationships.
func (c *Client) CreateRelationship(ctx context.Context, def metadata.RelationshipDefinition) (*ports.CreatedRelationship, error) {
	if def.Type == metadata.TypeManyToMany {
		return nil, apperrors.NewPermanentError("create relationship "+def.SchemaName,
			"many-to-many relationships must be materialized as a junction entity")
	}

	primaryID, err := c.primaryIDName(ctx, def.ReferencedEntity)
	if err != nil {
		return nil, err
	}

	ddl := buildAddForeignKeyDDL(def, primaryID)
	if err := validateDDL(c.parser, ddl); err != nil {
		return nil, apperrors.NewPermanentError("create relationship "+def.SchemaName, err.Error())
	}

	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return nil, classifySQL("create relationship "+def.SchemaName, err)
	}
	return &ports.CreatedRelationship{SchemaName: def.SchemaName}, nil
}

// primaryIDName resolves the referenced table's primary key column from the
// registry, falling back to the platform naming convention for entities
// that exist outside this deployment (standard catalog entities).
func (c *Client) primaryIDName(ctx context.Context, logicalName string) (string, error) {
	query := fmt.Sprintf("SELECT primary_id_name FROM %s WHERE logical_name = ?", tableEntity)

	var primaryID string
	err := c.db.QueryRowContext(ctx, query, logicalName).Scan(&primaryID)
	if errors.Is(err, sql.ErrNoRows) {
		return logicalName + "id", nil
	}
	if err != nil {
		return "", classifySQL("resolve primary id for "+logicalName, err)
	}
	return primaryID, nil
}

// DeleteEntity implements ports.MetadataClient.
func (c *Client) DeleteEntity(ctx context.Context, logicalName string) error {
	existing, err := c.GetEntity(ctx, logicalName)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.NewNotFoundError("entity", logicalName)
	}

	// Refuse the drop while other tables still point at this one.
	referencing, err := c.referencingTables(ctx, logicalName)
	if err != nil {
		return err
	}
	if len(referencing) > 0 {
		return apperrors.NewReferencedError("delete entity "+logicalName,
			fmt.Sprintf("entity '%s' is referenced by %v", logicalName, referencing))
	}

	log.Printf("🔥 Dropping table: %s", logicalName)
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", logicalName)); err != nil {
		return classifySQL("delete entity "+logicalName, err)
	}

	if _, err := c.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE logical_name = ?", tableEntity), logicalName); err != nil {
		log.Printf("⚠️  Warning: Failed to unregister entity %s: %v", logicalName, err)
	}
	return nil
}

// referencingTables lists tables holding foreign keys into the given table.
func (c *Client) referencingTables(ctx context.Context, logicalName string) ([]string, error) {
	query := `SELECT DISTINCT TABLE_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME = ?`

	rows, err := c.db.QueryContext(ctx, query, logicalName)
	if err != nil {
		return nil, classifySQL("check references for "+logicalName, err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// GetPublisher implements ports.MetadataClient.
func (c *Client) GetPublisher(ctx context.Context, uniqueName string) (*ports.Publisher, error) {
	query := fmt.Sprintf(
		"SELECT id, unique_name, friendly_name, prefix FROM %s WHERE unique_name = ?", tablePublisher)

	var p ports.Publisher
	err := c.db.QueryRowContext(ctx, query, uniqueName).Scan(&p.ID, &p.UniqueName, &p.FriendlyName, &p.Prefix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifySQL("get publisher "+uniqueName, err)
	}
	return &p, nil
}

// EnsurePublisher implements ports.MetadataClient.
func (c *Client) EnsurePublisher(ctx context.Context, def ports.Publisher) (*ports.Publisher, error) {
	existing, err := c.GetPublisher(ctx, def.UniqueName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("♻️  Reusing publisher: %s (prefix %s)", existing.UniqueName, existing.Prefix)
		return existing, nil
	}

	created := def
	created.ID = uuid.NewString()
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, unique_name, friendly_name, prefix) VALUES (?, ?, ?, ?)", tablePublisher)
	if _, err := c.db.ExecContext(ctx, insert, created.ID, created.UniqueName, created.FriendlyName, created.Prefix); err != nil {
		return nil, classifySQL("create publisher "+def.UniqueName, err)
	}
	return &created, nil
}

// EnsureSolution implements ports.MetadataClient.
func (c *Client) EnsureSolution(ctx context.Context, uniqueName, displayName string, publisher *ports.Publisher) (*ports.Solution, error) {
	query := fmt.Sprintf(
		"SELECT id, unique_name, display_name, publisher_id FROM %s WHERE unique_name = ?", tableSolution)

	var s ports.Solution
	err := c.db.QueryRowContext(ctx, query, uniqueName).Scan(&s.ID, &s.UniqueName, &s.DisplayName, &s.PublisherID)
	if err == nil {
		log.Printf("♻️  Reusing solution: %s", s.UniqueName)
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classifySQL("get solution "+uniqueName, err)
	}

	s = ports.Solution{
		ID:          uuid.NewString(),
		UniqueName:  uniqueName,
		DisplayName: displayName,
		PublisherID: publisher.ID,
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, unique_name, display_name, publisher_id) VALUES (?, ?, ?, ?)", tableSolution)
	if _, err := c.db.ExecContext(ctx, insert, s.ID, s.UniqueName, s.DisplayName, s.PublisherID); err != nil {
		return nil, classifySQL("create solution "+uniqueName, err)
	}
	return &s, nil
}

// AddComponentToSolution implements ports.MetadataClient. Re-registering
// the same component is a no-op.
func (c *Client) AddComponentToSolution(ctx context.Context, componentType int, componentID string, solution *ports.Solution) error {
	if solution == nil {
		return apperrors.NewValidationError("solution", "solution is required to register a component")
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, solution_id, component_type, component_id) VALUES (?, ?, ?, ?) ON DUPLICATE KEY UPDATE component_id = component_id",
		tableComponent)
	if _, err := c.db.ExecContext(ctx, insert, uuid.NewString(), solution.ID, componentType, componentID); err != nil {
		return classifySQL("add solution component "+componentID, err)
	}
	return nil
}

// MySQL server error codes that signal a duplicate of something we were
// about to create.
var conflictCodes = map[uint16]bool{
	1022: true, // duplicate key name
	1050: true, // table already exists
	1060: true, // duplicate column name
	1061: true, // duplicate key name on index
	1062: true, // duplicate entry for unique key
	1826: true, // duplicate foreign key constraint name
}

// MySQL server error codes worth retrying.
var transientCodes = map[uint16]bool{
	1205: true, // lock wait timeout
	1213: true, // deadlock found
}

// classifySQL maps a database error into the error taxonomy so the
// orchestrator can decide between retry, skip, and abort.
func classifySQL(operation string, err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return apperrors.NewTransientError(operation, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch {
		case conflictCodes[mysqlErr.Number]:
			return apperrors.NewConflictError(operation, mysqlErr.Message)
		case transientCodes[mysqlErr.Number]:
			return apperrors.NewTransientError(operation, err)
		default:
			return apperrors.NewPermanentError(operation, mysqlErr.Message)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.NewTransientError(operation, err)
}
