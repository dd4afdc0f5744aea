package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veritest-ai/toolgate/internal/schema"
)

// ToolStore abstracts DB queries for testability.
type ToolStore interface {
	LookupTool(ctx context.Context, toolName string) (*toolRow, error)
}

type toolRow struct {
	ID                  string
	ToolName            string
	Description         sql.NullString
	InputSchema         sql.NullString // JSONB as string
	RequiresConfirm     bool
	ConfirmationType    sql.NullString
	ConfirmationMessage sql.NullString
}

// sqlToolStore is the real implementation using *sql.DB.
type sqlToolStore struct {
	db *sql.DB
}

func (s *sqlToolStore) LookupTool(ctx context.Context, toolName string) (*toolRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_name, description, input_schema,
		       requires_confirmation, confirmation_type, confirmation_message
		FROM tool_definitions
		WHERE tool_name = $1
	`, toolName)

	var r toolRow
	if err := row.Scan(
		&r.ID, &r.ToolName, &r.Description, &r.InputSchema,
		&r.RequiresConfirm, &r.ConfirmationType, &r.ConfirmationMessage,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresToolRegistry fetches tool definitions from the tool_definitions
// table, compiling each input schema once per cache fill.
type PostgresToolRegistry struct {
	store  ToolStore
	cache  *toolCache
	logger *zap.Logger
}

// PostgresToolRegistryConfig configures the PostgresToolRegistry.
type PostgresToolRegistryConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresToolRegistry creates a new PostgresToolRegistry.
func NewPostgresToolRegistry(cfg PostgresToolRegistryConfig) *PostgresToolRegistry {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &PostgresToolRegistry{
		store:  &sqlToolStore{db: cfg.DB},
		cache:  newToolCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresToolRegistryWithStore creates a registry with a custom store (for testing).
func newPostgresToolRegistryWithStore(store ToolStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresToolRegistry {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	return &PostgresToolRegistry{
		store:  store,
		cache:  newToolCache(cacheTTL),
		logger: logger,
	}
}

func (r *PostgresToolRegistry) GetTool(ctx context.Context, toolName string) (*ToolDefinition, error) {
	lookup := r.cache.get(toolName)
	if lookup.hit {
		if lookup.needsRefresh {
			go r.refreshInBackground(toolName)
		}
		return lookup.tool, nil
	}

	td, err := r.fetchFromDB(ctx, toolName)
	if err != nil {
		if err == sql.ErrNoRows {
			// Negative cache: tool not registered
			r.cache.set(toolName, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("GetTool: %w", err)
	}

	r.cache.set(toolName, td)
	return td, nil
}

func (r *PostgresToolRegistry) fetchFromDB(ctx context.Context, toolName string) (*ToolDefinition, error) {
	row, err := r.store.LookupTool(ctx, toolName)
	if err != nil {
		return nil, err
	}
	return parseToolRow(row)
}

func (r *PostgresToolRegistry) refreshInBackground(toolName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	td, err := r.fetchFromDB(ctx, toolName)
	if err != nil {
		if err == sql.ErrNoRows {
			r.cache.set(toolName, nil)
			return
		}
		r.logger.Warn("background tool registry refresh failed",
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
		return
	}
	r.cache.set(toolName, td)
}

func parseToolRow(row *toolRow) (*ToolDefinition, error) {
	td := &ToolDefinition{
		ID:              row.ID,
		ToolName:        row.ToolName,
		RequiresConfirm: row.RequiresConfirm,
	}

	if row.Description.Valid {
		td.Description = row.Description.String
	}
	if row.ConfirmationType.Valid {
		td.ConfirmationType = row.ConfirmationType.String
	}
	if row.ConfirmationMessage.Valid {
		td.ConfirmationMessage = row.ConfirmationMessage.String
	}

	// Compile the input schema once here; a definition that fails the
	// meta-schema never reaches the validator.
	if row.InputSchema.Valid && row.InputSchema.String != "" {
		s, err := schema.ParseSchema([]byte(row.InputSchema.String))
		if err != nil {
			return nil, fmt.Errorf("parseToolRow: input_schema: %w", err)
		}
		td.InputSchema = s
	}

	return td, nil
}
