package deliberation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Resource type names, as they appear in policy requests and audit rows.
const (
	ResourceDeliberation  = "deliberation"
	ResourceMessage       = "message"
	ResourceGraphNode     = "graph_node"
	ResourceGraphRel      = "graph_relationship"
	ResourceAgentConfig   = "agent_configuration"
	ResourceStoredFile    = "stored_file"
	ResourcePrincipal     = "principal"
	ResourceAccessCode    = "access_code"
	ResourceSecurityEvent = "security_event"
)

// ResourceMeta is the scoping information the policy evaluator needs
// about any tenant- or owner-scoped resource: which deliberation it
// belongs to (empty for global rows), who owns it (empty for unowned
// rows), and whether it is globally readable regardless of tenant.
type ResourceMeta struct {
	DeliberationID string
	OwnerID        string
	Public         bool
}

// Directory resolves (resourceType, id) pairs to scoping metadata. It
// reads the raw tables: visibility decisions about the metadata itself
// are the evaluator's job, and routing them back through the evaluator
// would recurse.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a resource directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Lookup returns scoping metadata for the resource, ErrResourceNotFound
// if no row matches, or ErrUnknownResourceType for types the directory
// does not handle.
func (d *Directory) Lookup(ctx context.Context, resourceType, id string) (*ResourceMeta, error) {
	switch resourceType {
	case ResourceMessage:
		return d.tenantScoped(ctx, `SELECT deliberation_id, author_id FROM messages WHERE id = ?`, id)
	case ResourceGraphNode:
		return d.tenantScoped(ctx, `SELECT deliberation_id, created_by FROM graph_nodes WHERE id = ?`, id)
	case ResourceGraphRel:
		return d.tenantScoped(ctx, `SELECT deliberation_id, '' FROM graph_relationships WHERE id = ?`, id)
	case ResourceAgentConfig:
		return d.agentConfiguration(ctx, id)
	case ResourceStoredFile:
		return d.storedFile(ctx, id)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, resourceType)
	}
}

func (d *Directory) tenantScoped(ctx context.Context, query, id string) (*ResourceMeta, error) {
	var deliberationID, ownerID string
	err := d.db.QueryRowContext(ctx, query, id).Scan(&deliberationID, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up resource: %w", err)
	}
	return &ResourceMeta{DeliberationID: deliberationID, OwnerID: ownerID}, nil
}

// agentConfiguration rows may be tenant-scoped, owner-scoped, or global
// defaults readable by everyone.
func (d *Directory) agentConfiguration(ctx context.Context, id string) (*ResourceMeta, error) {
	var deliberationID, ownerID sql.NullString
	var isDefault int
	err := d.db.QueryRowContext(ctx,
		`SELECT deliberation_id, owner_id, is_default FROM agent_configurations WHERE id = ?`,
		id).Scan(&deliberationID, &ownerID, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up agent configuration: %w", err)
	}
	return &ResourceMeta{
		DeliberationID: deliberationID.String,
		OwnerID:        ownerID.String,
		Public:         isDefault != 0,
	}, nil
}

func (d *Directory) storedFile(ctx context.Context, id string) (*ResourceMeta, error) {
	var deliberationID sql.NullString
	var ownerID string
	err := d.db.QueryRowContext(ctx,
		`SELECT deliberation_id, owner_id FROM stored_files WHERE id = ?`,
		id).Scan(&deliberationID, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up stored file: %w", err)
	}
	return &ResourceMeta{DeliberationID: deliberationID.String, OwnerID: ownerID}, nil
}
