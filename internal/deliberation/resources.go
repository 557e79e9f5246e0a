package deliberation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a contribution to a deliberation's discussion.
type Message struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id"`
	AuthorID       string    `json:"author_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// GraphNode is an element of a deliberation's argument map.
type GraphNode struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id"`
	NodeType       string    `json:"node_type"`
	Label          string    `json:"label"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// GraphRelationship links two argument map nodes.
type GraphRelationship struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id"`
	FromNode       string    `json:"from_node"`
	ToNode         string    `json:"to_node"`
	RelType        string    `json:"rel_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// AgentConfiguration parameterises an automated deliberation agent.
// Default configurations are global and readable by everyone.
type AgentConfiguration struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id,omitempty"`
	OwnerID        string    `json:"owner_id,omitempty"`
	Name           string    `json:"name"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
}

// StoredFile is an uploaded attachment.
type StoredFile struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id,omitempty"`
	OwnerID        string    `json:"owner_id"`
	Path           string    `json:"path"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResourceStore persists the tenant-scoped resource rows the policy
// evaluator guards.
type ResourceStore struct {
	db *sql.DB
}

// NewResourceStore creates a resource store.
func NewResourceStore(db *sql.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// CreateMessage inserts a message. ID and CreatedAt are defaulted.
func (s *ResourceStore) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = "msg-" + uuid.NewString()[:8]
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, deliberation_id, author_id, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.DeliberationID, m.AuthorID, m.Body, m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns a deliberation's messages, oldest first.
func (s *ResourceStore) ListMessages(ctx context.Context, deliberationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deliberation_id, author_id, body, created_at
		 FROM messages WHERE deliberation_id = ? ORDER BY created_at, id`,
		deliberationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.DeliberationID, &m.AuthorID, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

// CreateGraphNode inserts an argument map node.
func (s *ResourceStore) CreateGraphNode(ctx context.Context, n *GraphNode) error {
	if n.ID == "" {
		n.ID = "gnd-" + uuid.NewString()[:8]
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_nodes (id, deliberation_id, node_type, label, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.DeliberationID, n.NodeType, n.Label, n.CreatedBy, n.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting graph node: %w", err)
	}
	return nil
}

// CreateGraphRelationship inserts an argument map edge.
func (s *ResourceStore) CreateGraphRelationship(ctx context.Context, r *GraphRelationship) error {
	if r.ID == "" {
		r.ID = "grl-" + uuid.NewString()[:8]
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_relationships (id, deliberation_id, from_node, to_node, rel_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeliberationID, r.FromNode, r.ToNode, r.RelType, r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting graph relationship: %w", err)
	}
	return nil
}

// CreateAgentConfiguration inserts an agent configuration.
func (s *ResourceStore) CreateAgentConfiguration(ctx context.Context, c *AgentConfiguration) error {
	if c.ID == "" {
		c.ID = "agc-" + uuid.NewString()[:8]
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_configurations (id, deliberation_id, owner_id, name, is_default, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, nullString(c.DeliberationID), nullString(c.OwnerID), c.Name,
		boolToInt(c.IsDefault), c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting agent configuration: %w", err)
	}
	return nil
}

// CreateStoredFile inserts a stored file record.
func (s *ResourceStore) CreateStoredFile(ctx context.Context, f *StoredFile) error {
	if f.ID == "" {
		f.ID = "fil-" + uuid.NewString()[:8]
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stored_files (id, deliberation_id, owner_id, path, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.ID, nullString(f.DeliberationID), f.OwnerID, f.Path, f.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting stored file: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
