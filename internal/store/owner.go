package store

import (
	"context"
	"fmt"
	"strings"
)

// ResolveOwner maps a change notification's keys to the tenant that owns the
// row. Lookups go through parent keys so DELETE notifications still resolve.
func (s *PostgresStore) ResolveOwner(ctx context.Context, table string, keys map[string]string) (Owner, error) {
	owner := Owner{ProjectID: keys["project_id"]}

	var query, arg string
	switch table {
	case "end_clients":
		owner.EndClientID = keys["id"]
		query = `SELECT c.user_id, c.id, '' FROM creators c WHERE c.id = $1`
		arg = keys["creator_id"]
	case "projects":
		owner.ProjectID = keys["id"]
		query = `SELECT c.user_id, c.id, ec.id FROM end_clients ec JOIN creators c ON c.id = ec.creator_id WHERE ec.id = $1`
		arg = keys["end_client_id"]
	case "requests":
		query = `SELECT c.user_id, c.id, ec.id FROM end_clients ec JOIN creators c ON c.id = ec.creator_id WHERE ec.id = $1`
		arg = keys["end_client_id"]
	case "chatbots", "analytics":
		query = `
			SELECT c.user_id, c.id, ec.id FROM projects p
			JOIN end_clients ec ON ec.id = p.end_client_id
			JOIN creators c ON c.id = ec.creator_id
			WHERE p.id = $1`
		arg = keys["project_id"]
	case "leads":
		query = `
			SELECT c.user_id, c.id, ec.id, p.id FROM chatbots cb
			JOIN projects p ON p.id = cb.project_id
			JOIN end_clients ec ON ec.id = p.end_client_id
			JOIN creators c ON c.id = ec.creator_id
			WHERE cb.id = $1`
		arg = keys["chatbot_id"]
	case "assets":
		query = `SELECT c.user_id, c.id, '' FROM creators c WHERE c.id = $1`
		arg = keys["creator_id"]
	default:
		return Owner{}, fmt.Errorf("resolve owner: unknown table %q", table)
	}
	if strings.TrimSpace(arg) == "" {
		return Owner{}, fmt.Errorf("resolve owner: %s notification is missing its parent key", table)
	}

	var endClientID string
	dest := []any{&owner.CreatorUserID, &owner.CreatorID, &endClientID}
	if table == "leads" {
		dest = append(dest, &owner.ProjectID)
	}
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(dest...); err != nil {
		return Owner{}, fmt.Errorf("resolve owner of %s: %w", table, err)
	}
	if endClientID != "" {
		owner.EndClientID = endClientID
	}
	return owner, nil
}
