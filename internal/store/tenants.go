package store

import (
	"context"
	"fmt"
)

// Ownership subqueries. $1 is always the session user.
const (
	ownedCreator  = `SELECT id FROM creators WHERE user_id = $1`
	ownedClients  = `SELECT ec.id FROM end_clients ec JOIN creators c ON c.id = ec.creator_id WHERE c.user_id = $1`
	ownedProjects = `SELECT p.id FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id JOIN creators c ON c.id = ec.creator_id WHERE c.user_id = $1`
)

const creatorColumns = `c.id, c.user_id, c.agency_name, c.subscription_plan, c.subscription_status, c.phone, c.website, u.email, c.created_at, c.updated_at`

func scanCreator(row interface{ Scan(...any) error }) (Creator, error) {
	var item Creator
	err := row.Scan(&item.ID, &item.UserID, &item.AgencyName, &item.SubscriptionPlan, &item.SubscriptionStatus, &item.Phone, &item.Website, &item.Email, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) GetCreatorByUser(ctx context.Context, userID string) (Creator, error) {
	return scanCreator(s.db.QueryRowContext(ctx, `
		SELECT `+creatorColumns+`
		FROM creators c JOIN users u ON u.id = c.user_id
		WHERE c.user_id = $1
	`, userID))
}

func (s *PostgresStore) UpdateCreator(ctx context.Context, userID string, item Creator) (Creator, error) {
	return scanCreator(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE creators SET agency_name=$2, phone=$3, website=$4
			WHERE user_id = $1
			RETURNING *
		)
		SELECT `+creatorColumns+`
		FROM updated c JOIN users u ON u.id = c.user_id
	`, userID, item.AgencyName, item.Phone, item.Website))
}

const clientColumns = `ec.id, ec.creator_id, ec.name, ec.email, ec.company, ec.phone, ec.status, ec.created_at, ec.updated_at`

func scanClient(row interface{ Scan(...any) error }, withCount bool) (EndClient, error) {
	var item EndClient
	dest := []any{&item.ID, &item.CreatorID, &item.Name, &item.Email, &item.Company, &item.Phone, &item.Status, &item.CreatedAt, &item.UpdatedAt}
	if withCount {
		dest = append(dest, &item.ProjectCount)
	}
	err := row.Scan(dest...)
	return item, err
}

func (s *PostgresStore) ListClients(ctx context.Context, userID string) ([]EndClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`, (SELECT COUNT(*) FROM projects p WHERE p.end_client_id = ec.id)
		FROM end_clients ec
		WHERE ec.id IN (`+ownedClients+`)
		ORDER BY ec.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]EndClient, 0)
	for rows.Next() {
		item, err := scanClient(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, userID, clientID string) (EndClient, error) {
	return scanClient(s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`, (SELECT COUNT(*) FROM projects p WHERE p.end_client_id = ec.id)
		FROM end_clients ec
		WHERE ec.id = $2 AND ec.id IN (`+ownedClients+`)
	`, userID, clientID), true)
}

// GetClientByID is unscoped. Portal sessions use it after the token check.
func (s *PostgresStore) GetClientByID(ctx context.Context, clientID string) (EndClient, error) {
	return scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM end_clients ec WHERE ec.id = $1`, clientID), false)
}

func (s *PostgresStore) CreateClient(ctx context.Context, userID string, item EndClient) (EndClient, error) {
	return scanClient(s.db.QueryRowContext(ctx, `
		INSERT INTO end_clients AS ec (creator_id, name, email, company, phone)
		SELECT id, $2, $3, $4, $5 FROM creators WHERE user_id = $1
		RETURNING `+clientColumns+`
	`, userID, item.Name, item.Email, item.Company, item.Phone), false)
}

func (s *PostgresStore) UpdateClient(ctx context.Context, userID string, item EndClient) (EndClient, error) {
	return scanClient(s.db.QueryRowContext(ctx, `
		UPDATE end_clients AS ec SET name=$3, email=$4, company=$5, phone=$6
		WHERE ec.id = $2 AND ec.creator_id IN (`+ownedCreator+`)
		RETURNING `+clientColumns+`
	`, userID, item.ID, item.Name, item.Email, item.Company, item.Phone), false)
}

// SetClientStatus deactivates or reactivates a client. Clients are never deleted.
func (s *PostgresStore) SetClientStatus(ctx context.Context, userID, clientID, status string) (EndClient, error) {
	return scanClient(s.db.QueryRowContext(ctx, `
		UPDATE end_clients AS ec SET status=$3
		WHERE ec.id = $2 AND ec.creator_id IN (`+ownedCreator+`)
		RETURNING `+clientColumns+`
	`, userID, clientID, status), false)
}

const projectColumns = `p.id, p.end_client_id, p.title, p.description, p.status, p.tour_url, COALESCE(p.external_tour_id, ''), p.views, ec.name, p.created_at, p.updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	err := row.Scan(&item.ID, &item.EndClientID, &item.Title, &item.Description, &item.Status, &item.TourURL, &item.ExternalTourID, &item.Views, &item.ClientName, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) queryProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// ListProjects returns the creator's projects, optionally for one client.
func (s *PostgresStore) ListProjects(ctx context.Context, userID, clientID string) ([]Project, error) {
	return s.queryProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.end_client_id IN (`+ownedClients+`)
			AND ($2 = '' OR p.end_client_id::text = $2)
		ORDER BY p.updated_at DESC
	`, userID, clientID)
}

func (s *PostgresStore) ListClientProjects(ctx context.Context, endClientID string) ([]Project, error) {
	return s.queryProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.end_client_id = $1 AND p.status <> 'archived'
		ORDER BY p.updated_at DESC
	`, endClientID)
}

func (s *PostgresStore) GetProject(ctx context.Context, userID, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.id = $2 AND p.end_client_id IN (`+ownedClients+`)
	`, userID, projectID))
}

// GetPublicProject is unscoped; callers expose only public fields.
func (s *PostgresStore) GetPublicProject(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.id = $1
	`, projectID))
}

func (s *PostgresStore) GetProjectByExternalTourID(ctx context.Context, externalTourID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.external_tour_id = $1
	`, externalTourID))
}

func (s *PostgresStore) CreateProject(ctx context.Context, userID string, item Project) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO projects (end_client_id, title, description, status, tour_url, external_tour_id)
			SELECT ec.id, $3, $4, $5, $6, NULLIF($7, '')
			FROM end_clients ec
			WHERE ec.id = $2 AND ec.id IN (`+ownedClients+`)
			RETURNING *
		)
		SELECT `+projectColumns+`
		FROM inserted p JOIN end_clients ec ON ec.id = p.end_client_id
	`, userID, item.EndClientID, item.Title, item.Description, item.Status, item.TourURL, item.ExternalTourID))
}

func (s *PostgresStore) UpdateProject(ctx context.Context, userID string, item Project) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE projects SET title=$3, description=$4, tour_url=$5, external_tour_id=NULLIF($6, '')
			WHERE id = $2 AND end_client_id IN (`+ownedClients+`)
			RETURNING *
		)
		SELECT `+projectColumns+`
		FROM updated p JOIN end_clients ec ON ec.id = p.end_client_id
	`, userID, item.ID, item.Title, item.Description, item.TourURL, item.ExternalTourID))
}

func (s *PostgresStore) SetProjectStatus(ctx context.Context, userID, projectID, status string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE projects SET status=$3
			WHERE id = $2 AND end_client_id IN (`+ownedClients+`)
			RETURNING *
		)
		SELECT `+projectColumns+`
		FROM updated p JOIN end_clients ec ON ec.id = p.end_client_id
	`, userID, projectID, status))
}

func (s *PostgresStore) DashboardCounts(ctx context.Context, userID string) (DashboardCounts, error) {
	var counts DashboardCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM end_clients WHERE id IN (`+ownedClients+`) AND status = 'active'),
			(SELECT COUNT(*) FROM projects WHERE id IN (`+ownedProjects+`) AND status = 'active'),
			(SELECT COUNT(*) FROM projects WHERE id IN (`+ownedProjects+`)),
			(SELECT COUNT(*) FROM chatbots WHERE project_id IN (`+ownedProjects+`)),
			(SELECT COUNT(*) FROM leads l JOIN chatbots cb ON cb.id = l.chatbot_id WHERE cb.project_id IN (`+ownedProjects+`)),
			(SELECT COUNT(*) FROM leads l JOIN chatbots cb ON cb.id = l.chatbot_id WHERE cb.project_id IN (`+ownedProjects+`) AND l.status = 'new'),
			(SELECT COUNT(*) FROM requests WHERE project_id IN (`+ownedProjects+`) AND status IN ('open', 'in_progress')),
			(SELECT COALESCE(SUM(views), 0) FROM projects WHERE id IN (`+ownedProjects+`))
	`, userID).Scan(
		&counts.Clients,
		&counts.ActiveProjects,
		&counts.TotalProjects,
		&counts.Chatbots,
		&counts.Leads,
		&counts.NewLeads,
		&counts.OpenRequests,
		&counts.TotalViews,
	)
	if err != nil {
		return DashboardCounts{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return counts, nil
}
