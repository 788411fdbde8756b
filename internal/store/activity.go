package store

import (
	"context"
	"fmt"
	"time"
)

// Activity source queries. Arguments: $1 session user, $2 cutoff, $3 client
// id or '', $4 project id or ''.

func activityArgs(scope ActivityScope, since time.Time) []any {
	return []any{scope.CreatorUserID, since, scope.ClientID, scope.ProjectID}
}

func (s *PostgresStore) RecentProjects(ctx context.Context, scope ActivityScope, since time.Time) ([]Project, error) {
	return s.queryProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p JOIN end_clients ec ON ec.id = p.end_client_id
		WHERE p.end_client_id IN (`+ownedClients+`)
			AND (p.created_at >= $2 OR p.updated_at >= $2)
			AND ($3 = '' OR p.end_client_id::text = $3)
			AND ($4 = '' OR p.id::text = $4)
		ORDER BY p.updated_at DESC
	`, activityArgs(scope, since)...)
}

func (s *PostgresStore) RecentChatbots(ctx context.Context, scope ActivityScope, since time.Time) ([]Chatbot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatbotColumns+`
		FROM chatbots cb JOIN projects p ON p.id = cb.project_id
		WHERE cb.project_id IN (`+ownedProjects+`)
			AND (cb.created_at >= $2 OR cb.updated_at >= $2)
			AND ($3 = '' OR p.end_client_id::text = $3)
			AND ($4 = '' OR cb.project_id::text = $4)
		ORDER BY cb.updated_at DESC
	`, activityArgs(scope, since)...)
	if err != nil {
		return nil, fmt.Errorf("recent chatbots: %w", err)
	}
	defer rows.Close()

	items := make([]Chatbot, 0)
	for rows.Next() {
		item, err := scanChatbot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chatbot: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chatbots: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RecentLeads(ctx context.Context, scope ActivityScope, since time.Time) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads l
		JOIN chatbots cb ON cb.id = l.chatbot_id
		JOIN projects p ON p.id = cb.project_id
		WHERE cb.project_id IN (`+ownedProjects+`)
			AND (l.created_at >= $2 OR l.updated_at >= $2)
			AND ($3 = '' OR p.end_client_id::text = $3)
			AND ($4 = '' OR cb.project_id::text = $4)
		ORDER BY l.updated_at DESC
	`, activityArgs(scope, since)...)
	if err != nil {
		return nil, fmt.Errorf("recent leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RecentRequests(ctx context.Context, scope ActivityScope, since time.Time) ([]Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM requests r JOIN projects p ON p.id = r.project_id
		WHERE r.end_client_id IN (`+ownedClients+`)
			AND (r.created_at >= $2 OR r.updated_at >= $2)
			AND ($3 = '' OR r.end_client_id::text = $3)
			AND ($4 = '' OR r.project_id::text = $4)
		ORDER BY r.updated_at DESC
	`, activityArgs(scope, since)...)
}

func (s *PostgresStore) RecentAnalytics(ctx context.Context, scope ActivityScope, since time.Time) ([]Analytics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.project_id, a.date, a.metric_type, a.metric_value::float8, a.metadata, a.created_at
		FROM analytics a JOIN projects p ON p.id = a.project_id
		WHERE a.project_id IN (`+ownedProjects+`)
			AND a.created_at >= $2
			AND ($3 = '' OR p.end_client_id::text = $3)
			AND ($4 = '' OR a.project_id::text = $4)
		ORDER BY a.created_at DESC
	`, activityArgs(scope, since)...)
	if err != nil {
		return nil, fmt.Errorf("recent analytics: %w", err)
	}
	defer rows.Close()

	items := make([]Analytics, 0)
	for rows.Next() {
		var item Analytics
		var metadata []byte
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Date, &item.MetricType, &item.MetricValue, &metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		item.Metadata = metadata
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	return items, nil
}
