package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const ownedChatbots = `SELECT cb.id FROM chatbots cb WHERE cb.project_id IN (` + ownedProjects + `)`

const chatbotColumns = `cb.id, cb.project_id, cb.name, cb.status, cb.statistics, p.title, cb.created_at, cb.updated_at`

func scanChatbot(row interface{ Scan(...any) error }) (Chatbot, error) {
	var item Chatbot
	var statistics []byte
	err := row.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Status, &statistics, &item.ProjectTitle, &item.CreatedAt, &item.UpdatedAt)
	item.Statistics = json.RawMessage(statistics)
	return item, err
}

func (s *PostgresStore) ListChatbots(ctx context.Context, userID string) ([]Chatbot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatbotColumns+`
		FROM chatbots cb JOIN projects p ON p.id = cb.project_id
		WHERE cb.project_id IN (`+ownedProjects+`)
		ORDER BY cb.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
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

func (s *PostgresStore) CountChatbots(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chatbots WHERE project_id IN (`+ownedProjects+`)`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chatbots: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateChatbot(ctx context.Context, userID string, item Chatbot) (Chatbot, error) {
	return scanChatbot(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO chatbots (project_id, name, status, statistics)
			SELECT p.id, $3, $4, $5::jsonb FROM projects p
			WHERE p.id = $2 AND p.id IN (`+ownedProjects+`)
			RETURNING *
		)
		SELECT `+chatbotColumns+`
		FROM inserted cb JOIN projects p ON p.id = cb.project_id
	`, userID, item.ProjectID, item.Name, item.Status, jsonOrEmpty(item.Statistics)))
}

func (s *PostgresStore) UpdateChatbot(ctx context.Context, userID string, item Chatbot) (Chatbot, error) {
	return scanChatbot(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE chatbots SET name=$3, status=$4, statistics=$5::jsonb
			WHERE id = $2 AND project_id IN (`+ownedProjects+`)
			RETURNING *
		)
		SELECT `+chatbotColumns+`
		FROM updated cb JOIN projects p ON p.id = cb.project_id
	`, userID, item.ID, item.Name, item.Status, jsonOrEmpty(item.Statistics)))
}

const leadColumns = `l.id, l.chatbot_id, l.visitor_name, l.visitor_email, l.question_asked, l.lead_score, l.status, cb.name, cb.project_id, l.created_at, l.updated_at`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var item Lead
	err := row.Scan(&item.ID, &item.ChatbotID, &item.VisitorName, &item.VisitorEmail, &item.QuestionAsked, &item.LeadScore, &item.Status, &item.ChatbotName, &item.ProjectID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// ListLeads returns the creator's leads, optionally filtered by status.
func (s *PostgresStore) ListLeads(ctx context.Context, userID, status string) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads l JOIN chatbots cb ON cb.id = l.chatbot_id
		WHERE l.chatbot_id IN (`+ownedChatbots+`)
			AND ($2 = '' OR l.status = $2)
		ORDER BY l.created_at DESC
	`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
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

func (s *PostgresStore) GetLead(ctx context.Context, userID, leadID string) (Lead, error) {
	return scanLead(s.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads l JOIN chatbots cb ON cb.id = l.chatbot_id
		WHERE l.id = $2 AND l.chatbot_id IN (`+ownedChatbots+`)
	`, userID, leadID))
}

func (s *PostgresStore) SetLeadStatus(ctx context.Context, userID, leadID, status string) (Lead, error) {
	return scanLead(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE leads SET status=$3
			WHERE id = $2 AND chatbot_id IN (`+ownedChatbots+`)
			RETURNING *
		)
		SELECT `+leadColumns+`
		FROM updated l JOIN chatbots cb ON cb.id = l.chatbot_id
	`, userID, leadID, status))
}

// InsertLead records a lead captured by the chatbot backend. An unknown
// chatbot yields sql.ErrNoRows.
func (s *PostgresStore) InsertLead(ctx context.Context, item Lead) (Lead, error) {
	return scanLead(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO leads (chatbot_id, visitor_name, visitor_email, question_asked, lead_score)
			SELECT cb.id, $2, $3, $4, $5 FROM chatbots cb WHERE cb.id = $1
			RETURNING *
		)
		SELECT `+leadColumns+`
		FROM inserted l JOIN chatbots cb ON cb.id = l.chatbot_id
	`, item.ChatbotID, item.VisitorName, item.VisitorEmail, item.QuestionAsked, item.LeadScore))
}

// InsertAnalytics appends a metric row. A views metric also bumps the
// project's running view counter in the same transaction.
func (s *PostgresStore) InsertAnalytics(ctx context.Context, item Analytics) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin analytics tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO analytics (project_id, date, metric_type, metric_value, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id
	`, item.ProjectID, item.Date, item.MetricType, item.MetricValue, jsonOrEmpty(item.Metadata)).Scan(&id); err != nil {
		return "", fmt.Errorf("insert analytics: %w", err)
	}

	if item.MetricType == "views" {
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET views = views + $2 WHERE id = $1`, item.ProjectID, int64(item.MetricValue)); err != nil {
			return "", fmt.Errorf("increment project views: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit analytics: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListAnalytics(ctx context.Context, userID, projectID string, from, to time.Time) ([]Analytics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.project_id, a.date, a.metric_type, a.metric_value::float8, a.metadata, a.created_at
		FROM analytics a
		WHERE a.project_id = $2 AND a.project_id IN (`+ownedProjects+`)
			AND a.date BETWEEN $3 AND $4
		ORDER BY a.date ASC, a.created_at ASC
	`, userID, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list analytics: %w", err)
	}
	defer rows.Close()

	items := make([]Analytics, 0)
	for rows.Next() {
		var item Analytics
		var metadata []byte
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Date, &item.MetricType, &item.MetricValue, &metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		item.Metadata = json.RawMessage(metadata)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MetricTotals(ctx context.Context, userID, projectID string, from, to time.Time) ([]MetricTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.metric_type, COALESCE(SUM(a.metric_value), 0)::float8, COUNT(*)
		FROM analytics a
		WHERE a.project_id = $2 AND a.project_id IN (`+ownedProjects+`)
			AND a.date BETWEEN $3 AND $4
		GROUP BY a.metric_type
		ORDER BY a.metric_type
	`, userID, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("metric totals: %w", err)
	}
	defer rows.Close()

	items := make([]MetricTotal, 0)
	for rows.Next() {
		var item MetricTotal
		if err := rows.Scan(&item.MetricType, &item.Total, &item.Samples); err != nil {
			return nil, fmt.Errorf("scan metric total: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric totals: %w", err)
	}
	return items, nil
}

const requestColumns = `r.id, r.project_id, r.end_client_id, r.title, r.description, r.request_type, r.status, r.priority, p.title, r.created_at, r.updated_at`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var item Request
	err := row.Scan(&item.ID, &item.ProjectID, &item.EndClientID, &item.Title, &item.Description, &item.RequestType, &item.Status, &item.Priority, &item.ProjectTitle, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]Request, 0)
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, userID, status string) ([]Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM requests r JOIN projects p ON p.id = r.project_id
		WHERE r.end_client_id IN (`+ownedClients+`)
			AND ($2 = '' OR r.status = $2)
		ORDER BY r.created_at DESC
	`, userID, status)
}

func (s *PostgresStore) ListClientRequests(ctx context.Context, endClientID string) ([]Request, error) {
	return s.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM requests r JOIN projects p ON p.id = r.project_id
		WHERE r.end_client_id = $1
		ORDER BY r.created_at DESC
	`, endClientID)
}

func (s *PostgresStore) GetRequest(ctx context.Context, userID, requestID string) (Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests r JOIN projects p ON p.id = r.project_id
		WHERE r.id = $2 AND r.end_client_id IN (`+ownedClients+`)
	`, userID, requestID))
}

func (s *PostgresStore) SetRequestStatus(ctx context.Context, userID, requestID, status string) (Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE requests SET status=$3
			WHERE id = $2 AND end_client_id IN (`+ownedClients+`)
			RETURNING *
		)
		SELECT `+requestColumns+`
		FROM updated r JOIN projects p ON p.id = r.project_id
	`, userID, requestID, status))
}

// CreateClientRequest files a change request on one of the client's own
// projects. A project outside the client yields sql.ErrNoRows.
func (s *PostgresStore) CreateClientRequest(ctx context.Context, endClientID string, item Request) (Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO requests (project_id, end_client_id, title, description, request_type, priority)
			SELECT p.id, p.end_client_id, $3, $4, $5, $6 FROM projects p
			WHERE p.id = $2 AND p.end_client_id = $1
			RETURNING *
		)
		SELECT `+requestColumns+`
		FROM inserted r JOIN projects p ON p.id = r.project_id
	`, endClientID, item.ProjectID, item.Title, item.Description, item.RequestType, item.Priority))
}

const assetColumns = `a.id, a.creator_id, a.project_id, a.file_name, a.file_url, a.file_type, a.file_size, a.storage_key, a.created_at`

func scanAsset(row interface{ Scan(...any) error }) (Asset, error) {
	var item Asset
	err := row.Scan(&item.ID, &item.CreatorID, &item.ProjectID, &item.FileName, &item.FileURL, &item.FileType, &item.FileSize, &item.StorageKey, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) ListAssets(ctx context.Context, userID, projectID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets a
		WHERE a.creator_id IN (`+ownedCreator+`)
			AND ($2 = '' OR a.project_id::text = $2)
		ORDER BY a.created_at DESC
	`, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	items := make([]Asset, 0)
	for rows.Next() {
		item, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return items, nil
}

// InsertAsset stores upload metadata. A project id, when given, must belong
// to the creator.
func (s *PostgresStore) InsertAsset(ctx context.Context, userID string, item Asset) (Asset, error) {
	return scanAsset(s.db.QueryRowContext(ctx, `
		INSERT INTO assets AS a (id, creator_id, project_id, file_name, file_url, file_type, file_size, storage_key)
		SELECT $2, c.id, $3, $4, $5, $6, $7, $8 FROM creators c
		WHERE c.user_id = $1
			AND ($3::uuid IS NULL OR $3::uuid IN (`+ownedProjects+`))
		RETURNING `+assetColumns+`
	`, userID, item.ID, item.ProjectID, item.FileName, item.FileURL, item.FileType, item.FileSize, item.StorageKey))
}

// DeleteAsset removes the row and returns it so the object can be removed too.
func (s *PostgresStore) DeleteAsset(ctx context.Context, userID, assetID string) (Asset, error) {
	return scanAsset(s.db.QueryRowContext(ctx, `
		DELETE FROM assets AS a
		WHERE a.id = $2 AND a.creator_id IN (`+ownedCreator+`)
		RETURNING `+assetColumns+`
	`, userID, assetID))
}

func (s *PostgresStore) InsertSupportRequest(ctx context.Context, userID string, item SupportRequest) (SupportRequest, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO support_requests (creator_id, subject, message)
		SELECT id, $2, $3 FROM creators WHERE user_id = $1
		RETURNING id, creator_id, subject, message, status, created_at
	`, userID, item.Subject, item.Message).Scan(&item.ID, &item.CreatorID, &item.Subject, &item.Message, &item.Status, &item.CreatedAt)
	if err != nil {
		return SupportRequest{}, err
	}
	return item, nil
}

const contactColumns = `c.id, u.id, u.email, u.display_name, c.agency_name`

func scanContact(row interface{ Scan(...any) error }) (CreatorContact, error) {
	var item CreatorContact
	err := row.Scan(&item.CreatorID, &item.UserID, &item.Email, &item.DisplayName, &item.AgencyName)
	return item, err
}

// ContactForChatbot finds the creator who owns a chatbot.
func (s *PostgresStore) ContactForChatbot(ctx context.Context, chatbotID string) (CreatorContact, error) {
	return scanContact(s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM chatbots cb
		JOIN projects p ON p.id = cb.project_id
		JOIN end_clients ec ON ec.id = p.end_client_id
		JOIN creators c ON c.id = ec.creator_id
		JOIN users u ON u.id = c.user_id
		WHERE cb.id = $1
	`, chatbotID))
}

// ContactForClient finds the creator who owns an end client.
func (s *PostgresStore) ContactForClient(ctx context.Context, endClientID string) (CreatorContact, error) {
	return scanContact(s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM end_clients ec
		JOIN creators c ON c.id = ec.creator_id
		JOIN users u ON u.id = c.user_id
		WHERE ec.id = $1
	`, endClientID))
}

func jsonOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
