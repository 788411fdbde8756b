package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Vectors are computed per query; the tables carry no stored tsvector.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	tsQuery       = "plainto_tsquery('english', $1)"
	projectVector = "to_tsvector('english', p.title || ' ' || coalesce(p.description, '') || ' ' || ec.name)"
	clientVector  = "to_tsvector('english', ec.name || ' ' || coalesce(ec.company, '') || ' ' || coalesce(ec.email, ''))"
	leadVector    = "to_tsvector('english', coalesce(l.visitor_name, '') || ' ' || coalesce(l.visitor_email, '') || ' ' || coalesce(l.question_asked, ''))"
)

// Search executes a UNION ALL across projects, end_clients and leads owned by
// the creator ($2), ranked by ts_rank with ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.CreatorID == "" {
		return nil, 0, nil
	}

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultProject {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id::text AS id, p.title,
				ts_headline('english', coalesce(p.description, ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id::text AS project_id, ec.id::text AS client_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM projects p
			JOIN end_clients ec ON ec.id = p.end_client_id
			WHERE ec.creator_id::text = $2 AND %[2]s @@ %[1]s`, tsQuery, projectVector))
	}
	if q.FilterType == "" || q.FilterType == ResultClient {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'client'::text AS type, ec.id::text AS id, ec.name AS title,
				ts_headline('english', coalesce(ec.company, '') || ' ' || coalesce(ec.email, ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS project_id, ec.id::text AS client_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM end_clients ec
			WHERE ec.creator_id::text = $2 AND %[2]s @@ %[1]s`, tsQuery, clientVector))
	}
	if q.FilterType == "" || q.FilterType == ResultLead {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'lead'::text AS type, l.id::text AS id, coalesce(nullif(l.visitor_name, ''), l.visitor_email, '') AS title,
				ts_headline('english', coalesce(l.question_asked, ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id::text AS project_id, ec.id::text AS client_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM leads l
			JOIN chatbots cb ON cb.id = l.chatbot_id
			JOIN projects p ON p.id = cb.project_id
			JOIN end_clients ec ON ec.id = p.end_client_id
			WHERE ec.creator_id::text = $2 AND %[2]s @@ %[1]s`, tsQuery, leadVector))
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, client_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, defaultLimit(q.Limit), offset)

	args := []any{q.Text, q.CreatorID}

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.ClientID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []ClientRecord, []LeadRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.description, p.status, ec.id, ec.name, ec.creator_id
		FROM projects p
		JOIN end_clients ec ON ec.id = p.end_client_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var r ProjectRecord
		if err := projectRows.Scan(&r.ID, &r.Title, &r.Description, &r.Status, &r.ClientID, &r.ClientName, &r.CreatorID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, r)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	clientRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, company, status, creator_id
		FROM end_clients
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load clients: %w", err)
	}
	defer clientRows.Close()

	clients := make([]ClientRecord, 0)
	for clientRows.Next() {
		var r ClientRecord
		if err := clientRows.Scan(&r.ID, &r.Name, &r.Email, &r.Company, &r.Status, &r.CreatorID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, r)
	}
	if err := clientRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate clients: %w", err)
	}

	leadRows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.visitor_name, l.visitor_email, l.question_asked, cb.name, p.id, ec.creator_id
		FROM leads l
		JOIN chatbots cb ON cb.id = l.chatbot_id
		JOIN projects p ON p.id = cb.project_id
		JOIN end_clients ec ON ec.id = p.end_client_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load leads: %w", err)
	}
	defer leadRows.Close()

	leads := make([]LeadRecord, 0)
	for leadRows.Next() {
		var r LeadRecord
		if err := leadRows.Scan(&r.ID, &r.VisitorName, &r.VisitorEmail, &r.QuestionAsked, &r.ChatbotName, &r.ProjectID, &r.CreatorID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, r)
	}
	if err := leadRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate leads: %w", err)
	}

	return projects, clients, leads, nil
}
