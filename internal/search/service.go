package search

import (
	"context"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger.Named("search")}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS. A
// failing fallback degrades to an empty result.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(r ProjectRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexProjects([]ProjectRecord{r}); err != nil {
			s.logger.Warn("index project", zap.String("id", r.ID), zap.Error(err))
		}
	}()
}

// IndexClient indexes an end client (fire-and-forget to Meilisearch).
func (s *Service) IndexClient(r ClientRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexClients([]ClientRecord{r}); err != nil {
			s.logger.Warn("index client", zap.String("id", r.ID), zap.Error(err))
		}
	}()
}

// IndexLead indexes a lead (fire-and-forget to Meilisearch).
func (s *Service) IndexLead(r LeadRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexLeads([]LeadRecord{r}); err != nil {
			s.logger.Warn("index lead", zap.String("id", r.ID), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every searchable row from PostgreSQL into
// Meilisearch. Called once at startup when Meilisearch is reachable.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexing() || s.pgfts == nil {
		return
	}
	projects, clients, leads, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexProjects(projects); err != nil {
		s.logger.Warn("reindex projects", zap.Error(err))
	}
	if err := s.meili.IndexClients(clients); err != nil {
		s.logger.Warn("reindex clients", zap.Error(err))
	}
	if err := s.meili.IndexLeads(leads); err != nil {
		s.logger.Warn("reindex leads", zap.Error(err))
	}
	s.logger.Info("reindex complete",
		zap.Int("projects", len(projects)),
		zap.Int("clients", len(clients)),
		zap.Int("leads", len(leads)),
	)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
