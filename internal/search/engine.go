// Package search runs the query pipeline: embed the query, collect vector candidates,
// enrich them with stored rows, and rank them.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/embedding"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/ranking"
	"github.com/hyperjump/dreamdb/internal/rowkey"
	"github.com/hyperjump/dreamdb/internal/storage"
	"github.com/hyperjump/dreamdb/internal/vector"
)

// Engine answers free-text queries over indexed rows.
type Engine struct {
	rows     storage.RowStore
	embedder embedding.Embedder
	index    *vector.Store
	ranker   *ranking.Ranker
	config   *config.SearchConfig
	logger   *zap.Logger
}

// NewEngine creates a search engine with the given dependencies. A nil ranker uses the
// default ranking configuration; a nil logger discards logs.
func NewEngine(
	rows storage.RowStore,
	embedder embedding.Embedder,
	index *vector.Store,
	ranker *ranking.Ranker,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if ranker == nil {
		ranker = ranking.NewRanker(nil)
	}
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rows:     rows,
		embedder: embedder,
		index:    index,
		ranker:   ranker,
		config:   cfg,
		logger:   logger,
	}
}

// group is the set of vector hits belonging to one table.
type group struct {
	table string
	ids   []string
	score map[string]float64
}

// Search runs the query pipeline and returns at most query.Limit results, ordered by
// adjusted score and then composite key. A table whose rows cannot be fetched is dropped
// from the result and listed in DegradedTables instead of failing the query.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}

	queryVec, err := e.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, embedding.AsUpstream("embed query", err)
	}

	searchOpts := []vector.SearchOption{vector.WithTopK(query.Limit * e.overfetch())}
	if len(query.Tables) > 0 {
		// restrict the scan itself so other tables cannot take every candidate slot
		searchOpts = append(searchOpts, vector.WithIDFilter(tableFilter(query.Tables)))
	}
	hits, err := e.index.Search(ctx, queryVec, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	groups := e.groupHits(hits, query.Tables)
	candidates, degraded := e.fetchGroups(ctx, groups)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var filters ranking.Filters
	if !query.DisableFilters {
		filters = ranking.DetectFilters(query.Query)
	}
	results := e.ranker.RankCandidates(e.ranker.AnalyzeQuery(query.Query), filters, candidates)
	ranking.SortResults(results)
	results = ranking.FilterByMinScore(results, query.MinScore)
	total := len(results)
	results = ranking.TopN(results, query.Limit)

	response := &models.SearchResponse{
		Results:        results,
		Total:          total,
		Candidates:     len(hits),
		QueryTime:      time.Since(startTime).Milliseconds(),
		Query:          query.Query,
		DegradedTables: degraded,
	}
	if !filters.Empty() {
		response.Filters = map[string]any(filters)
	}
	e.logger.Debug("search completed",
		zap.String("query", query.Query),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(results)),
		zap.Strings("degraded_tables", degraded),
		zap.Int64("took_ms", response.QueryTime))
	return response, nil
}

func (e *Engine) overfetch() int {
	if e.config.Overfetch > 0 {
		return e.config.Overfetch
	}
	return 3
}

func (e *Engine) fetchConcurrency() int {
	if e.config.FetchConcurrency > 0 {
		return e.config.FetchConcurrency
	}
	return 4
}

// tableFilter accepts composite keys belonging to one of tables.
func tableFilter(tables []string) func(id string) bool {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return func(id string) bool {
		key, err := rowkey.Parse(id)
		return err == nil && allowed[key.Table]
	}
}

// groupHits parses candidate ids and groups them by table, keeping only tables in allow
// when it is non-empty. Ids that are not composite keys are dropped.
func (e *Engine) groupHits(hits []vector.Candidate, allow []string) []*group {
	allowed := make(map[string]bool, len(allow))
	for _, t := range allow {
		allowed[t] = true
	}
	byTable := make(map[string]*group)
	var groups []*group
	for _, h := range hits {
		key, err := rowkey.Parse(h.ID)
		if err != nil {
			e.logger.Warn("skipping vector with malformed key", zap.String("id", h.ID), zap.Error(err))
			continue
		}
		if len(allowed) > 0 && !allowed[key.Table] {
			continue
		}
		g, ok := byTable[key.Table]
		if !ok {
			g = &group{table: key.Table, score: make(map[string]float64)}
			byTable[key.Table] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, key.RowID)
		g.score[key.RowID] = h.Score
	}
	return groups
}

// fetchGroups resolves each group's rows concurrently. Failed groups are logged and
// reported by table name; rows that no longer exist are dropped.
func (e *Engine) fetchGroups(ctx context.Context, groups []*group) ([]ranking.Candidate, []string) {
	fetched := make([][]ranking.Candidate, len(groups))
	var (
		mu       sync.Mutex
		degraded []string
	)

	var g errgroup.Group
	g.SetLimit(e.fetchConcurrency())
	for i, grp := range groups {
		g.Go(func() error {
			rows, err := e.rows.FetchRowsByIDs(ctx, grp.table, grp.ids)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("row fetch failed, dropping table from results",
						zap.String("table", grp.table),
						zap.Int("candidates", len(grp.ids)),
						zap.Error(err))
					mu.Lock()
					degraded = append(degraded, grp.table)
					mu.Unlock()
				}
				return nil
			}
			out := make([]ranking.Candidate, 0, len(rows))
			for _, row := range rows {
				id := row.ID()
				score, ok := grp.score[id]
				if !ok {
					continue
				}
				out = append(out, ranking.Candidate{
					Key:       rowkey.Key{Table: grp.table, RowID: id},
					BaseScore: score,
					Row:       row,
				})
			}
			fetched[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var candidates []ranking.Candidate
	for _, c := range fetched {
		candidates = append(candidates, c...)
	}
	sort.Strings(degraded)
	return candidates, degraded
}
