package ranking

import (
	"math"
	"sort"

	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/rowkey"
)

// Ranker combines the lexical scorer and the multipliers to rank rows.
type Ranker struct {
	config      *RankingConfig
	analyzer    *QueryAnalyzer
	lexical     *LexicalScorer
	multipliers []Multiplier
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()

	return &Ranker{
		config:      config,
		analyzer:    NewQueryAnalyzer(),
		lexical:     NewLexicalScorer(config),
		multipliers: DefaultMultipliers(config),
	}
}

// WithMultipliers sets custom multipliers.
func (r *Ranker) WithMultipliers(multipliers []Multiplier) *Ranker {
	r.multipliers = multipliers
	return r
}

// AnalyzeQuery parses and analyzes a query string.
func (r *Ranker) AnalyzeQuery(query string) *AnalyzedQuery {
	return r.analyzer.Analyze(query)
}

// Score calculates the adjusted score for a row: base score plus lexical contribution,
// then every multiplier in order, clamped to a minimum of zero.
func (r *Ranker) Score(query *AnalyzedQuery, row models.Row, baseScore float64) float64 {
	ctx := NewScoringContext(query, row, baseScore)
	return r.ScoreWithContext(ctx)
}

// ScoreWithContext calculates the adjusted score using a pre-built context.
func (r *Ranker) ScoreWithContext(ctx *ScoringContext) float64 {
	score := ctx.BaseScore + r.lexical.Score(ctx)
	for _, m := range r.multipliers {
		score = m.Multiply(ctx, score)
	}
	return clamp(score)
}

// ScoreWithBreakdown returns detailed scoring information.
func (r *Ranker) ScoreWithBreakdown(query *AnalyzedQuery, row models.Row, baseScore float64) *ScoreBreakdown {
	ctx := NewScoringContext(query, row, baseScore)
	breakdown := NewScoreBreakdown()
	breakdown.BaseScore = baseScore

	lexical, fields, best := r.lexical.ScoreFields(ctx)
	breakdown.LexicalScore = lexical
	breakdown.FieldScores = fields
	breakdown.BestMatch = best

	score := baseScore + lexical
	for _, m := range r.multipliers {
		prevScore := score
		score = m.Multiply(ctx, score)
		if prevScore != 0 {
			breakdown.Multipliers[m.Name()] = score / prevScore
		} else {
			breakdown.Multipliers[m.Name()] = 1.0
		}
	}
	breakdown.FinalScore = clamp(score)
	return breakdown
}

// Explain returns the human-readable explanation for a row.
func (r *Ranker) Explain(row models.Row, baseScore float64) string {
	return Explain(r.config, baseScore, row)
}

// Candidate is a vector hit that has been resolved to its stored row.
type Candidate struct {
	Key       rowkey.Key
	BaseScore float64
	Row       models.Row
}

// RankCandidates drops candidates rejected by filters and scores and explains the rest.
// The returned results are in input order; use SortResults to order them.
func (r *Ranker) RankCandidates(query *AnalyzedQuery, filters Filters, candidates []Candidate) []*models.RankedResult {
	results := make([]*models.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		if !filters.Matches(c.Row) {
			continue
		}
		results = append(results, &models.RankedResult{
			Key:         c.Key.String(),
			Table:       c.Key.Table,
			ID:          c.Key.RowID,
			Payload:     c.Row,
			Score:       r.Score(query, c.Row, c.BaseScore),
			BaseScore:   c.BaseScore,
			Explanation: r.Explain(c.Row, c.BaseScore),
		})
	}
	return results
}

// GetConfig returns the ranking configuration.
func (r *Ranker) GetConfig() *RankingConfig {
	return r.config
}

// SortResults orders results by score descending, breaking ties by composite key,
// and numbers them from 1.
func SortResults(results []*models.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// FilterByMinScore filters results below a minimum score.
func FilterByMinScore(results []*models.RankedResult, minScore float64) []*models.RankedResult {
	filtered := make([]*models.RankedResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// TopN returns the top N results.
func TopN(results []*models.RankedResult, n int) []*models.RankedResult {
	if n < 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

func clamp(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	return score
}
