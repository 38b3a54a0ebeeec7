// Package ranking provides row-aware ranking for vector search candidates.
package ranking

import (
	"github.com/hyperjump/dreamdb/internal/models"
)

// MatchType represents how a query term matched a field value.
type MatchType int

const (
	// MatchTypeNone indicates no match was found.
	MatchTypeNone MatchType = iota
	// MatchTypeSubstring indicates the term appears somewhere inside the value.
	MatchTypeSubstring
	// MatchTypeWholeWord indicates the term appears as a whole word in the value.
	MatchTypeWholeWord
	// MatchTypeExact indicates the value equals the term.
	MatchTypeExact
)

// String returns a string representation of the match type.
func (m MatchType) String() string {
	switch m {
	case MatchTypeNone:
		return "none"
	case MatchTypeSubstring:
		return "substring"
	case MatchTypeWholeWord:
		return "whole_word"
	case MatchTypeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// AnalyzedQuery holds the parsed form of a search query.
type AnalyzedQuery struct {
	// Original is the query text as given.
	Original string
	// Lower is the lowercased query, used for filter detection.
	Lower string
	// Terms are the distinct lowercase whitespace-separated tokens, in query order.
	Terms []string
}

// ScoringContext provides all the context needed for scoring a row.
type ScoringContext struct {
	// Query is the analyzed query.
	Query *AnalyzedQuery
	// Row is the row being scored.
	Row models.Row
	// BaseScore is the vector similarity of the row's embedding to the query.
	BaseScore float64
}

// NewScoringContext creates a ScoringContext from a query, row and base score.
func NewScoringContext(query *AnalyzedQuery, row models.Row, baseScore float64) *ScoringContext {
	return &ScoringContext{Query: query, Row: row, BaseScore: baseScore}
}

// Scorer is the interface for additive scoring components.
type Scorer interface {
	// Score calculates the contribution for a row given the scoring context.
	Score(ctx *ScoringContext) float64
	// Name returns the name of the scorer for debugging/logging.
	Name() string
}

// Multiplier is the interface for score multipliers.
type Multiplier interface {
	// Multiply applies a multiplier to the running score.
	Multiply(ctx *ScoringContext, score float64) float64
	// Name returns the name of the multiplier for debugging/logging.
	Name() string
}

// ScoreBreakdown provides detailed scoring information for debugging.
type ScoreBreakdown struct {
	// FinalScore is the computed, clamped score.
	FinalScore float64
	// BaseScore is the vector similarity the computation started from.
	BaseScore float64
	// LexicalScore is the sum of all field contributions.
	LexicalScore float64
	// FieldScores holds the lexical contribution of each matched field.
	FieldScores map[string]float64
	// Multipliers holds the applied multiplier factors, keyed by multiplier name.
	Multipliers map[string]float64
	// BestMatch is the strongest term match found in any field.
	BestMatch MatchType
}

// NewScoreBreakdown creates a new ScoreBreakdown instance.
func NewScoreBreakdown() *ScoreBreakdown {
	return &ScoreBreakdown{
		FieldScores: make(map[string]float64),
		Multipliers: make(map[string]float64),
	}
}
