package ranking

import (
	"math"
	"testing"

	"github.com/hyperjump/dreamdb/internal/models"
)

func TestLexicalScorer_Score(t *testing.T) {
	config := DefaultRankingConfig()
	scorer := NewLexicalScorer(config)
	analyzer := NewQueryAnalyzer()

	tests := []struct {
		name  string
		query string
		row   models.Row
		want  float64
	}{
		{
			name:  "exact field match",
			query: "audio",
			row:   models.Row{"category": "Audio"},
			want:  0.5,
		},
		{
			name:  "substring match on name earns name bonus",
			query: "phone",
			row:   models.Row{"name": "Headphones"},
			want:  0.15 + 0.1,
		},
		{
			name:  "two terms in two fields with synergy",
			query: "wireless headphones",
			row: models.Row{
				"name":        "Wireless Headphones",
				"description": "Noise cancelling wireless headphones",
				"category":    "Audio",
			},
			// name: 2*(0.3+0.1) + 2*0.05; description: 2*0.3 + 2*0.05
			want: 0.9 + 0.7,
		},
		{
			name:  "fields outside the text set are ignored",
			query: "pending",
			row:   models.Row{"status": "pending"},
			want:  0,
		},
		{
			name:  "non-string values are ignored",
			query: "5",
			row:   models.Row{"name": 5},
			want:  0,
		},
		{
			name:  "no match",
			query: "xyz",
			row:   models.Row{"name": "Laptop", "brand": "Acme"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewScoringContext(analyzer.Analyze(tt.query), tt.row, 0)
			got := scorer.Score(ctx)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLexicalScorer_ScoreFields(t *testing.T) {
	scorer := NewLexicalScorer(DefaultRankingConfig())
	ctx := NewScoringContext(
		NewQueryAnalyzer().Analyze("acme laptop"),
		models.Row{"name": "Laptop Pro", "brand": "acme"},
		0.3,
	)

	total, fields, best := scorer.ScoreFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 matched fields, got %v", fields)
	}
	if math.Abs(fields["brand"]-0.5) > 1e-9 {
		t.Errorf("brand = %v, want 0.5", fields["brand"])
	}
	if math.Abs(fields["name"]-0.4) > 1e-9 {
		t.Errorf("name = %v, want 0.4", fields["name"])
	}
	if math.Abs(total-0.9) > 1e-9 {
		t.Errorf("total = %v, want 0.9", total)
	}
	if best != MatchTypeExact {
		t.Errorf("best = %v, want exact", best)
	}
}
