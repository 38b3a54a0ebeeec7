package ranking

// LexicalScorer adds weight for query terms found in a row's text fields.
type LexicalScorer struct {
	config *RankingConfig
}

// NewLexicalScorer creates a new LexicalScorer with the given config.
func NewLexicalScorer(config *RankingConfig) *LexicalScorer {
	return &LexicalScorer{config: config}
}

// Name returns the scorer name.
func (s *LexicalScorer) Name() string {
	return "lexical"
}

// Score calculates the summed lexical contribution over all configured text fields.
func (s *LexicalScorer) Score(ctx *ScoringContext) float64 {
	total, _, _ := s.ScoreFields(ctx)
	return total
}

// ScoreFields returns the total contribution, the contribution of every field that
// matched at least one term, and the strongest match seen.
//
// Per term and field: exact value match, whole-word match or substring match, in that
// order of precedence. The name field earns a flat bonus per matching term, and a field
// matched by more than one distinct term earns matchCount*SynergyBonus on top.
func (s *LexicalScorer) ScoreFields(ctx *ScoringContext) (float64, map[string]float64, MatchType) {
	fieldScores := make(map[string]float64)
	best := MatchTypeNone
	if ctx.Query == nil || ctx.Row == nil || len(ctx.Query.Terms) == 0 {
		return 0, fieldScores, best
	}

	total := 0.0
	for _, field := range s.config.TextFields {
		value, ok := ctx.Row.String(field)
		if !ok || value == "" {
			continue
		}
		fieldScore := 0.0
		matchCount := 0
		for _, term := range ctx.Query.Terms {
			match := MatchTerm(term, value)
			if match == MatchTypeNone {
				continue
			}
			fieldScore += s.weight(match)
			matchCount++
			if field == FieldName {
				fieldScore += s.config.NameFieldBonus
			}
			if match > best {
				best = match
			}
		}
		if matchCount > 1 {
			fieldScore += float64(matchCount) * s.config.SynergyBonus
		}
		if matchCount > 0 {
			fieldScores[field] = fieldScore
			total += fieldScore
		}
	}
	return total, fieldScores, best
}

func (s *LexicalScorer) weight(m MatchType) float64 {
	switch m {
	case MatchTypeExact:
		return s.config.ExactMatchWeight
	case MatchTypeWholeWord:
		return s.config.WholeWordMatchWeight
	case MatchTypeSubstring:
		return s.config.SubstringMatchWeight
	default:
		return 0
	}
}
