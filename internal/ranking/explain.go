package ranking

import (
	"strings"

	"github.com/hyperjump/dreamdb/internal/models"
)

// Explain describes a result for humans: the semantic-match tier of the base score
// followed by notes about stock and rating. It never influences ordering.
func Explain(config *RankingConfig, baseScore float64, row models.Row) string {
	parts := []string{matchTier(config, baseScore)}

	if inStock, ok := row.Bool(FieldInStock); ok && !inStock {
		parts = append(parts, "currently out of stock")
	}
	if rating, ok := row.Number(FieldRating); ok {
		switch {
		case rating > config.HighRatingThreshold:
			parts = append(parts, "highly rated product")
		case rating > config.WellRatedThreshold:
			parts = append(parts, "well-rated product")
		}
	}
	return strings.Join(parts, ", ")
}

func matchTier(config *RankingConfig, baseScore float64) string {
	switch {
	case baseScore > config.ExcellentMatchThreshold:
		return "excellent semantic match"
	case baseScore > config.GoodMatchThreshold:
		return "good semantic match"
	default:
		return "partial semantic match"
	}
}
