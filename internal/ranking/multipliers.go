package ranking

// StockMultiplier boosts rows that are in stock and demotes rows that are not.
type StockMultiplier struct {
	config *RankingConfig
}

// NewStockMultiplier creates a new StockMultiplier.
func NewStockMultiplier(config *RankingConfig) *StockMultiplier {
	return &StockMultiplier{config: config}
}

// Name returns the multiplier name.
func (m *StockMultiplier) Name() string {
	return "stock"
}

// Multiply applies the stock multiplier when the row carries a boolean inStock field.
func (m *StockMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	inStock, ok := ctx.Row.Bool(FieldInStock)
	if !ok {
		return score
	}
	if inStock {
		return score * m.config.InStockMultiplier
	}
	return score * m.config.OutOfStockMultiplier
}

// RatingMultiplier scales the score by RatingBase + rating/RatingDivisor.
type RatingMultiplier struct {
	config *RankingConfig
}

// NewRatingMultiplier creates a new RatingMultiplier.
func NewRatingMultiplier(config *RankingConfig) *RatingMultiplier {
	return &RatingMultiplier{config: config}
}

// Name returns the multiplier name.
func (m *RatingMultiplier) Name() string {
	return "rating"
}

// Multiply applies the rating multiplier when the row carries a numeric rating.
func (m *RatingMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	rating, ok := ctx.Row.Number(FieldRating)
	if !ok {
		return score
	}
	return score * CalculateRatingMultiplier(rating, m.config)
}

// CalculateRatingMultiplier is a helper for the rating factor without a scoring context.
func CalculateRatingMultiplier(rating float64, config *RankingConfig) float64 {
	return config.RatingBase + rating/config.RatingDivisor
}

// FieldTermMultiplier boosts rows whose field value contains any query term.
type FieldTermMultiplier struct {
	name   string
	field  string
	factor float64
}

// NewFieldTermMultiplier creates a multiplier applying factor when field shares a query term.
func NewFieldTermMultiplier(name, field string, factor float64) *FieldTermMultiplier {
	return &FieldTermMultiplier{name: name, field: field, factor: factor}
}

// Name returns the multiplier name.
func (m *FieldTermMultiplier) Name() string {
	return m.name
}

// Multiply applies the factor when the row's field contains any query term as a substring.
func (m *FieldTermMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	if ctx.Query == nil {
		return score
	}
	value, ok := ctx.Row.String(m.field)
	if !ok || !ContainsAnyTerm(ctx.Query.Terms, value) {
		return score
	}
	return score * m.factor
}

// DefaultMultipliers returns the standard multipliers in application order:
// stock, rating, category, status, payment method.
func DefaultMultipliers(config *RankingConfig) []Multiplier {
	return []Multiplier{
		NewStockMultiplier(config),
		NewRatingMultiplier(config),
		NewFieldTermMultiplier("category", FieldCategory, config.CategoryMultiplier),
		NewFieldTermMultiplier("status", FieldStatus, config.StatusMultiplier),
		NewFieldTermMultiplier("payment_method", FieldPaymentMethod, config.PaymentMultiplier),
	}
}
