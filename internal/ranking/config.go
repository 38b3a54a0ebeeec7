package ranking

// Row fields the ranking layer knows about.
const (
	FieldName          = "name"
	FieldDescription   = "description"
	FieldTitle         = "title"
	FieldCategory      = "category"
	FieldBrand         = "brand"
	FieldInStock       = "inStock"
	FieldRating        = "rating"
	FieldStatus        = "status"
	FieldPaymentMethod = "paymentMethod"
)

// RankingConfig holds all configuration for the ranking system.
type RankingConfig struct {
	// TextFields are the row fields scanned for lexical matches.
	TextFields []string `yaml:"text_fields"` // default: name, description, title, category, brand

	// Lexical scoring values, added per matching term and field
	ExactMatchWeight     float64 `yaml:"exact_match_weight"`      // default: 0.5
	WholeWordMatchWeight float64 `yaml:"whole_word_match_weight"` // default: 0.3
	SubstringMatchWeight float64 `yaml:"substring_match_weight"`  // default: 0.15
	NameFieldBonus       float64 `yaml:"name_field_bonus"`        // default: 0.1
	SynergyBonus         float64 `yaml:"synergy_bonus"`           // default: 0.05 per matching term

	// Multipliers
	InStockMultiplier    float64 `yaml:"in_stock_multiplier"`     // default: 1.15
	OutOfStockMultiplier float64 `yaml:"out_of_stock_multiplier"` // default: 0.8
	RatingBase           float64 `yaml:"rating_base"`             // default: 0.95
	RatingDivisor        float64 `yaml:"rating_divisor"`          // default: 20
	CategoryMultiplier   float64 `yaml:"category_multiplier"`     // default: 1.25
	StatusMultiplier     float64 `yaml:"status_multiplier"`       // default: 1.3
	PaymentMultiplier    float64 `yaml:"payment_multiplier"`      // default: 1.3

	// Explanation thresholds
	ExcellentMatchThreshold float64 `yaml:"excellent_match_threshold"` // default: 0.7
	GoodMatchThreshold      float64 `yaml:"good_match_threshold"`      // default: 0.4
	HighRatingThreshold     float64 `yaml:"high_rating_threshold"`     // default: 4.5
	WellRatedThreshold      float64 `yaml:"well_rated_threshold"`      // default: 4.0
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		TextFields: []string{FieldName, FieldDescription, FieldTitle, FieldCategory, FieldBrand},

		ExactMatchWeight:     0.5,
		WholeWordMatchWeight: 0.3,
		SubstringMatchWeight: 0.15,
		NameFieldBonus:       0.1,
		SynergyBonus:         0.05,

		InStockMultiplier:    1.15,
		OutOfStockMultiplier: 0.8,
		RatingBase:           0.95,
		RatingDivisor:        20,
		CategoryMultiplier:   1.25,
		StatusMultiplier:     1.3,
		PaymentMultiplier:    1.3,

		ExcellentMatchThreshold: 0.7,
		GoodMatchThreshold:      0.4,
		HighRatingThreshold:     4.5,
		WellRatedThreshold:      4.0,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	defaults := DefaultRankingConfig()

	if len(c.TextFields) == 0 {
		c.TextFields = defaults.TextFields
	}

	// Lexical scoring
	if c.ExactMatchWeight == 0 {
		c.ExactMatchWeight = defaults.ExactMatchWeight
	}
	if c.WholeWordMatchWeight == 0 {
		c.WholeWordMatchWeight = defaults.WholeWordMatchWeight
	}
	if c.SubstringMatchWeight == 0 {
		c.SubstringMatchWeight = defaults.SubstringMatchWeight
	}
	if c.NameFieldBonus == 0 {
		c.NameFieldBonus = defaults.NameFieldBonus
	}
	if c.SynergyBonus == 0 {
		c.SynergyBonus = defaults.SynergyBonus
	}

	// Multipliers
	if c.InStockMultiplier == 0 {
		c.InStockMultiplier = defaults.InStockMultiplier
	}
	if c.OutOfStockMultiplier == 0 {
		c.OutOfStockMultiplier = defaults.OutOfStockMultiplier
	}
	if c.RatingBase == 0 {
		c.RatingBase = defaults.RatingBase
	}
	if c.RatingDivisor == 0 {
		c.RatingDivisor = defaults.RatingDivisor
	}
	if c.CategoryMultiplier == 0 {
		c.CategoryMultiplier = defaults.CategoryMultiplier
	}
	if c.StatusMultiplier == 0 {
		c.StatusMultiplier = defaults.StatusMultiplier
	}
	if c.PaymentMultiplier == 0 {
		c.PaymentMultiplier = defaults.PaymentMultiplier
	}

	// Explanation
	if c.ExcellentMatchThreshold == 0 {
		c.ExcellentMatchThreshold = defaults.ExcellentMatchThreshold
	}
	if c.GoodMatchThreshold == 0 {
		c.GoodMatchThreshold = defaults.GoodMatchThreshold
	}
	if c.HighRatingThreshold == 0 {
		c.HighRatingThreshold = defaults.HighRatingThreshold
	}
	if c.WellRatedThreshold == 0 {
		c.WellRatedThreshold = defaults.WellRatedThreshold
	}
}
