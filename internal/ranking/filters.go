package ranking

import (
	"strings"

	"github.com/hyperjump/dreamdb/internal/models"
)

// Filters maps a row field to the value a row must carry to be kept.
// A row without the field is always kept.
type Filters map[string]any

type keywordRule struct {
	keywords []string
	value    any
}

// Rules are checked in order and the first matching rule of each field wins.
// "out of stock" must precede "in stock", which it contains.
var (
	stockRules = []keywordRule{
		{[]string{"out of stock", "unavailable"}, false},
		{[]string{"in stock", "available"}, true},
	}
	statusRules = []keywordRule{
		{[]string{"delivered"}, "delivered"},
		{[]string{"pending"}, "pending"},
		{[]string{"cancelled", "canceled"}, "cancelled"},
		{[]string{"shipped", "shipping"}, "shipped"},
	}
	paymentRules = []keywordRule{
		{[]string{"paypal"}, "paypal"},
		{[]string{"credit card", "card"}, "credit card"},
	}
)

// DetectFilters derives structured filters from free query text using case-insensitive
// substring checks.
func DetectFilters(query string) Filters {
	lower := strings.ToLower(query)
	filters := Filters{}
	detect := func(field string, rules []keywordRule) {
		for _, rule := range rules {
			for _, kw := range rule.keywords {
				if strings.Contains(lower, kw) {
					filters[field] = rule.value
					return
				}
			}
		}
	}
	detect(FieldInStock, stockRules)
	detect(FieldStatus, statusRules)
	detect(FieldPaymentMethod, paymentRules)
	return filters
}

// Matches reports whether row satisfies every filter. Fields missing from the row
// (or null) never disqualify it.
func (f Filters) Matches(row models.Row) bool {
	for field, want := range f {
		got, ok := row[field]
		if !ok || got == nil {
			continue
		}
		if normalizeFilterValue(got) != normalizeFilterValue(want) {
			return false
		}
	}
	return true
}

// Empty reports whether no filter was detected.
func (f Filters) Empty() bool {
	return len(f) == 0
}

// normalizeFilterValue lowercases, treats '_' and '-' as spaces and folds the
// American spelling of cancelled, so "Credit_Card" equals "credit card".
func normalizeFilterValue(v any) string {
	s := strings.ToLower(strings.TrimSpace(models.FormatValue(v)))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "canceled" {
		s = "cancelled"
	}
	return s
}
