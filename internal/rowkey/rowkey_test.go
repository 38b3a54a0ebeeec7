package rowkey

import (
	"errors"
	"testing"
)

func TestKeyString(t *testing.T) {
	k, err := New("orders", "42")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if k.String() != "orders_42" {
		t.Errorf("String() = %q, want orders_42", k.String())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr error
	}{
		{"orders_42", Key{"orders", "42"}, nil},
		{"products_abc_def", Key{"products", "abc_def"}, nil},
		{"users_", Key{}, ErrEmptyRowID},
		{"_42", Key{}, ErrInvalidTable},
		{"orders42", Key{}, ErrNoSeparator},
		{"", Key{}, ErrNoSeparator},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) err = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// row ids containing the separator survive because the split is at the first underscore
	for _, id := range []string{"1", "a_b", "__x__", "uuid-1234"} {
		k, err := New("items", id)
		if err != nil {
			t.Fatalf("New(%q): %v", id, err)
		}
		back, err := Parse(k.String())
		if err != nil || back != k {
			t.Errorf("round trip %q: got %+v, %v", id, back, err)
		}
	}
}

func TestNew_rejectsAmbiguousTable(t *testing.T) {
	if _, err := New("order_items", "1"); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("expected ErrInvalidTable, got %v", err)
	}
	if _, err := New("", "1"); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("expected ErrInvalidTable for empty table, got %v", err)
	}
	if _, err := New("orders", ""); !errors.Is(err, ErrEmptyRowID) {
		t.Errorf("expected ErrEmptyRowID, got %v", err)
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := map[string]string{
		"Order_Items":  "order-items",
		" products ":   "products",
		"sales report": "sales-report",
	}
	for in, want := range tests {
		got := SanitizeTable(in)
		if got != want {
			t.Errorf("SanitizeTable(%q) = %q, want %q", in, got, want)
		}
		if err := ValidateTable(got); err != nil {
			t.Errorf("sanitized %q still invalid: %v", got, err)
		}
	}
}
