package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	require.Len(t, ids, 10)
	require.Len(t, attn, 10)
	require.Len(t, types, 10)

	assert.EqualValues(t, clsTokenID, ids[0])
	assert.EqualValues(t, sepTokenID, ids[3])
	for i := 1; i <= 2; i++ {
		assert.Greater(t, ids[i], int64(sepTokenID), "word token %d", i)
		assert.Less(t, ids[i], int64(vocabSize), "word token %d", i)
	}
	assert.Equal(t, []int64{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}, attn)
}

func TestSimpleTokenizer_TruncatesLongText(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 5)
	assert.EqualValues(t, sepTokenID, ids[4], "SEP takes the last slot")
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, attn)
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"  a  b  c  ", []string{"a", "b", "c"}},
		{"name: Laptop; price: 999", []string{"name", "laptop", "price", "999"}},
		{"", nil},
		{"; :", nil},
	}
	for _, tt := range tests {
		got := SplitWords(tt.in)
		if tt.want == nil {
			assert.Empty(t, got, "SplitWords(%q)", tt.in)
			continue
		}
		assert.Equal(t, tt.want, got, "SplitWords(%q)", tt.in)
	}
}

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	// FNV-1a offset basis
	assert.Equal(t, uint32(2166136261), HashString(""))
}
