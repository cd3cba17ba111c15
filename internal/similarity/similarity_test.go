package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{a: "", b: "", want: 0},
		{a: "abc", b: "", want: 3},
		{a: "kitten", b: "sitting", want: 3},
		{a: "NETTO", b: "netto", want: 0},
		{a: "Brødhus", b: "BRØDHUS", want: 0},
		{a: "flaw", b: "lawn", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, EditDistance(tt.a, tt.b))
			assert.Equal(t, tt.want, EditDistance(tt.b, tt.a), "distance must be symmetric")
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-9)
	assert.InDelta(t, 1.0, Similarity("Topdanmark", "TOPDANMARK"), 1e-9)
	assert.InDelta(t, 4.0/7.0, Similarity("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}

func TestSimilarity_Bounds(t *testing.T) {
	pairs := [][2]string{
		{"MC/VISA DK K BYENS BRØDHUS A", "BYENS BRØDHUS"},
		{"a", "bbbbbbbbbb"},
		{"Straße", "STRASSE"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestBestMatch(t *testing.T) {
	fields := []string{"date", "amount", "description"}

	got, ok := BestMatch("Descripton", fields, 0.7)
	assert.True(t, ok)
	assert.Equal(t, "description", got.Value)
	assert.Equal(t, 2, got.Index)

	_, ok = BestMatch("Saldo", fields, 0.7)
	assert.False(t, ok)

	_, ok = BestMatch("date", nil, 0)
	assert.False(t, ok)
}

func TestBestMatch_TieKeepsFirst(t *testing.T) {
	got, ok := BestMatch("ab", []string{"ax", "xb"}, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, got.Index)
}
