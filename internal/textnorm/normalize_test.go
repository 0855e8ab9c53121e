package textnorm

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "Dear Mr. Tanaka", "dearmr.tanaka"},
		{"fullwidth latin", "ＴＡＮＡＫＡ", "tanaka"},
		{"halfwidth katakana", "ﾀﾅｶ", "タナカ"},
		{"ideographic space", "田中　太郎", "田中太郎"},
		{"tabs and newlines", "a\tb\nc\r\nd", "abcd"},
		{"combining accent", "Cafe\u0301", "caf\u00e9"},
		{"circled digit", "①②", "12"},
		{"empty", "", ""},
		{"only whitespace", " \t\n　", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Dear Mr. Tanaka, thank you for your purchase",
		"ＡＢＣ　ｄｅｆ",
		"ｶﾞｷﾞｸﾞ",
		"ẹ́",
		"İstanbul",
		"ﬁle ﬂow",
		"a \u0301",
		"ｶ ﾞ",
		"e\n\u0308x",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_WidthAndWhitespaceVariantsMatch(t *testing.T) {
	assert.Equal(t, Normalize("  Blockchain Offer "), Normalize("ＢＬＯＣＫＣＨＡＩＮ　ｏｆｆｅｒ"))
	assert.Equal(t, Normalize("0120-123-456"), Normalize("０１２０－１２３－４５６"))
}

func TestNormalizeWithIndex_MapsBackToSource(t *testing.T) {
	src := "Mr. Ｔａｎａｋａ san"
	out, idx := NormalizeWithIndex(src)

	require.Equal(t, utf8.RuneCountInString(out), len(idx))
	srcRunes := []rune(src)
	outRunes := []rune(out)
	for i, r := range outRunes {
		assert.Equal(t, string(r), Normalize(string(srcRunes[idx[i]])), "output rune %d", i)
	}
	// "tanaka" starts at the first full-width T, source rune 4.
	assert.Equal(t, 4, idx[3])
}

func TestNormalizeWithIndex_ComposedSegment(t *testing.T) {
	out, idx := NormalizeWithIndex("xe\u0301y")
	assert.Equal(t, "x\u00e9y", out)
	assert.Equal(t, []int{0, 1, 3}, idx)
}

func TestNormalizeWithIndex_MarkAcrossWhitespace(t *testing.T) {
	out, idx := NormalizeWithIndex("ｶ ﾞ")
	assert.Equal(t, "ガ", out)
	assert.Equal(t, []int{0}, idx)

	out, idx = NormalizeWithIndex("e\n\u0308x")
	assert.Equal(t, "\u00ebx", out)
	assert.Equal(t, []int{0, 3}, idx)

	assert.Equal(t, Normalize("ｶﾞｲﾄﾞ"), Normalize("ｶ ﾞｲ ﾄ ﾞ"))
	assert.True(t, Contains("ｶﾞｲﾄﾞブック", "ｶ ﾞｲﾄﾞ"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Dear Mr. TANAKA, thank you", "tanaka"))
	assert.True(t, Contains("thank you for your pur chase", "purchase"))
	assert.False(t, Contains("Dear Mr. Tanaka", "blockchain"))
	assert.False(t, Contains("anything", "   "))
}
