package parsejob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantPages []string
		wantCount int
	}{
		{"no marker", "  just one page \n", []string{"just one page"}, 0},
		{"two pages", "a\n<!-- page-break -->\nb", []string{"a", "b"}, 2},
		{"tolerant marker", "a<!--PAGE-BREAK-->b<!--  page_break  -->c", []string{"a", "b", "c"}, 3},
		{"trailing marker", "a\n<!-- page-break -->\nb\n<!-- page-break -->\n", []string{"a", "b"}, 2},
		{"blank middle page", "a<!-- page-break -->  <!-- page-break -->c", []string{"a", "", "c"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SplitPages(tt.in)
			require.Len(t, res.Pages, len(tt.wantPages))
			for i, want := range tt.wantPages {
				assert.Equal(t, i+1, res.Pages[i].PageNumber)
				assert.Equal(t, want, res.Pages[i].Content)
			}
			assert.Equal(t, tt.wantCount, res.PageCount)
		})
	}
}

func TestSplitPages_FullTextSkipsBlankPages(t *testing.T) {
	res := SplitPages("a<!-- page-break -->\n\n<!-- page-break -->c")
	assert.Equal(t, "a\n\nc", res.FullText)
}
