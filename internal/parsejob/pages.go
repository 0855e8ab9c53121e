package parsejob

import (
	"regexp"
	"strings"

	"github.com/Lllllllleong/lettercheck/internal/models"
)

var pageBreak = regexp.MustCompile(`(?i)<!--\s*page[\s_-]*break\s*-->`)

// SplitPages cuts the service's markdown into pages on the page-break marker.
// Without any marker the whole text is one page and PageCount is left at zero
// for the caller to fill in.
func SplitPages(markdown string) models.ParseResult {
	chunks := pageBreak.Split(markdown, -1)
	if len(chunks) == 1 {
		text := strings.TrimSpace(markdown)
		return models.ParseResult{
			FullText: text,
			Pages:    []models.PageText{{PageNumber: 1, Content: text}},
		}
	}

	// A separator after the last page leaves an empty tail.
	if strings.TrimSpace(chunks[len(chunks)-1]) == "" {
		chunks = chunks[:len(chunks)-1]
	}
	pages := make([]models.PageText, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		content := strings.TrimSpace(chunk)
		pages = append(pages, models.PageText{PageNumber: i + 1, Content: content})
		if content != "" {
			texts = append(texts, content)
		}
	}
	return models.ParseResult{
		FullText:  strings.Join(texts, "\n\n"),
		PageCount: len(pages),
		Pages:     pages,
	}
}
