// Package locator maps problem spans back onto page coordinates of a PDF so
// they can be drawn as highlights over the original pages.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/textnorm"
)

type Config struct {
	// Workers bounds per-page extraction concurrency.
	Workers int
	// RowTolerance is the baseline drift, in points, still treated as one line.
	RowTolerance float64
	// GapFactor is the widest horizontal gap, in font sizes, inside a fragment.
	GapFactor float64
	// MinLegalIssueRunes skips legal-issue quotes shorter than this after
	// normalization.
	MinLegalIssueRunes int
}

type Locator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Locator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RowTolerance <= 0 {
		cfg.RowTolerance = 2
	}
	if cfg.GapFactor <= 0 {
		cfg.GapFactor = 1.5
	}
	if cfg.MinLegalIssueRunes <= 0 {
		cfg.MinLegalIssueRunes = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{cfg: cfg, logger: logger}
}

// PageIndex is the extracted text layer of one document. It is read-only
// once built and can answer any number of Find calls.
type PageIndex struct {
	pages              []pageText
	minLegalIssueRunes int
}

// Index opens the PDF and extracts every page's fragments.
func (l *Locator) Index(ctx context.Context, path string) (idx *PageIndex, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			idx, err = nil, fmt.Errorf("open %s: pdf library panicked: %v", path, rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]pageText, n)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.cfg.Workers)
	for i := 1; i <= n; i++ {
		pageNumber := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pt, err := l.extractPage(r, pageNumber)
			if err != nil {
				return err
			}
			pages[pageNumber-1] = pt
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &PageIndex{pages: pages, minLegalIssueRunes: l.cfg.MinLegalIssueRunes}, nil
}

// Locate finds every span in the document at path. It never fails: when the
// document cannot be read every span is reported as not found.
func (l *Locator) Locate(ctx context.Context, path string, spans []models.ProblemSpan) models.LocateResult {
	logCtx := l.logger.With("path", path, "spans", len(spans))

	idx, err := l.Index(ctx, path)
	if err != nil {
		logCtx.Warn("Highlight extraction failed, reporting every span as not found", "error", err)
		return NotFoundAll(spans)
	}

	res := idx.LocateAll(spans)
	logCtx.Info("Highlight location finished",
		"pages", idx.PageCount(), "highlights", len(res.Highlights), "notFound", len(res.NotFound))
	return res
}

// NotFoundAll is the result for a document with no usable text layer.
func NotFoundAll(spans []models.ProblemSpan) models.LocateResult {
	res := models.LocateResult{Highlights: []models.Highlight{}, NotFound: make([]string, 0, len(spans))}
	for _, s := range spans {
		res.NotFound = append(res.NotFound, s.Label())
	}
	return res
}

// LocateAll runs Find for each span independently.
func (idx *PageIndex) LocateAll(spans []models.ProblemSpan) models.LocateResult {
	res := models.LocateResult{Highlights: []models.Highlight{}, NotFound: []string{}}
	for _, span := range spans {
		positions, ok := idx.Find(span)
		if !ok {
			res.NotFound = append(res.NotFound, span.Label())
			continue
		}
		res.Highlights = append(res.Highlights, models.Highlight{
			ID:           span.ID,
			Kind:         span.Kind,
			Text:         span.Text,
			Severity:     span.Severity,
			Reason:       span.Reason,
			SuggestedFix: span.SuggestedFix,
			Positions:    positions,
		})
	}
	return res
}

func (idx *PageIndex) PageCount() int {
	return len(idx.pages)
}

// Find returns every position of span in page order. ok is false when the
// span is not searchable or occurs nowhere.
func (idx *PageIndex) Find(span models.ProblemSpan) (positions []models.Position, ok bool) {
	needle := textnorm.Normalize(span.Text)
	if needle == "" {
		return nil, false
	}
	if span.Kind == models.SpanLegalIssue && utf8.RuneCountInString(needle) < idx.minLegalIssueRunes {
		return nil, false
	}

	for _, page := range idx.pages {
		if !strings.Contains(page.normalized, needle) {
			continue
		}
		found := page.find(needle)
		if len(found) == 0 && len(page.fragments) > 0 {
			// The match straddles fragments; point at the page's first one.
			if pos, valid := page.toPosition(page.fragments[0].bounds()); valid {
				found = append(found, pos)
			}
		}
		positions = append(positions, found...)
	}
	return positions, len(positions) > 0
}

// find returns one position per occurrence of needle inside a single fragment.
func (p pageText) find(needle string) []models.Position {
	needleRunes := utf8.RuneCountInString(needle)
	var out []models.Position
	for _, frag := range p.fragments {
		norm, srcIdx := textnorm.NormalizeWithIndex(frag.text)
		offset := 0
		for {
			i := strings.Index(norm[offset:], needle)
			if i < 0 {
				break
			}
			start := utf8.RuneCountInString(norm[:offset+i])
			end := start + needleRunes - 1
			b := frag.glyphs[srcIdx[start]]
			for g := srcIdx[start] + 1; g <= srcIdx[end]; g++ {
				b = b.union(frag.glyphs[g])
			}
			if pos, valid := p.toPosition(b); valid {
				out = append(out, pos)
			}
			offset += i + len(needle)
		}
	}
	return out
}

// toPosition converts a user-space box to top-left page fractions, clamped
// to the page. Degenerate boxes are rejected.
func (p pageText) toPosition(b box) (models.Position, bool) {
	mb := p.mediaBox
	w, h := mb.x1-mb.x0, mb.y1-mb.y0
	pos := models.Position{
		PageNumber: p.number,
		X0:         clamp01((b.x0 - mb.x0) / w),
		X1:         clamp01((b.x1 - mb.x0) / w),
		Y0:         clamp01(1 - (b.y1-mb.y0)/h),
		Y1:         clamp01(1 - (b.y0-mb.y0)/h),
	}
	return pos, pos.Valid()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
