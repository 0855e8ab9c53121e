package locator

import (
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/Lllllllleong/lettercheck/internal/textnorm"
)

// box is a rectangle in PDF user space (origin bottom-left).
type box struct {
	x0, y0, x1, y1 float64
}

func (b box) union(o box) box {
	return box{
		x0: math.Min(b.x0, o.x0), y0: math.Min(b.y0, o.y0),
		x1: math.Max(b.x1, o.x1), y1: math.Max(b.y1, o.y1),
	}
}

// fragment is a run of glyphs on one baseline with no wide gap between them.
// glyphs holds one box per rune of text.
type fragment struct {
	text   string
	glyphs []box
}

func (f fragment) bounds() box {
	b := f.glyphs[0]
	for _, g := range f.glyphs[1:] {
		b = b.union(g)
	}
	return b
}

type pageText struct {
	number    int
	mediaBox  box
	fragments []fragment
	// normalized is the normalized concatenation of every fragment's text.
	normalized string
}

// Letter size, used when no MediaBox is found anywhere in the page tree.
var defaultMediaBox = box{0, 0, 612, 792}

// extractPage reads the glyphs of one page and groups them into fragments.
// The PDF library panics on some malformed content streams; that is
// reported as an error.
func (l *Locator) extractPage(r *pdf.Reader, number int) (pt pageText, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: pdf extraction panicked: %v", number, rec)
		}
	}()

	pt.number = number
	p := r.Page(number)
	if p.V.IsNull() {
		return pt, fmt.Errorf("page %d: missing page object", number)
	}
	pt.mediaBox = mediaBox(p.V)
	pt.fragments = l.groupFragments(p.Content().Text)

	var all []byte
	for _, f := range pt.fragments {
		all = append(all, f.text...)
	}
	pt.normalized = textnorm.Normalize(string(all))
	return pt, nil
}

// groupFragments walks glyphs in content-stream order. A new fragment starts
// when the baseline moves, the pen jumps backwards or the horizontal gap is
// wider than GapFactor font sizes. Word spaces are not emitted as glyphs by
// the PDF library, so ordinary word gaps stay inside one fragment.
func (l *Locator) groupFragments(texts []pdf.Text) []fragment {
	var (
		out          []fragment
		cur          fragment
		prevX, prevY float64
		prevEnd      float64
	)
	flush := func() {
		if len(cur.glyphs) > 0 {
			out = append(out, cur)
		}
		cur = fragment{}
	}

	for _, t := range texts {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 1
		}
		w := t.W
		if w <= 0 {
			w = size * 0.5
		}
		if len(cur.glyphs) > 0 {
			sameLine := math.Abs(t.Y-prevY) <= l.cfg.RowTolerance
			backwards := t.X < prevX-l.cfg.RowTolerance
			gap := t.X - prevEnd
			if !sameLine || backwards || gap > l.cfg.GapFactor*size {
				flush()
			}
		}
		g := box{
			x0: t.X,
			y0: t.Y - descent*size,
			x1: t.X + w,
			y1: t.Y + ascent*size,
		}
		for range t.S {
			cur.glyphs = append(cur.glyphs, g)
		}
		cur.text += t.S
		prevX, prevY, prevEnd = t.X, t.Y, t.X+w
	}
	flush()
	return out
}

// Typical Latin and CJK font metrics relative to the font size.
const (
	ascent  = 0.8
	descent = 0.2
)

// mediaBox finds the page's MediaBox, walking up the page tree because the
// attribute is inheritable.
func mediaBox(v pdf.Value) box {
	for depth := 0; !v.IsNull() && depth < 32; depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			b := box{
				x0: mb.Index(0).Float64(), y0: mb.Index(1).Float64(),
				x1: mb.Index(2).Float64(), y1: mb.Index(3).Float64(),
			}
			if b.x0 > b.x1 {
				b.x0, b.x1 = b.x1, b.x0
			}
			if b.y0 > b.y1 {
				b.y0, b.y1 = b.y1, b.y0
			}
			if b.x1-b.x0 > 0 && b.y1-b.y0 > 0 {
				return b
			}
		}
		v = v.Key("Parent")
	}
	return defaultMediaBox
}
