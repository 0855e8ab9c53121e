package models

// SpanKind tells the locator where a problem span came from.
type SpanKind string

const (
	SpanProhibitedPhrase SpanKind = "prohibited-phrase"
	SpanPersonalInfo     SpanKind = "personal-info"
	SpanLegalIssue       SpanKind = "legal-issue"
)

// ProblemSpan is the unified view over findings handed to the locator.
type ProblemSpan struct {
	ID           string   `json:"id"`
	Kind         SpanKind `json:"kind"`
	Text         string   `json:"text"`
	Severity     Severity `json:"severity"`
	Reason       string   `json:"reason,omitempty"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
}

// Label is what the not-found list reports for the span.
func (s ProblemSpan) Label() string {
	if s.Text == "" {
		return s.ID
	}
	return s.Text
}

// Position is a box in page-fraction coordinates with a top-left origin.
type Position struct {
	PageNumber int     `json:"pageNumber"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
}

// Valid reports whether the box is non-degenerate and inside the page.
func (p Position) Valid() bool {
	return 0 <= p.X0 && p.X0 < p.X1 && p.X1 <= 1 &&
		0 <= p.Y0 && p.Y0 < p.Y1 && p.Y1 <= 1
}

// Highlight is a located problem span.
type Highlight struct {
	ID        string     `json:"id"`
	Kind      SpanKind   `json:"kind"`
	Text      string     `json:"text"`
	Severity     Severity   `json:"severity"`
	Reason       string     `json:"reason,omitempty"`
	SuggestedFix string     `json:"suggestedFix,omitempty"`
	Positions    []Position `json:"positions"`
}

// LocateResult is the locator output. NotFound holds one label per span that
// could not be placed on any page.
type LocateResult struct {
	Highlights []Highlight `json:"highlights"`
	NotFound   []string    `json:"notFound"`
}
