package models

// These structs are the per-run analysis artifacts. Each one is produced once
// by a pipeline stage and treated as read-only afterwards.

// Document is the submitted file handed to the pipeline.
type Document struct {
	Path      string `json:"path"`
	MediaType string `json:"mediaType"`
	Name      string `json:"name,omitempty"`
}

// IsPDF reports whether the document carries a PDF text layer candidate.
func (d Document) IsPDF() bool {
	return d.MediaType == MediaTypePDF
}

const MediaTypePDF = "application/pdf"

// PageText is the extracted text of a single page.
type PageText struct {
	PageNumber int    `json:"pageNumber"`
	Content    string `json:"content"`
}

// ParseResult is the page-structured output of the external parse job.
type ParseResult struct {
	FullText  string     `json:"fullText"`
	PageCount int        `json:"pageCount"`
	Pages     []PageText `json:"pages"`
	Title     string     `json:"title,omitempty"`
	Author    string     `json:"author,omitempty"`
}

// EntityType is one label of the closed personal-information label set.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityPhone        EntityType = "PHONE_NUMBER"
	EntityEmail        EntityType = "EMAIL"
	EntityAddress      EntityType = "ADDRESS"
	EntityCreditCard   EntityType = "CREDIT_CARD"
	EntityDateTime     EntityType = "DATE_TIME"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityIPAddress    EntityType = "IP_ADDRESS"
)

// EntityTypes lists the label set in prompt order.
var EntityTypes = []EntityType{
	EntityPerson, EntityPhone, EntityEmail, EntityAddress,
	EntityCreditCard, EntityDateTime, EntityOrganization, EntityIPAddress,
}

// Placeholder is the redaction token substituted for an entity of this type.
func (t EntityType) Placeholder() string {
	return "<" + string(t) + ">"
}

// Entity is a detected personal-information span. Start and End are rune
// offsets into the text given to the detection stage.
type Entity struct {
	Type  EntityType `json:"type"`
	Text  string     `json:"text"`
	Start int        `json:"start"`
	End   int        `json:"end"`
	Score float64    `json:"score"`
}

// RedactionResult is the output of the entity detection stage.
type RedactionResult struct {
	RedactedText string             `json:"redactedText"`
	Entities     []Entity           `json:"entities"`
	CountsByType map[EntityType]int `json:"countsByType"`
}

// Severity grades a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps free-form model output onto the three known grades.
// Anything unrecognised is treated as medium.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s)
	}
	return SeverityMedium
}

// ScreeningFinding is a prohibited phrase flagged by the fast screening stage.
type ScreeningFinding struct {
	Phrase     string   `json:"phrase"`
	OffsetHint int      `json:"offsetHint"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
}

// LegalIssue is one issue raised by the deep reasoning stage.
type LegalIssue struct {
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	QuotedLocation string   `json:"quotedLocation"`
	SuggestedFix   string   `json:"suggestedFix"`
	Severity       Severity `json:"severity,omitempty"`
}

// Confidence grades the letter classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ClassificationVerdict is the regulated-letter determination.
type ClassificationVerdict struct {
	IsRegulatedLetter bool       `json:"isRegulatedLetter"`
	Confidence        Confidence `json:"confidence"`
	Reason            string     `json:"reason"`
	DocumentType      string     `json:"documentType"`
	MatchedPatterns   []string   `json:"matchedPatterns"`
}

// Rewrite is a suggested replacement for a risky passage.
type Rewrite struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason,omitempty"`
}

// ReasoningResult is the output of the deep reasoning stage. Undetermined is
// set when the stage fell back to its default because the model could not be
// reached or its reply could not be decoded.
type ReasoningResult struct {
	Verdict      ClassificationVerdict `json:"verdict"`
	Issues       []LegalIssue          `json:"issues"`
	Rewrites     []Rewrite             `json:"rewrites"`
	Explanation  string                `json:"explanation"`
	Summary      string                `json:"summary"`
	Undetermined bool                  `json:"undetermined"`
}
