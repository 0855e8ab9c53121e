package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/lettercheck/internal/locator"
	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/parsejob"
	"github.com/Lllllllleong/lettercheck/internal/progress"
)

// Parser turns a document into page-structured text. Its errors are fatal.
type Parser interface {
	Parse(ctx context.Context, doc models.Document, language string) (models.ParseResult, error)
}

// Detector finds and redacts personal information.
type Detector interface {
	Detect(ctx context.Context, text string) models.RedactionResult
}

// ScreeningStage flags risky phrases.
type ScreeningStage interface {
	Screen(ctx context.Context, text string) []models.ScreeningFinding
}

// ReasoningStage produces the legal judgment.
type ReasoningStage interface {
	Reason(ctx context.Context, text string, prior []models.ScreeningFinding) models.ReasoningResult
}

// HighlightLocator places problem spans on the pages of a document.
type HighlightLocator interface {
	Locate(ctx context.Context, path string, spans []models.ProblemSpan) models.LocateResult
}

// Stages bundles the pipeline collaborators. Parser may be nil when only
// RunFromText is used; a nil Locator gets the default one.
type Stages struct {
	Parser   Parser
	Detector Detector
	Screener ScreeningStage
	Reasoner ReasoningStage
	Locator  HighlightLocator
}

// OrchestratorConfig holds per-run settings.
type OrchestratorConfig struct {
	// Language is the ISO-639 code sent with each parse job.
	Language string
	// DrainTimeout bounds how long a finished run waits for queued status
	// updates to be delivered.
	DrainTimeout time.Duration
	Progress     progress.Config
}

// StageError is returned when a fatal stage fails.
type StageError struct {
	Stage models.ProcessingState
	Err   error
}

func (e *StageError) Error() string {
	return "processing failed: " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator sequences the analysis stages for one run at a time. It holds
// no state across runs and is safe for concurrent use.
type Orchestrator struct {
	stages Stages
	config OrchestratorConfig
	logger *slog.Logger
}

func NewOrchestrator(stages Stages, config OrchestratorConfig, logger *slog.Logger) (*Orchestrator, error) {
	if stages.Detector == nil || stages.Screener == nil || stages.Reasoner == nil {
		return nil, fmt.Errorf("orchestrator needs detector, screener and reasoner stages")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stages.Locator == nil {
		stages.Locator = locator.New(locator.Config{}, logger)
	}
	if config.Language == "" {
		config.Language = "ja"
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 5 * time.Second
	}
	return &Orchestrator{stages: stages, config: config, logger: logger}, nil
}

// run carries the per-call state: the status dispatcher, the last reported
// progress and the result being assembled.
type run struct {
	id       string
	started  time.Time
	status   *progress.Dispatcher
	progress int
	result   *models.PipelineResult
	logger   *slog.Logger
}

func (o *Orchestrator) newRun(onStatus progress.StatusFunc, attrs ...any) *run {
	id := uuid.NewString()
	logger := o.logger.With(append([]any{"runId", id}, attrs...)...)
	return &run{
		id:      id,
		started: time.Now(),
		status:  progress.NewDispatcher(onStatus, o.config.Progress, logger),
		result: &models.PipelineResult{
			RunID:             id,
			ScreeningFindings: []models.ScreeningFinding{},
			Highlights:        []models.Highlight{},
			NotFound:          []string{},
			LegalIssues:       []models.LegalIssue{},
			Rewrites:          []models.Rewrite{},
		},
		logger: logger,
	}
}

func (r *run) enter(state models.ProcessingState) {
	if p, ok := state.Progress(); ok && p > r.progress {
		r.progress = p
	}
	r.logger.Info("Pipeline stage started", "state", state, "progress", r.progress)
	r.status.Notify(models.StatusUpdate{State: state, Progress: r.progress, At: time.Now()})
}

func (r *run) fail(stage models.ProcessingState, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	r.logger.Error("Pipeline failed", "state", stage, "error", err)
	r.status.Notify(models.StatusUpdate{
		State:    models.StateError,
		Progress: r.progress,
		Message:  stageErr.Error(),
		At:       time.Now(),
	})
	return stageErr
}

func (o *Orchestrator) finish(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.DrainTimeout)
	defer cancel()
	if err := r.status.Close(ctx); err != nil {
		r.logger.Warn("Status updates still pending at end of run", "error", err)
	}
}

// checkpoint stops the run between stages once the caller has cancelled.
func (r *run) checkpoint(ctx context.Context, next models.ProcessingState) error {
	if err := ctx.Err(); err != nil {
		return r.fail(next, err)
	}
	return nil
}

// RunFromText analyzes text that is already known: no parsing, no highlights.
func (o *Orchestrator) RunFromText(ctx context.Context, text string, onStatus progress.StatusFunc) (*models.PipelineResult, error) {
	r := o.newRun(onStatus, "entry", "text", "textLength", len(text))
	defer o.finish(r)
	r.logger.Info("Starting text analysis run")

	if err := o.analyze(ctx, r, text, nil); err != nil {
		return nil, err
	}
	return o.complete(r), nil
}

// RunFromDocument runs the full pipeline on an uploaded file. Only parsing
// failures, including an empty extraction, are fatal.
func (o *Orchestrator) RunFromDocument(ctx context.Context, doc models.Document, onStatus progress.StatusFunc) (*models.PipelineResult, error) {
	r := o.newRun(onStatus, "entry", "document", "path", doc.Path, "mediaType", doc.MediaType)
	defer o.finish(r)
	r.logger.Info("Starting document analysis run")

	if err := r.checkpoint(ctx, models.StateParsing); err != nil {
		return nil, err
	}
	r.enter(models.StateParsing)
	if o.stages.Parser == nil {
		return nil, r.fail(models.StateParsing, errors.New("no parser configured"))
	}
	parsed, err := o.stages.Parser.Parse(ctx, doc, o.config.Language)
	if err != nil {
		return nil, r.fail(models.StateParsing, err)
	}
	if strings.TrimSpace(parsed.FullText) == "" {
		return nil, r.fail(models.StateParsing, parsejob.ErrEmptyResult)
	}
	r.result.Parse = &parsed
	r.logger.Info("Document parsed", "pages", parsed.PageCount, "textLength", len(parsed.FullText))

	if err := o.analyze(ctx, r, parsed.FullText, &doc); err != nil {
		return nil, err
	}
	return o.complete(r), nil
}

// analyze runs the stages shared by both entry points. doc is nil for text
// runs, which skip highlighting.
func (o *Orchestrator) analyze(ctx context.Context, r *run, text string, doc *models.Document) error {
	if err := r.checkpoint(ctx, models.StateMasking); err != nil {
		return err
	}
	r.enter(models.StateMasking)
	r.result.Redaction = o.stages.Detector.Detect(ctx, text)

	if err := r.checkpoint(ctx, models.StateFastCheck); err != nil {
		return err
	}
	r.enter(models.StateFastCheck)
	// Screening and reasoning see the redacted text only.
	redacted := r.result.Redaction.RedactedText
	r.result.ScreeningFindings = nonNil(o.stages.Screener.Screen(ctx, redacted))

	if doc != nil {
		if err := r.checkpoint(ctx, models.StatePDFHighlight); err != nil {
			return err
		}
		r.enter(models.StatePDFHighlight)
		spans := findingSpans(r.result.ScreeningFindings)
		spans = append(spans, entitySpans(r.result.Redaction.Entities)...)
		o.mergeHighlights(r, o.locate(ctx, *doc, spans))
	}

	if err := r.checkpoint(ctx, models.StateDeepReason); err != nil {
		return err
	}
	r.enter(models.StateDeepReason)
	reasoning := o.stages.Reasoner.Reason(ctx, redacted, r.result.ScreeningFindings)
	verdict := reasoning.Verdict
	r.result.Verdict = &verdict
	r.result.LegalIssues = nonNil(reasoning.Issues)
	r.result.Rewrites = nonNil(reasoning.Rewrites)
	r.result.ExplanatorySummary = reasoning.Explanation
	r.result.Summary = reasoning.Summary
	r.result.ReasoningUndetermined = reasoning.Undetermined

	if doc != nil {
		if spans := issueSpans(r.result.LegalIssues); len(spans) > 0 {
			o.mergeHighlights(r, o.locate(ctx, *doc, spans))
		}
	}
	return nil
}

func (o *Orchestrator) locate(ctx context.Context, doc models.Document, spans []models.ProblemSpan) models.LocateResult {
	if len(spans) == 0 {
		return models.LocateResult{Highlights: []models.Highlight{}, NotFound: []string{}}
	}
	if !doc.IsPDF() {
		// Images and other formats carry no text layer to match against.
		return locator.NotFoundAll(spans)
	}
	return o.stages.Locator.Locate(ctx, doc.Path, spans)
}

func (o *Orchestrator) mergeHighlights(r *run, res models.LocateResult) {
	r.result.Highlights = append(r.result.Highlights, res.Highlights...)
	r.result.NotFound = append(r.result.NotFound, res.NotFound...)
}

func (o *Orchestrator) complete(r *run) *models.PipelineResult {
	r.result.TotalProcessingTimeMs = time.Since(r.started).Milliseconds()
	r.enter(models.StateComplete)
	r.logger.Info("Pipeline complete",
		"highlights", len(r.result.Highlights),
		"legalIssues", len(r.result.LegalIssues),
		"undetermined", r.result.ReasoningUndetermined,
		"elapsed_ms", r.result.TotalProcessingTimeMs)
	return r.result
}

func findingSpans(findings []models.ScreeningFinding) []models.ProblemSpan {
	spans := make([]models.ProblemSpan, 0, len(findings))
	for i, f := range findings {
		spans = append(spans, models.ProblemSpan{
			ID:       fmt.Sprintf("screen-%d", i+1),
			Kind:     models.SpanProhibitedPhrase,
			Text:     f.Phrase,
			Severity: f.Severity,
			Reason:   f.Reason,
		})
	}
	return spans
}

func entitySpans(entities []models.Entity) []models.ProblemSpan {
	spans := make([]models.ProblemSpan, 0, len(entities))
	for i, e := range entities {
		spans = append(spans, models.ProblemSpan{
			ID:       fmt.Sprintf("pii-%d", i+1),
			Kind:     models.SpanPersonalInfo,
			Text:     e.Text,
			Severity: models.SeverityHigh,
			Reason:   string(e.Type),
		})
	}
	return spans
}

// issueSpans skips issues that quote nothing; there is no text to place.
func issueSpans(issues []models.LegalIssue) []models.ProblemSpan {
	spans := make([]models.ProblemSpan, 0, len(issues))
	n := 0
	for _, is := range issues {
		if strings.TrimSpace(is.QuotedLocation) == "" {
			continue
		}
		n++
		spans = append(spans, models.ProblemSpan{
			ID:           fmt.Sprintf("legal-%d", n),
			Kind:         models.SpanLegalIssue,
			Text:         is.QuotedLocation,
			Severity:     models.ParseSeverity(string(is.Severity)),
			Reason:       is.Description,
			SuggestedFix: is.SuggestedFix,
		})
	}
	return spans
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
