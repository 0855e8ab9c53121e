package services

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/Lllllllleong/lettercheck/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel returns a fixed reply and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (m *scriptedModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type scriptedChat struct {
	reply  string
	err    error
	system []string
	user   []string
}

func (c *scriptedChat) Complete(_ context.Context, system, user string) (string, error) {
	c.system = append(c.system, system)
	c.user = append(c.user, user)
	return c.reply, c.err
}

type fakeParser struct {
	result models.ParseResult
	err    error
	calls  int
}

func (p *fakeParser) Parse(context.Context, models.Document, string) (models.ParseResult, error) {
	p.calls++
	return p.result, p.err
}

type fakeDetector struct {
	result models.RedactionResult
	calls  int
	got    string
}

func (d *fakeDetector) Detect(_ context.Context, text string) models.RedactionResult {
	d.calls++
	d.got = text
	return d.result
}

type fakeScreener struct {
	findings []models.ScreeningFinding
	got      string
}

func (s *fakeScreener) Screen(_ context.Context, text string) []models.ScreeningFinding {
	s.got = text
	return s.findings
}

type fakeReasoner struct {
	result   models.ReasoningResult
	calls    int
	gotText  string
	gotPrior []models.ScreeningFinding
}

func (r *fakeReasoner) Reason(_ context.Context, text string, prior []models.ScreeningFinding) models.ReasoningResult {
	r.calls++
	r.gotText = text
	r.gotPrior = prior
	return r.result
}

// fakeLocator places every span at the same box on page 1.
type fakeLocator struct {
	batches [][]models.ProblemSpan
}

func (l *fakeLocator) Locate(_ context.Context, _ string, spans []models.ProblemSpan) models.LocateResult {
	l.batches = append(l.batches, spans)
	res := models.LocateResult{Highlights: []models.Highlight{}, NotFound: []string{}}
	for _, s := range spans {
		res.Highlights = append(res.Highlights, models.Highlight{
			ID:        s.ID,
			Kind:      s.Kind,
			Text:      s.Text,
			Severity:  s.Severity,
			Positions: []models.Position{{PageNumber: 1, X0: 0.1, Y0: 0.1, X1: 0.2, Y1: 0.2}},
		})
	}
	return res
}

// statusRecorder collects delivered updates.
type statusRecorder struct {
	mu      sync.Mutex
	updates []models.StatusUpdate
}

func (r *statusRecorder) record(_ context.Context, u models.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *statusRecorder) states() []models.ProcessingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProcessingState, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.State
	}
	return out
}

func (r *statusRecorder) last() models.StatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}
