// Package parsejob drives the external document parsing service: upload a
// document, poll the job until it settles and fetch its markdown result.
package parsejob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/lettercheck/internal/models"
	"github.com/Lllllllleong/lettercheck/internal/pdfinfo"
)

var (
	ErrInvalidInput   = errors.New("invalid parse input")
	ErrUploadRejected = errors.New("parse service rejected the upload")
	ErrJobTimeout     = errors.New("parse job did not finish in time")
	ErrJobFailed      = errors.New("parse job failed")
	ErrEmptyResult    = errors.New("parse job returned no text")
)

// Job statuses reported by the service.
const (
	StatusPending        = "PENDING"
	StatusSuccess        = "SUCCESS"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
	StatusError          = "ERROR"
)

// PageSeparator is the marker the service is asked to put between pages.
const PageSeparator = "<!-- page-break -->"

const parsingInstruction = `Parse this document using visual analysis.
Preserve the original structure including headings, tables, lists and emphasis.
Do not use OCR. Output clean Markdown.`

var languagePattern = regexp.MustCompile(`^[a-z]{2,3}$`)

type Config struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
	// PageCounter is used when the result has no page markers and the job
	// metadata carries no page count. Defaults to a pdfcpu page count.
	PageCounter func(path string) (int, error)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("parse service base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("parse service api key is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PageCounter == nil {
		cfg.PageCounter = pdfinfo.PageCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}, nil
}

// Parse uploads the document and waits for its text.
func (c *Client) Parse(ctx context.Context, doc models.Document, language string) (models.ParseResult, error) {
	jobID, err := c.Submit(ctx, doc, language)
	if err != nil {
		return models.ParseResult{}, err
	}
	res, err := c.PollUntilDone(ctx, jobID)
	if err != nil {
		return models.ParseResult{}, err
	}
	if res.PageCount == 0 {
		res.PageCount = len(res.Pages)
		if doc.IsPDF() {
			if n, err := c.cfg.PageCounter(doc.Path); err == nil && n > 0 {
				res.PageCount = n
			} else if err != nil {
				c.logger.Warn("parsejob.page_count_fallback_failed", "job_id", jobID, "error", err)
			}
		}
	}
	return res, nil
}

// Submit uploads the document and returns the job id.
func (c *Client) Submit(ctx context.Context, doc models.Document, language string) (string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if !languagePattern.MatchString(language) {
		return "", fmt.Errorf("%w: language %q is not an ISO-639 code", ErrInvalidInput, language)
	}
	info, err := os.Stat(doc.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidInput, doc.Path)
	}

	body, contentType, err := buildUpload(doc, language)
	if err != nil {
		return "", err
	}

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("parsejob.submit", "req_id", rid, "file", filepath.Base(doc.Path),
		"bytes", info.Size(), "language", language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/parsing/upload"), body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	raw, status, err := c.do(req, rid)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	if status/100 != 2 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUploadRejected, status, truncate(raw))
	}

	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &job); err != nil || job.ID == "" {
		return "", fmt.Errorf("%w: no job id in response", ErrUploadRejected)
	}
	c.logger.Info("parsejob.submitted", "req_id", rid, "job_id", job.ID,
		"elapsed_ms", time.Since(start).Milliseconds())
	return job.ID, nil
}

// PollUntilDone checks the job at a fixed interval until it settles or the
// attempt cap is reached. Transient status failures consume an attempt and
// back off before the next one.
func (c *Client) PollUntilDone(ctx context.Context, jobID string) (models.ParseResult, error) {
	logCtx := c.logger.With("job_id", jobID)
	backoff := c.cfg.PollInterval

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		wait := c.cfg.PollInterval
		job, err := c.status(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return models.ParseResult{}, ctx.Err()
		case err != nil && isTransient(err):
			logCtx.Warn("parsejob.poll.transient_error", "attempt", attempt,
				"backoff", backoff.String(), "error", err)
			wait = backoff
			backoff = min(backoff*2, 8*c.cfg.PollInterval)
		case err != nil:
			return models.ParseResult{}, fmt.Errorf("%w: %w", ErrJobFailed, err)
		default:
			backoff = c.cfg.PollInterval
			logCtx.Debug("parsejob.poll", "attempt", attempt, "status", job.Status)
			switch job.Status {
			case StatusSuccess, StatusPartialSuccess:
				if job.Status == StatusPartialSuccess {
					logCtx.Warn("parsejob.partial_success")
				}
				return c.result(ctx, jobID)
			case StatusError:
				msg := job.ErrorMessage
				if msg == "" {
					msg = "no error message"
				}
				return models.ParseResult{}, fmt.Errorf("%w: %s", ErrJobFailed, msg)
			}
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logCtx.Warn("parsejob.poll.cancelled", "attempt", attempt, "error", ctx.Err())
			return models.ParseResult{}, ctx.Err()
		}
	}
	logCtx.Error("parsejob.poll.timeout", "attempts", c.cfg.MaxAttempts)
	return models.ParseResult{}, fmt.Errorf("%w: %d attempts", ErrJobTimeout, c.cfg.MaxAttempts)
}

type jobStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) status(ctx context.Context, jobID string) (jobStatus, error) {
	var job jobStatus
	err := c.getJSON(ctx, c.url("/api/parsing/job/"+jobID), &job)
	return job, err
}

func (c *Client) result(ctx context.Context, jobID string) (models.ParseResult, error) {
	var payload struct {
		Markdown    string `json:"markdown"`
		JobMetadata struct {
			JobPages int `json:"job_pages"`
		} `json:"job_metadata"`
	}

	var err error
	backoff := c.cfg.PollInterval
	for try := 1; try <= 3; try++ {
		err = c.getJSON(ctx, c.url("/api/parsing/job/"+jobID+"/result/markdown"), &payload)
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("parsejob.result.transient_error", "job_id", jobID, "try", try, "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return models.ParseResult{}, ctx.Err()
		}
	}
	if err != nil {
		return models.ParseResult{}, fmt.Errorf("%w: fetch result: %w", ErrJobFailed, err)
	}

	res := SplitPages(payload.Markdown)
	if strings.TrimSpace(res.FullText) == "" {
		return models.ParseResult{}, ErrEmptyResult
	}
	if len(res.Pages) == 1 && payload.JobMetadata.JobPages > 0 {
		res.PageCount = payload.JobMetadata.JobPages
	}
	c.logger.Info("parsejob.result", "job_id", jobID, "pages", len(res.Pages),
		"page_count", res.PageCount, "chars", len(res.FullText))
	return res, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	rid := uuid.New().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	raw, status, err := c.do(req, rid)
	if err != nil {
		return &transportError{err: err}
	}
	if status/100 != 2 {
		return &statusError{code: status, body: truncate(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, rid string) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", rid)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("parsejob.http.send_error", "req_id", rid, "url", req.URL.Path, "error", err)
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("parsejob.http.response_body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func buildUpload(doc models.Document, language string) (io.Reader, string, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	name := doc.Name
	if name == "" {
		name = filepath.Base(doc.Path)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy document: %w", err)
	}
	fields := map[string]string{
		"language":            language,
		"parsing_instruction": parsingInstruction,
		"page_separator":      "\n" + PageSeparator + "\n",
		"result_type":         "markdown",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.body) }

func isTransient(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return false
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
