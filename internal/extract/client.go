// Package extract pulls invoice fields (amount, currency, period) out
// of uploaded PDFs. The primary path is a hosted OCR service; when it
// is unreachable or cannot read the document, a local plain-text scan
// of the PDF serves as a best-effort fallback.
package extract

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
	"time"

	"invoiced/internal/core"
	"invoiced/internal/resilience"
)

// Result carries whatever fields extraction managed to read. Zero
// values mean the field was not found; storage only fills gaps, so a
// partial result is still useful.
type Result struct {
	AmountCents int64
	Currency    string
	Year        int
	Month       int
}

// ErrUnreadable means the document itself cannot be parsed. It is
// terminal: retrying the same bytes will not help.
var ErrUnreadable = errors.New("document not readable")

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	exec    *resilience.Executor
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, exec *resilience.Executor, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		exec:    exec,
		logger:  logger,
	}
}

type ocrResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
}

// Extract sends the document to the OCR service. Network errors and
// 5xx responses are retried; 4xx responses are terminal.
func (c *Client) Extract(ctx context.Context, fileName string, content []byte) (Result, error) {
	var out Result
	err := c.exec.Do(ctx, "ocr-extract", func(ctx context.Context) error {
		res, err := c.post(ctx, fileName, content)
		if err != nil {
			return err
		}
		out = res
		return nil
	}, classifyOCR)
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, fileName string, content []byte) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", fileName)
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return Result{}, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &transientError{fmt.Errorf("call ocr service: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return Result{}, ErrUnreadable
	case resp.StatusCode >= 500:
		return Result{}, &transientError{fmt.Errorf("ocr service returned %d", resp.StatusCode)}
	default:
		return Result{}, fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}

	var payload ocrResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode ocr response: %w", err)
	}
	return c.toResult(payload), nil
}

func (c *Client) toResult(p ocrResponse) Result {
	var res Result
	if p.Amount != "" {
		cents, err := core.ParseDecimalToCents(p.Amount)
		if err != nil {
			c.logger.Warn("ocr returned unparseable amount", "amount", p.Amount, "error", err)
		} else {
			res.AmountCents = cents
		}
	}
	switch p.Currency {
	case core.CurrencyEUR, core.CurrencyGBP:
		res.Currency = p.Currency
	case "":
	default:
		c.logger.Warn("ocr returned unsupported currency", "currency", p.Currency)
	}
	if p.Year >= 1970 && p.Year <= 9999 {
		res.Year = p.Year
	}
	if p.Month >= 1 && p.Month <= 12 {
		res.Month = p.Month
	}
	return res
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func classifyOCR(err error) resilience.Class {
	var te *transientError
	if errors.As(err, &te) {
		return resilience.Class{Retryable: true, CountsAsFailure: true}
	}
	return resilience.Class{Retryable: false, CountsAsFailure: false}
}
