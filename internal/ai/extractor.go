package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/ocr"
)

const maxAttempts = 2

var (
	refusalPhrases  = []string{"lo siento", "no puedo", "i cannot", "i can't", "i'm sorry"}
	exampleLiterals = []string{"f-2024-001", "proveedor de ejemplo", "12.345.678-9"}

	// Whole values only: "Laboratorio Test SpA" is a real vendor, "Empresa de Prueba" is not
	exampleNames   = regexp.MustCompile(`(?i)^\s*((proveedor|empresa|compa[nñ][ií]a|supplier|company)\s+)?(de\s+)?(ejemplo|fictici[oa]|prueba|test|sample)(\s+(supplier|company|s\.?a\.?|spa|ltda))?\s*$`)
	exampleNumbers = regexp.MustCompile(`(?i)^\s*(ejemplo|prueba|test|sample)([-\s]*\d+)?\s*$`)
	longDigitRun   = regexp.MustCompile(`\d{4,}`)
)

// Options configures an Extractor
type Options struct {
	Timeout           time.Duration // Per attempt
	RequestsPerMinute int           // 0 disables client-side rate limiting
	TaxRate           float64
	OCRConfidence     float64
	Logger            zerolog.Logger
}

// Request is one extraction call
type Request struct {
	Text     string
	FileName string
	FileSize int64
	Method   models.ExtractionMethod
}

// Result carries the extracted invoice and what is needed to audit the call.
// It is returned even on failure so the attempt can be logged.
type Result struct {
	Invoice     *models.ExtractedInvoice
	RawResponse string
	TokensUsed  int
	Attempts    int
	Duration    time.Duration
}

// Extractor turns prepared document text into an ExtractedInvoice, either
// through an AI provider or through the rule-based parser.
type Extractor struct {
	provider Provider
	parser   *ocr.Parser
	schema   *jsonschema.Schema
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewExtractor creates an extractor. provider may be nil when only the ocr method is used.
func NewExtractor(provider Provider, opts Options) (*Extractor, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}

	e := &Extractor{
		provider: provider,
		parser:   ocr.NewParser(opts.TaxRate, opts.OCRConfidence),
		schema:   schema,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if opts.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return e, nil
}

// Extract runs the selected method. Errors are *models.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var (
		inv *models.ExtractedInvoice
		err error
	)
	switch req.Method {
	case models.MethodOCR:
		result.Attempts = 1
		inv, err = e.parser.Parse(req.Text)
	case models.MethodAI:
		inv, err = e.extractAI(ctx, req.Text, result)
	default:
		err = &models.ExtractionError{Method: req.Method, Reason: models.ReasonProviderFailed,
			Err: fmt.Errorf("unknown extraction method %q", req.Method)}
	}
	result.Duration = time.Since(start)

	if err != nil {
		e.logger.Warn().Err(err).
			Str("method", string(req.Method)).
			Str("file", req.FileName).
			Int("attempts", result.Attempts).
			Dur("duration", result.Duration).
			Msg("extract.failed")
		return result, err
	}

	inv.Method = req.Method
	inv.FileName = req.FileName
	inv.FileSize = req.FileSize
	inv.ExtractedAt = time.Now()
	inv.Confidence = adjustConfidence(inv)
	result.Invoice = inv

	e.logger.Info().
		Str("method", string(req.Method)).
		Str("file", req.FileName).
		Str("invoice_number", inv.SupplierInvoiceNumber).
		Float64("confidence", inv.Confidence).
		Int("lines", len(inv.Lines)).
		Dur("duration", result.Duration).
		Msg("extract.ok")
	return result, nil
}

func (e *Extractor) extractAI(ctx context.Context, text string, result *Result) (*models.ExtractedInvoice, error) {
	if e.provider == nil {
		return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonProviderFailed,
			Err: errors.New("no AI provider configured")}
	}

	completion, err := e.complete(ctx, buildSystemPrompt(), buildUserPrompt(text), result)
	if err != nil {
		return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonProviderFailed, Err: err}
	}
	result.RawResponse = completion.Text
	result.TokensUsed = completion.TokensUsed

	inv, err := e.parseResponse(completion.Text)
	if err != nil {
		return nil, err
	}
	if isExampleData(inv) {
		return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonExampleData}
	}
	return inv, nil
}

// complete calls the provider with a per-attempt timeout and retries once on a transient failure
func (e *Extractor) complete(ctx context.Context, system, user string, result *Result) (*Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		completion, err := e.provider.Complete(attemptCtx, system, user)
		cancel()
		if err == nil {
			return completion, nil
		}
		lastErr = err

		retryable := IsTransient(err) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil)
		if !retryable || ctx.Err() != nil {
			break
		}
		e.logger.Warn().Err(err).Str("provider", e.provider.Name()).Int("attempt", attempt).Msg("extract.retry")
	}
	return nil, lastErr
}

type rawLine struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Quantity    interface{} `json:"quantity"`
	UnitPrice   interface{} `json:"unitPrice"`
	Discount    interface{} `json:"discount"`
	LineTotal   interface{} `json:"lineTotal"`
}

type rawInvoice struct {
	SupplierName          string      `json:"supplierName"`
	SupplierRut           string      `json:"supplierRut"`
	SupplierTaxID         string      `json:"supplierTaxId"`
	SupplierInvoiceNumber interface{} `json:"supplierInvoiceNumber"`
	IssueDate             string      `json:"issueDate"`
	DueDate               string      `json:"dueDate"`
	Subtotal              interface{} `json:"subtotal"`
	TaxAmount             interface{} `json:"taxAmount"`
	TotalAmount           interface{} `json:"totalAmount"`
	Confidence            interface{} `json:"confidence"`
	Lines                 []rawLine   `json:"lines"`
}

// parseResponse cleans, validates and converts a provider answer
func (e *Extractor) parseResponse(response string) (*models.ExtractedInvoice, error) {
	malformed := func(err error) error {
		return &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonMalformedResponse, Err: err}
	}

	cleaned, ok := cleanJSON(response)
	if !ok {
		if strings.TrimSpace(response) == "" {
			return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonEmptyResponse}
		}
		if isRefusal(response) {
			return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonRefused}
		}
		return nil, malformed(errors.New("no JSON object in response"))
	}

	var doc map[string]any
	if err := decodeNumbers(cleaned, &doc); err != nil {
		return nil, malformed(err)
	}
	if missing := missingRequired(doc); len(missing) > 0 {
		return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonMissingFields, Fields: missing}
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, malformed(fmt.Errorf("json does not match schema: %w", err))
	}

	var raw rawInvoice
	if err := decodeNumbers(cleaned, &raw); err != nil {
		return nil, malformed(err)
	}

	inv := &models.ExtractedInvoice{
		SupplierName:          strings.TrimSpace(raw.SupplierName),
		SupplierTaxID:         strings.TrimSpace(firstNonEmpty(raw.SupplierTaxID, raw.SupplierRut)),
		SupplierInvoiceNumber: strings.TrimSpace(fmt.Sprint(raw.SupplierInvoiceNumber)),
		IssueDate:             parseDate(raw.IssueDate),
		DueDate:               parseDate(raw.DueDate),
		Subtotal:              amountOrZero(raw.Subtotal),
		TaxAmount:             amountOrZero(raw.TaxAmount),
		TotalAmount:           amountOrZero(raw.TotalAmount),
		Confidence:            confidenceValue(raw.Confidence),
	}
	if !inv.TotalAmount.IsPositive() {
		return nil, &models.ExtractionError{Method: models.MethodAI, Reason: models.ReasonMissingFields,
			Fields: []string{"totalAmount"}}
	}

	for _, l := range raw.Lines {
		if strings.TrimSpace(l.Description) == "" && strings.TrimSpace(l.Code) == "" {
			continue
		}
		inv.Lines = append(inv.Lines, buildLine(len(inv.Lines), l))
	}
	return inv, nil
}

func buildLine(index int, l rawLine) models.ExtractedLine {
	qty, ok := models.AmountFromJSON(l.Quantity)
	if !ok {
		qty = decimal.NewFromInt(1)
	}
	price, hasPrice := models.AmountFromJSON(l.UnitPrice)
	discount := amountOrZero(l.Discount)
	total, hasTotal := models.AmountFromJSON(l.LineTotal)

	if !hasPrice && hasTotal && qty.IsPositive() {
		price = total.Add(discount).Div(qty).Round(2)
	}
	if !hasTotal {
		total = qty.Mul(price).Sub(discount)
	}

	return models.ExtractedLine{
		Index:       index,
		Code:        strings.TrimSpace(l.Code),
		Description: strings.TrimSpace(l.Description),
		Quantity:    qty,
		UnitPrice:   price,
		Discount:    discount,
		Subtotal:    total,
	}
}

// cleanJSON strips code fences and keeps the text between the first '{' and the last '}'
func cleanJSON(response string) (string, bool) {
	cleaned := strings.TrimSpace(response)
	fence := strings.Repeat("`", 3)
	cleaned = strings.ReplaceAll(cleaned, fence+"json", "")
	cleaned = strings.ReplaceAll(cleaned, fence, "")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

func decodeNumbers(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	return dec.Decode(v)
}

func isRefusal(response string) bool {
	lower := strings.ToLower(response)
	for _, p := range refusalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isExampleData detects template values a model returns when it could not read the document
func isExampleData(inv *models.ExtractedInvoice) bool {
	fields := []string{
		strings.ToLower(inv.SupplierInvoiceNumber),
		strings.ToLower(inv.SupplierName),
		strings.ToLower(inv.SupplierTaxID),
	}
	for _, f := range fields {
		for _, lit := range exampleLiterals {
			if strings.Contains(f, lit) {
				return true
			}
		}
	}
	return exampleNames.MatchString(inv.SupplierName) || exampleNumbers.MatchString(inv.SupplierInvoiceNumber)
}

// adjustConfidence clamps the reported confidence and lowers it for suspicious supplier names
func adjustConfidence(inv *models.ExtractedInvoice) float64 {
	c := clamp01(inv.Confidence)
	switch {
	case inv.SupplierName == "":
		c -= 0.3
	case longDigitRun.MatchString(inv.SupplierName):
		c -= 0.2
	}
	return math.Round(clamp01(c)*1000) / 1000
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func confidenceValue(v interface{}) float64 {
	d, ok := models.AmountFromJSON(v)
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	// Some models answer on a 0-100 scale
	if f > 1 && f <= 100 {
		f /= 100
	}
	return f
}

func amountOrZero(v interface{}) decimal.Decimal {
	d, _ := models.AmountFromJSON(v)
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2/1/2006",
		"2006/01/02",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
