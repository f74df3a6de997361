package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/ai"
	"github.com/facturaIA/purchase-invoice-ingest/internal/auth"
	"github.com/facturaIA/purchase-invoice-ingest/internal/memstore"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

const invoiceText = `ACME Ltda
RUT: 76.123.456-7
FACTURA ELECTRONICA N° 2231
Fecha emision: 15/03/2024
Cantidad Descripcion Precio Total
2 Harina 25kg 18.000 36.000
Neto $ 100.000
IVA 19% $ 19.000
TOTAL $ 119.000
`

const acmeResponse = `{"supplierName": "ACME Ltda", "supplierRut": "76.123.456-7", "supplierInvoiceNumber": "2231",
"issueDate": "2024-03-15", "subtotal": 100000, "taxAmount": 19000, "totalAmount": 119000, "confidence": 0.95,
"lines": [{"description": "Harina 25kg", "quantity": 2, "unitPrice": 18000, "lineTotal": 36000}]}`

type fixedProvider struct{}

func (fixedProvider) Name() string { return "fixed" }

func (fixedProvider) Complete(context.Context, string, string) (*ai.Completion, error) {
	return &ai.Completion{Text: acmeResponse}, nil
}

type fakeArchive struct {
	stored  []string
	removed []string
}

func (a *fakeArchive) Store(_ context.Context, filename string, r io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	a.stored = append(a.stored, filename)
	return "purchase-invoices/2024/03/" + filename, nil
}

func (a *fakeArchive) PresignedURL(_ context.Context, objectPath string) (string, error) {
	return "https://minio.local/" + objectPath + "?X-Amz-Signature=abc", nil
}

func (a *fakeArchive) Remove(_ context.Context, objectPath string) error {
	a.removed = append(a.removed, objectPath)
	return nil
}

func newTestHandler(t *testing.T, opts Options) (*Handler, *memstore.Invoices) {
	t.Helper()

	catalog := memstore.NewCatalog(
		[]models.Supplier{{Name: "ACME Ltda", TaxID: "76.123.456-7", Active: true, LastActivityAt: time.Now()}},
		[]models.Product{{Name: "Harina Quintal 25kg", SKU: "HAR-25", Active: true}},
	)
	invoices := memstore.NewInvoices()

	cfg := &models.Config{}
	cfg.ApplyDefaults()

	extractor, err := ai.NewExtractor(fixedProvider{}, ai.Options{
		Timeout:       time.Second,
		TaxRate:       cfg.Pipeline.TaxRate,
		OCRConfidence: cfg.Pipeline.OCRConfidence,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	deps := workflow.Deps{
		Extractor:       extractor,
		SupplierCatalog: catalog,
		ProductCatalog:  catalog,
		Corrections:     memstore.NewCorrections(),
		Invoices:        invoices,
		Sessions:        memstore.NewSessions(),
		ExtractionLog:   memstore.NewExtractionLog(),
	}
	if opts.Archive != nil {
		deps.Documents = opts.Archive
	}
	svc := workflow.NewService(deps, cfg.Pipeline, zerolog.Nop())

	return NewHandler(cfg, svc, opts, zerolog.Nop()), invoices
}

func do(t *testing.T, router http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	rec, body := do(t, h.SetupRoutes(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
}

type downDatabase struct{}

func (downDatabase) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_DatabaseDown(t *testing.T) {
	h, _ := newTestHandler(t, Options{Database: downDatabase{}})
	rec, body := do(t, h.SetupRoutes(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestPreviewAndCommit(t *testing.T) {
	h, invoices := newTestHandler(t, Options{})
	router := h.SetupRoutes()

	rec, body := do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{
		Text:     invoiceText,
		FileName: "acme-2231.pdf",
		Method:   "ai",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, string(workflow.StateReadyToCommit), body["state"])
	id := body["id"].(string)

	pending := body["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, workflow.DecisionKindCommit, pending[0].(map[string]any)["kind"])

	rec, body = do(t, router, httptest.NewRequest(http.MethodGet, "/api/purchase-invoices/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["id"])

	rec, body = do(t, router, httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+id+"/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(workflow.StateComplete), body["state"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "PI-000001", result["internalNumber"])
	require.Len(t, invoices.All(), 1)
	assert.Equal(t, "anonymous", invoices.All()[0].Draft.CreatedBy.ID)

	// A completed session cannot be committed again
	rec, _ = do(t, router, httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+id+"/commit", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, invoices.All(), 1)
}

func TestPreview_SecondUploadWarnsDuplicate(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	router := h.SetupRoutes()
	preview := func() map[string]any {
		rec, body := do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{Text: invoiceText}))
		require.Equal(t, http.StatusCreated, rec.Code)
		return body
	}

	first := preview()
	rec, _ := do(t, router, httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+first["id"].(string)+"/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	second := preview()
	assert.Equal(t, string(workflow.StateDuplicateWarning), second["state"])
	id := second["id"].(string)

	rec, body := do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+id+"/duplicate", DuplicateDecision{Action: "maybe"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+id+"/duplicate", DuplicateDecision{Action: ActionCancel}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(workflow.StateCancelled), body["state"])

	rec, _ = do(t, router, httptest.NewRequest(http.MethodGet, "/api/purchase-invoices/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreview_Unreadable(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	rec, body := do(t, h.SetupRoutes(), jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{Text: "%PDF-1.4 /Type /Filter endobj"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, models.ReasonUnreadableText, body["reason"])
	session := body["session"].(map[string]any)
	assert.Equal(t, string(workflow.StateFailed), session["state"])
}

func TestPreview_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	router := h.SetupRoutes()

	rec, _ := do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{Text: invoiceText, Method: "vision"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/preview", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = do(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview_MultipartArchivesFile(t *testing.T) {
	archive := &fakeArchive{}
	h, _ := newTestHandler(t, Options{Archive: archive})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", invoiceText))
	require.NoError(t, mw.WriteField("method", "ai"))
	part, err := mw.CreateFormFile("file", "acme-2231.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, body := do(t, h.SetupRoutes(), req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"acme-2231.pdf"}, archive.stored)
	assert.Equal(t, "purchase-invoices/2024/03/acme-2231.pdf", body["sourcePath"])
}

func TestSession_ArchivedDocumentLinkAndCancel(t *testing.T) {
	archive := &fakeArchive{}
	h, _ := newTestHandler(t, Options{Archive: archive})
	router := h.SetupRoutes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", invoiceText))
	part, err := mw.CreateFormFile("file", "acme-2231.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, body := do(t, router, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body["id"].(string)

	rec, body = do(t, router, httptest.NewRequest(http.MethodGet, "/api/purchase-invoices/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://minio.local/purchase-invoices/2024/03/acme-2231.pdf?X-Amz-Signature=abc", body["sourceUrl"])

	rec, _ = do(t, router, httptest.NewRequest(http.MethodDelete, "/api/purchase-invoices/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"purchase-invoices/2024/03/acme-2231.pdf"}, archive.removed)
}

func TestSessionRoutes_InvalidInput(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	router := h.SetupRoutes()

	rec, _ := do(t, router, httptest.NewRequest(http.MethodGet, "/api/purchase-invoices/sessions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, httptest.NewRequest(http.MethodGet, "/api/purchase-invoices/sessions/6f1c2d3e-0000-4000-8000-000000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/sessions/6f1c2d3e-0000-4000-8000-000000000000/supplier", SupplierDecision{Action: ActionConfirm}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	authenticator := auth.NewAuthenticator(models.AuthConfig{JWTSecret: "secret", Issuer: "test", TokenTTL: time.Hour})
	h, invoices := newTestHandler(t, Options{Auth: authenticator})
	router := h.SetupRoutes()

	rec, _ := do(t, router, jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{Text: invoiceText}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public
	rec, _ = do(t, router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := authenticator.GenerateToken(models.UserRef{ID: "user-9", Email: "compras@example.com"})
	require.NoError(t, err)

	req := jsonRequest(http.MethodPost, "/api/purchase-invoices/preview", PreviewRequest{Text: invoiceText})
	req.Header.Set("Authorization", "Bearer "+token)
	rec, body := do(t, router, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-9", body["createdBy"].(map[string]any)["id"])

	req = httptest.NewRequest(http.MethodPost, "/api/purchase-invoices/sessions/"+body["id"].(string)+"/commit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = do(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9", invoices.All()[0].Draft.CreatedBy.ID)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&models.ExtractionError{Reason: models.ReasonRefused}, http.StatusUnprocessableEntity},
		{&models.DuplicateInvoiceError{SupplierInvoiceNumber: "1"}, http.StatusConflict},
		{&models.TransitionError{From: "complete", Action: "commit"}, http.StatusConflict},
		{&models.ValidationError{Field: "supplier", Line: -1}, http.StatusUnprocessableEntity},
		{models.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("product x: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("load: %w", models.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), c.err.Error())
	}
}
