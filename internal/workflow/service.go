package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/facturaIA/purchase-invoice-ingest/internal/ai"
	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/ocr"
	"github.com/facturaIA/purchase-invoice-ingest/internal/services"
)

// logExcerpt bounds the text and response stored in the extraction log
const logExcerpt = 5000

// SessionStore persists sessions between human decisions.
// Load returns models.ErrSessionNotFound for unknown ids.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExtractionLog records every extraction attempt
type ExtractionLog interface {
	Record(ctx context.Context, entry *models.ExtractionLogEntry) error
}

// DocumentStore removes archived originals of discarded sessions
type DocumentStore interface {
	Remove(ctx context.Context, objectPath string) error
}

// Deps are the collaborators of a Service
type Deps struct {
	Extractor       *ai.Extractor
	SupplierCatalog matching.SupplierCatalog
	ProductCatalog  matching.ProductCatalog
	Corrections     matching.CorrectionStore
	Invoices        services.InvoiceStore
	Sessions        SessionStore
	ExtractionLog   ExtractionLog // optional
	Documents       DocumentStore // optional
}

// PreviewRequest is one uploaded document, already converted to text
type PreviewRequest struct {
	Text       string
	FileName   string
	FileSize   int64
	Method     models.ExtractionMethod
	SourcePath string // Archived original, if any
}

// Service runs the pipeline and applies human decisions to stored sessions
type Service struct {
	deps       Deps
	cfg        models.PipelineConfig
	preparer   *ocr.Preprocessor
	suppliers  *matching.SupplierMatcher
	products   *matching.ProductMatcher
	validator  *services.InvoiceValidator
	duplicates *services.DuplicateDetector
	committer  *services.InvoiceDraftCommitter
	logger     zerolog.Logger

	locks sync.Map // session id -> *sync.Mutex
}

// NewService wires the pipeline components over deps
func NewService(deps Deps, cfg models.PipelineConfig, logger zerolog.Logger) *Service {
	return &Service{
		deps:       deps,
		cfg:        cfg,
		preparer:   ocr.NewPreprocessor(cfg.TextCeiling),
		suppliers:  matching.NewSupplierMatcher(deps.SupplierCatalog, deps.Corrections, cfg, logger),
		products:   matching.NewProductMatcher(deps.ProductCatalog, deps.Corrections, cfg, logger),
		validator:  services.NewInvoiceValidator(cfg),
		duplicates: services.NewDuplicateDetector(deps.Invoices, cfg, logger),
		committer:  services.NewInvoiceDraftCommitter(deps.Invoices, cfg, logger),
		logger:     logger,
	}
}

// ProductMatcher exposes the line matcher, e.g. to swap its scorer
func (s *Service) ProductMatcher() *matching.ProductMatcher {
	return s.products
}

func (s *Service) lock(id uuid.UUID) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Preview runs readability, preparation, extraction, concurrent matching, validation
// and the early duplicate check, then stores the session at its first decision point.
// On extraction failure the failed session is stored and returned with the error.
func (s *Service) Preview(ctx context.Context, req PreviewRequest, user models.UserRef) (*Session, error) {
	sess := NewSession(user)
	sess.SourcePath = req.SourcePath
	log := s.logger.With().Str("session_id", sess.ID.String()).Str("file", req.FileName).Logger()

	if r := ocr.CheckReadability(req.Text); !r.Valid {
		err := &models.ExtractionError{Method: req.Method, Reason: models.ReasonUnreadableText, Err: errors.New(r.Reason)}
		s.recordExtraction(ctx, req, &ai.Result{}, err, user)
		return s.fail(ctx, sess, err, user)
	}

	prepared := s.preparer.Prepare(ocr.FilterInvoiceText(req.Text))
	res, err := s.deps.Extractor.Extract(ctx, ai.Request{
		Text:     prepared,
		FileName: req.FileName,
		FileSize: req.FileSize,
		Method:   req.Method,
	})
	s.recordExtraction(ctx, req, res, err, user)
	if err != nil {
		return s.fail(ctx, sess, err, user)
	}
	if err := sess.BeginMatching(*res.Invoice, user); err != nil {
		return nil, err
	}

	supplier, lines, err := s.match(ctx, &sess.Invoice)
	if err != nil {
		return s.fail(ctx, sess, err, user)
	}

	warnings := s.validator.Validate(&sess.Invoice)
	dups, err := s.duplicates.FindExisting(ctx, sess.Invoice.SupplierInvoiceNumber, supplier.SupplierID, sess.Invoice.SupplierName)
	if err != nil {
		return s.fail(ctx, sess, err, user)
	}

	if err := sess.ApplyMatches(supplier, lines, warnings, dups, user); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	log.Info().
		Str("state", string(sess.State)).
		Str("supplier_decision", string(sess.Supplier.Decision)).
		Int("lines", len(sess.Lines)).
		Int("warnings", len(warnings)).
		Int("duplicates", len(dups)).
		Msg("preview.ok")
	return sess, nil
}

// match runs the supplier matcher and one product match per line concurrently
func (s *Service) match(ctx context.Context, inv *models.ExtractedInvoice) (SupplierResolution, []LineState, error) {
	var (
		supplierMatch *matching.SupplierMatch
		lineMatches   = make([]*matching.ProductMatch, len(inv.Lines))
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MatchConcurrency > 0 {
		g.SetLimit(s.cfg.MatchConcurrency)
	}
	g.Go(func() error {
		m, err := s.suppliers.Match(gctx, inv.SupplierName, inv.SupplierTaxID)
		supplierMatch = m
		return err
	})
	for i, line := range inv.Lines {
		g.Go(func() error {
			m, err := s.products.Match(gctx, line)
			lineMatches[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return SupplierResolution{}, nil, err
	}

	supplier := SupplierResolution{
		RawName:     inv.SupplierName,
		RawTaxID:    inv.SupplierTaxID,
		Decision:    models.DecisionNeedsConfirmation,
		Method:      supplierMatch.Method,
		Suggestions: supplierMatch.Suggestions,
	}
	if supplierMatch.HasExactMatch {
		id := supplierMatch.ExactMatch.ID
		supplier.Decision = models.DecisionAutoMatched
		supplier.SupplierID = &id
		supplier.Name = supplierMatch.ExactMatch.Name
	}

	lines := make([]LineState, len(inv.Lines))
	for i, m := range lineMatches {
		ls := LineState{
			Line:        inv.Lines[i],
			Decision:    m.Decision,
			Reason:      m.Reason,
			Confidence:  m.Confidence,
			Method:      m.Method,
			Suggestions: m.Suggestions,
		}
		if m.Product != nil {
			id := m.Product.ID
			ls.ProductID = &id
			ls.ProductName = m.Product.Name
		}
		lines[i] = ls
	}
	return supplier, lines, nil
}

func (s *Service) fail(ctx context.Context, sess *Session, cause error, user models.UserRef) (*Session, error) {
	if err := sess.Fail(cause.Error(), user); err == nil {
		if err := s.deps.Sessions.Save(ctx, sess); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID.String()).Msg("session.save_failed")
		}
	}
	s.logger.Warn().Err(cause).Str("session_id", sess.ID.String()).Msg("preview.failed")
	return sess, cause
}

func (s *Service) recordExtraction(ctx context.Context, req PreviewRequest, res *ai.Result, extractErr error, user models.UserRef) {
	if s.deps.ExtractionLog == nil {
		return
	}
	entry := &models.ExtractionLogEntry{
		ID:          uuid.New(),
		Method:      req.Method,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		TextExcerpt: excerpt(req.Text),
		Success:     extractErr == nil,
		CreatedBy:   user.ID,
		CreatedAt:   time.Now(),
	}
	if res != nil {
		entry.Response = excerpt(res.RawResponse)
		entry.Duration = res.Duration
		if res.Invoice != nil {
			entry.Confidence = res.Invoice.Confidence
		}
	}
	if extractErr != nil {
		entry.Error = extractErr.Error()
	}
	if err := s.deps.ExtractionLog.Record(ctx, entry); err != nil {
		s.logger.Error().Err(err).Msg("extraction_log.failed")
	}
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= logExcerpt {
		return s
	}
	return string([]rune(s)[:logExcerpt])
}

// Get loads a session
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.deps.Sessions.Load(ctx, id)
}

// update loads a session under its lock, applies fn and saves the result.
// When fn fails nothing is saved.
func (s *Service) update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// ConfirmSupplier resolves the supplier to an existing catalog entry
func (s *Service) ConfirmSupplier(ctx context.Context, id, supplierID uuid.UUID, user models.UserRef) (*Session, error) {
	supplier, err := s.deps.SupplierCatalog.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("supplier %s: %w", supplierID, err)
	}
	return s.update(ctx, id, func(sess *Session) error {
		return sess.ConfirmSupplier(*supplier, user)
	})
}

// MarkSupplierNew flags the supplier as to be created later
func (s *Service) MarkSupplierNew(ctx context.Context, id uuid.UUID, user models.UserRef) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.MarkSupplierNew(user)
	})
}

// ConfirmProduct resolves line index to an existing catalog product
func (s *Service) ConfirmProduct(ctx context.Context, id uuid.UUID, index int, productID uuid.UUID, user models.UserRef) (*Session, error) {
	product, err := s.deps.ProductCatalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	return s.update(ctx, id, func(sess *Session) error {
		return sess.ConfirmProduct(index, *product, user)
	})
}

// MarkLineNew flags line index as a new product
func (s *Service) MarkLineNew(ctx context.Context, id uuid.UUID, index int, user models.UserRef) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.MarkLineNew(index, user)
	})
}

// SkipLine leaves line index as free text
func (s *Service) SkipLine(ctx context.Context, id uuid.UUID, index int, user models.UserRef) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.SkipLine(index, user)
	})
}

// AcknowledgeWarnings accepts the validation warnings
func (s *Service) AcknowledgeWarnings(ctx context.Context, id uuid.UUID, user models.UserRef) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.AcknowledgeWarnings(user)
	})
}

// ResolveDuplicate proceeds past, or cancels on, a duplicate warning.
// A cancelled session is removed from the store.
func (s *Service) ResolveDuplicate(ctx context.Context, id uuid.UUID, proceed bool, user models.UserRef) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.ResolveDuplicate(proceed, user); err != nil {
		return nil, err
	}
	if sess.State == StateCancelled {
		if err := s.discard(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Cancel discards a session. Nothing it queued is persisted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, user models.UserRef) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.Cancel(user); err != nil {
		return nil, err
	}
	if err := s.discard(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info().Str("session_id", id.String()).Msg("session.cancelled")
	return sess, nil
}

// discard deletes a cancelled session with its lock and archived original.
// Callers hold the session lock.
func (s *Service) discard(ctx context.Context, sess *Session) error {
	if err := s.deps.Sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.locks.Delete(sess.ID)

	if sess.SourcePath != "" && s.deps.Documents != nil {
		if err := s.deps.Documents.Remove(ctx, sess.SourcePath); err != nil {
			s.logger.Warn().Err(err).
				Str("session_id", sess.ID.String()).
				Str("source_path", sess.SourcePath).
				Msg("document.remove_failed")
		}
	}
	return nil
}

// Commit writes a ready session. A duplicate found by the atomic re-check moves
// the session to StateDuplicateWarning and returns *models.DuplicateInvoiceError.
func (s *Service) Commit(ctx context.Context, id uuid.UUID, user models.UserRef) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.BeginCommit(user); err != nil {
		return nil, err
	}
	reconciled, err := sess.Reconciled()
	if err != nil {
		return nil, err
	}

	result, commitErr := s.committer.Commit(ctx, reconciled, user)
	var dup *models.DuplicateInvoiceError
	switch {
	case commitErr == nil:
		s.flushCorrections(ctx, sess)
		_ = sess.CompleteCommit(*result, user)
		defer s.locks.Delete(id)
	case errors.As(commitErr, &dup):
		_ = sess.RejectCommit(dup.Existing, user)
	default:
		_ = sess.AbortCommit(user)
	}

	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		if commitErr == nil {
			// The invoice is stored; the session id guards against a second write
			s.logger.Error().Err(err).Str("session_id", id.String()).Msg("session.save_failed")
			return sess, nil
		}
		return nil, fmt.Errorf("save session: %w", err)
	}
	if commitErr != nil {
		return sess, commitErr
	}
	return sess, nil
}

// flushCorrections persists the corrections queued by human decisions
func (s *Service) flushCorrections(ctx context.Context, sess *Session) {
	if s.deps.Corrections == nil {
		return
	}
	for i := range sess.PendingCorrections {
		rec := sess.PendingCorrections[i]
		if err := s.deps.Corrections.SaveCorrection(ctx, &rec); err != nil {
			s.logger.Error().Err(err).
				Str("session_id", sess.ID.String()).
				Str("kind", string(rec.Kind)).
				Msg("correction.save_failed")
		}
	}
}
