package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

var (
	_ workflow.SessionStore  = (*Sessions)(nil)
	_ workflow.ExtractionLog = (*ExtractionLog)(nil)
)

// Sessions keeps workflow sessions as JSONB documents
type Sessions struct {
	store *Store
}

func (s *Sessions) Save(ctx context.Context, sess *workflow.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, state, data, created_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = now()
	`, s.store.table("workflow_sessions"))

	if _, err := s.store.pool.Exec(ctx, query, sess.ID, string(sess.State), data, sess.CreatedBy.ID); err != nil {
		return wrap("save session", err)
	}
	return nil
}

func (s *Sessions) Load(ctx context.Context, id uuid.UUID) (*workflow.Session, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.store.table("workflow_sessions"))

	var data []byte
	if err := s.store.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, wrap("load session", err)
	}

	var sess workflow.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *Sessions) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.store.table("workflow_sessions"))
	if _, err := s.store.pool.Exec(ctx, query, id); err != nil {
		return wrap("delete session", err)
	}
	return nil
}

// ExtractionLog appends extraction attempts for auditing and prompt tuning
type ExtractionLog struct {
	store *Store
}

func (l *ExtractionLog) Record(ctx context.Context, e *models.ExtractionLogEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, method, file_name, file_size, text_excerpt, response,
			duration_ms, confidence, success, error, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, l.store.table("extraction_logs"))

	_, err := l.store.pool.Exec(ctx, query,
		e.ID,
		string(e.Method),
		e.FileName,
		e.FileSize,
		e.TextExcerpt,
		e.Response,
		e.Duration.Milliseconds(),
		e.Confidence,
		e.Success,
		e.Error,
		e.CreatedBy,
		e.CreatedAt,
	)
	if err != nil {
		return wrap("record extraction", err)
	}
	return nil
}
