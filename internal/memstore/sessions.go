package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

var (
	_ workflow.SessionStore  = (*Sessions)(nil)
	_ workflow.ExtractionLog = (*ExtractionLog)(nil)
)

// Sessions keeps sessions JSON-encoded so callers never share state with the store
type Sessions struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

func NewSessions() *Sessions {
	return &Sessions{data: make(map[uuid.UUID][]byte)}
}

func (s *Sessions) Save(_ context.Context, sess *workflow.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	s.data[sess.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *Sessions) Load(_ context.Context, id uuid.UUID) (*workflow.Session, error) {
	s.mu.RLock()
	b, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	var sess workflow.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *Sessions) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// ExtractionLog keeps extraction attempts in memory
type ExtractionLog struct {
	mu      sync.Mutex
	entries []models.ExtractionLogEntry
}

func NewExtractionLog() *ExtractionLog {
	return &ExtractionLog{}
}

func (l *ExtractionLog) Record(_ context.Context, entry *models.ExtractionLogEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, *entry)
	l.mu.Unlock()
	return nil
}

// Entries returns a copy of the recorded attempts
func (l *ExtractionLog) Entries() []models.ExtractionLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ExtractionLogEntry(nil), l.entries...)
}
