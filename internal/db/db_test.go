package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func TestConnect_NoURL(t *testing.T) {
	_, err := Connect(context.Background(), models.DatabaseConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, models.ErrNoDatabase)
}

func TestTable_QuotesSchema(t *testing.T) {
	assert.Equal(t, `"public"."suppliers"`, New(nil, "").table("suppliers"))
	assert.Equal(t, `"tenant ""a"""."products"`, New(nil, `tenant "a"`).table("products"))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, models.ErrNotFound, wrap("get", pgx.ErrNoRows))

	cause := errors.New("connection reset")
	err := wrap("get supplier", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get supplier")
}

func TestMigrations_Embedded(t *testing.T) {
	body, err := migrations.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "{{schema}}.purchase_invoices")
	assert.Contains(t, string(body), "session_id              uuid NOT NULL UNIQUE")
}
