package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func TestObjectName(t *testing.T) {
	now := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

	name := ObjectName(now, "factura 001.pdf")
	assert.True(t, strings.HasPrefix(name, "2024/03/"), name)
	assert.True(t, strings.HasSuffix(name, "-factura 001.pdf"), name)

	// Client-supplied directories are dropped
	name = ObjectName(now, `C:\Users\ana\..\factura.pdf`)
	assert.True(t, strings.HasSuffix(name, "-factura.pdf"), name)
	assert.NotContains(t, name, "..")

	assert.True(t, strings.HasSuffix(ObjectName(now, ""), "-document.pdf"))
}

func TestNew_NotConfigured(t *testing.T) {
	_, err := New(context.Background(), models.StorageConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectNameStripsBucket(t *testing.T) {
	a := &Archive{bucket: "purchase-invoices"}
	assert.Equal(t, "2024/03/x.pdf", a.objectName("purchase-invoices/2024/03/x.pdf"))
	assert.Equal(t, "2024/03/x.pdf", a.objectName("2024/03/x.pdf"))
}
