package matching

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// newProductConfidence is the fixed confidence of a generated catalog proposal
const newProductConfidence = 0.7

// Category keywords, checked in order
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"PAPELERIA", []string{"papel", "resma", "cuaderno", "lapiz", "boligrafo", "carpeta", "sobre", "archivador"}},
	{"LIMPIEZA", []string{"limpieza", "detergente", "cloro", "jabon", "desinfectante", "escoba", "trapero", "toalla"}},
	{"OFICINA", []string{"oficina", "corchetera", "clip", "tijera", "calculadora", "agenda", "pizarra"}},
	{"TECNOLOGIA", []string{"computador", "notebook", "mouse", "teclado", "monitor", "cable", "usb", "impresora", "toner", "cartucho"}},
	{"MANTENIMIENTO", []string{"herramienta", "tornillo", "pintura", "repuesto", "ampolleta", "cinta", "martillo", "taladro"}},
	{"ALIMENTOS", []string{"harina", "azucar", "aceite", "arroz", "sal", "cafe", "te", "leche", "pan", "agua", "bebida"}},
}

// SuggestNewProduct proposes a catalog entry for a line a human marked new.
// The result is a pending marker, never a catalog row.
func SuggestNewProduct(line models.ExtractedLine, markup float64) models.PendingProduct {
	words := tokens(line.Description, false)

	name := strings.TrimSpace(line.Description)
	if len(words) > 0 {
		n := min(3, len(words))
		name = cases.Title(language.Spanish).String(strings.Join(words[:n], " "))
	}

	return models.PendingProduct{
		ID:                 uuid.New(),
		LineIndex:          line.Index,
		Description:        line.Description,
		SuggestedName:      name,
		SuggestedSKU:       suggestSKU(line, words),
		Category:           categorize(words),
		Cost:               line.UnitPrice,
		SuggestedSalePrice: line.UnitPrice.Mul(decimal.NewFromFloat(markup)).Round(0),
		Confidence:         newProductConfidence,
		CreatedAt:          time.Now(),
	}
}

func suggestSKU(line models.ExtractedLine, words []string) string {
	if code := strings.TrimSpace(line.Code); code != "" {
		return strings.ToUpper(code)
	}

	var initials strings.Builder
	for _, w := range words {
		if initials.Len() == 4 {
			break
		}
		r := []rune(strings.ToUpper(w))
		if len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z' {
			initials.WriteRune(r[0])
		}
	}
	prefix := initials.String()
	if prefix == "" {
		prefix = "PRD"
	}

	h := fnv.New32a()
	h.Write([]byte(NormalizeText(line.Description)))
	return fmt.Sprintf("%s-%04d", prefix, h.Sum32()%10000)
}

func categorize(words []string) string {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	for _, c := range categoryKeywords {
		for _, k := range c.words {
			if set[k] {
				return c.category
			}
		}
	}
	return "GENERAL"
}
