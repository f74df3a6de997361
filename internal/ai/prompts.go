package ai

import "fmt"

func buildSystemPrompt() string {
	return `Eres un experto en procesamiento de facturas de compra chilenas. Solo extraes datos reales del texto proporcionado, NUNCA datos de ejemplo o ficticios. Respondes unicamente con un objeto JSON valido.`
}

// buildUserPrompt asks for the invoice fields in a fixed JSON shape
func buildUserPrompt(text string) string {
	return fmt.Sprintf(`Analiza este texto de factura y extrae los datos EXACTOS en JSON.

INSTRUCCIONES:
1. El PROVEEDOR es quien emite la factura (nombre y RUT en el encabezado), NO el cliente.
2. "supplierInvoiceNumber" es el numero o folio impreso por el proveedor (ej: "Factura N° 2231", "Folio 2231").
3. El TOTAL puede aparecer como "TOTAL", "TOTAL A PAGAR", "MONTO TOTAL".
4. El IVA aparece como "I.V.A.", "IVA", "Impuesto" o "19%%".
5. El subtotal aparece como "SUBTOTAL", "NETO", "VALOR NETO" o "AFECTO".
6. Los montos en formato chileno ($160.000, 160.000) se devuelven como numeros sin separadores (160000).
7. Si un dato no aparece en el texto usa null. No inventes valores.
8. "confidence" es tu certeza entre 0 y 1 sobre la extraccion completa.

Responde SOLO con este JSON:
{
  "supplierName": "nombre del proveedor",
  "supplierRut": "RUT del proveedor",
  "supplierInvoiceNumber": "numero de factura",
  "issueDate": "YYYY-MM-DD",
  "dueDate": "YYYY-MM-DD o null",
  "subtotal": 0,
  "taxAmount": 0,
  "totalAmount": 0,
  "confidence": 0.0,
  "lines": [
    {"code": "codigo o null", "description": "descripcion", "quantity": 1, "unitPrice": 0, "discount": 0, "lineTotal": 0}
  ]
}

TEXTO DE LA FACTURA:
%s`, text)
}
