package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// requiredFields must be present and non-empty in every extractor answer
var requiredFields = []string{"supplierInvoiceNumber", "totalAmount", "confidence"}

func amountProp() map[string]any {
	return map[string]any{"type": []string{"number", "string", "null"}}
}

func textProp() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

// invoiceSchema describes the JSON record expected from an extractor
func invoiceSchema() map[string]any {
	line := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":        textProp(),
			"description": map[string]any{"type": "string"},
			"quantity":    amountProp(),
			"unitPrice":   amountProp(),
			"discount":    amountProp(),
			"lineTotal":   amountProp(),
		},
		"required": []string{"description"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"supplierName":          textProp(),
			"supplierRut":           textProp(),
			"supplierTaxId":         textProp(),
			"supplierInvoiceNumber": map[string]any{"type": []string{"string", "number"}},
			"issueDate":             textProp(),
			"dueDate":               textProp(),
			"subtotal":              amountProp(),
			"taxAmount":             amountProp(),
			"totalAmount":           map[string]any{"type": []string{"number", "string"}},
			"confidence":            map[string]any{"type": []string{"number", "string"}},
			"lines":                 map[string]any{"type": []string{"array", "null"}, "items": line},
		},
		"required": requiredFields,
	}
}

// compileSchema compiles the invoice schema once per extractor
func compileSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(invoiceSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// missingRequired lists required fields that are absent, null or blank
func missingRequired(doc map[string]any) []string {
	var missing []string
	for _, f := range requiredFields {
		v, ok := doc[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && len(bytes.TrimSpace([]byte(s))) == 0 {
			missing = append(missing, f)
		}
	}
	return missing
}
