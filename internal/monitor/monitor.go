// Package monitor validates inbound request bodies against JSON schemas
// before they reach the services.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// createOrderSchema is the contract for POST /api/payment/create-order.
const createOrderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["user_id", "amount", "description", "payment_method"],
  "properties": {
    "user_id": {"type": "string", "minLength": 1},
    "amount": {"type": "integer", "minimum": 1},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3},
    "description": {"type": "string", "minLength": 1},
    "payment_method": {
      "type": "string",
      "enum": [
        "wallet_redirect", "qr_code", "card_tokenized", "bank_transfer",
        "wallet-redirect", "qr-code", "card-tokenized", "bank-transfer"
      ]
    },
    "metadata": {"type": "object"},
    "callback_url": {"type": "string"},
    "return_url": {"type": "string"}
  }
}`

// ContractMonitor validates request bodies against a compiled JSON schema.
type ContractMonitor struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewCreateOrderMonitor compiles the create-order contract.
func NewCreateOrderMonitor() (*ContractMonitor, error) {
	return newMonitor(createOrderSchema)
}

func newMonitor(schema string) (*ContractMonitor, error) {
	loader := gojsonschema.NewStringLoader(schema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return nil, fmt.Errorf("monitor: compiling schema: %w", err)
	}
	return &ContractMonitor{schemaLoader: loader}, nil
}

// Validate checks the body against the schema. It returns false with a list
// of violation descriptions when the body does not conform.
func (cm *ContractMonitor) Validate(body []byte) (bool, []string, error) {
	result, err := gojsonschema.Validate(cm.schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violation descriptions into one message.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "validation errors: " + strings.Join(violations, "; ")
}
