package api

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"payment-service/internal/apperr"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaCreatePayment  = "create_payment"
	schemaCapturePayment = "capture_payment"
	schemaRefundPayment  = "refund_payment"
)

// contracts holds the compiled request schemas by name.
type contracts map[string]*gojsonschema.Schema

func loadContracts() (contracts, error) {
	c := contracts{}
	for _, name := range []string{schemaCreatePayment, schemaCapturePayment, schemaRefundPayment} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, err
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		c[name] = schema
	}
	return c, nil
}

// validate checks body against the named schema. The returned error lists
// every violation.
func (c contracts) validate(name string, body []byte) error {
	result, err := c[name].Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return apperr.Validation("invalid request: %s", strings.Join(problems, "; "))
}
