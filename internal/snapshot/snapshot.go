package snapshot

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kurihiro0119/parity-metrics/internal/aggregator"
	"github.com/kurihiro0119/parity-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/parity-metrics/internal/errors"
)

//go:embed schema/snapshot.schema.json
var schemaFS embed.FS

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schema/snapshot.schema.json")
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
})

// FieldError is one schema violation
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Description
}

// ValidationResult holds the outcome of a schema check
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Validate checks raw snapshot JSON against the embedded schema
func Validate(data []byte) (*ValidationResult, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to compile snapshot schema", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, apperrors.NewBadRequestError("snapshot is not valid JSON", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, verr := range result.Errors() {
		out.Errors = append(out.Errors, FieldError{
			Field:       verr.Field(),
			Description: verr.Description(),
		})
	}
	return out, nil
}

// Parse validates and decodes one snapshot. Rates are normalized from the
// counters before the snapshot is returned.
func Parse(data []byte) (*domain.Snapshot, error) {
	result, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		msg := "snapshot does not match schema"
		if len(result.Errors) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, result.Errors[0])
		}
		return nil, apperrors.NewBadRequestError(msg, nil)
	}

	var s domain.Snapshot
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, apperrors.NewBadRequestError("failed to decode snapshot", err)
	}
	aggregator.Normalize(&s)
	return &s, nil
}

// Decode reads and parses one snapshot from r
func Decode(r io.Reader) (*domain.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read snapshot", err)
	}
	return Parse(data)
}

// Encode writes s as indented JSON
func Encode(w io.Writer, s *domain.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
