package resumes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxPayloadBytes matches the DynamoDB item size limit.
const DefaultMaxPayloadBytes = 400 * 1024

const idField = "resumeId"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("resumeid", func(fl validator.FieldLevel) bool {
		return ValidID(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register resumeid validation: %v", err))
	}
	return v
}

// ParsePayload validates a create (pathID == "") or replace body and returns
// the document with any resumeId field lifted out of it.
func ParsePayload(body []byte, pathID string, maxBytes int) (Input, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	if len(body) > maxBytes {
		return Input{}, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidPayload, maxBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Input{}, fmt.Errorf("%w: request body is required", ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Input{}, fmt.Errorf("%w: body is not valid JSON", ErrInvalidPayload)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Input{}, fmt.Errorf("%w: body must contain a single JSON object", ErrInvalidPayload)
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return Input{}, fmt.Errorf("%w: payload must be a JSON object, got %s", ErrInvalidPayload, jsonKind(raw))
	}

	in := Input{Document: doc}
	if rawID, present := doc[idField]; present {
		id, ok := rawID.(string)
		if !ok {
			return Input{}, fmt.Errorf("%w: %s must be a string", ErrInvalidPayload, idField)
		}
		if pathID != "" && id != pathID {
			return Input{}, fmt.Errorf("%w: %s %q in body does not match path id %q", ErrInvalidPayload, idField, id, pathID)
		}
		if err := validate.Var(id, "required,resumeid"); err != nil {
			return Input{}, fmt.Errorf("%w: %s must be 1-128 characters of [A-Za-z0-9._~-] starting with a letter or digit", ErrInvalidPayload, idField)
		}
		in.ID = id
		delete(doc, idField)
	}
	return in, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
