package resumes

import "time"

// Document is an arbitrary structured JSON object.
type Document = map[string]any

// Resume is a stored resume record.
type Resume struct {
	ID        string
	Payload   Document
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Input is a validated create/replace request body.
type Input struct {
	// ID is the resumeId carried by the body, if any.
	ID       string
	Document Document
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return val
	}
}

func (r Resume) clone() Resume {
	r.Payload = cloneDocument(r.Payload)
	return r
}
