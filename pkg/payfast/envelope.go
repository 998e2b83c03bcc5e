package payfast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is the decoded success arm of the provider's response envelope.
type Result struct {
	// Fields holds the subscription fields returned by the provider. For
	// endpoints that return a bare acknowledgement instead of an object the
	// raw value is stored under the "response" key.
	Fields map[string]interface{}

	// Message is the human-readable message accompanying the response.
	Message string
}

// BusinessError is a well-formed rejection from the provider: the envelope
// carried a message but no response payload. It is terminal and never retried.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("payfast rejected request: %s", e.Message)
}

// envelope mirrors the provider's wire format. Success and business errors
// share the same outer shape; only the presence of "response" distinguishes
// them, independent of the HTTP status code.
type envelope struct {
	Data struct {
		Response json.RawMessage `json:"response"`
		Message  string          `json:"message"`
	} `json:"data"`
}

var jsonNull = []byte("null")

// decodeEnvelope decodes a raw provider body into the tagged union:
// a *Result when data.response is present, a *BusinessError when only
// data.message is present, and a decode error otherwise.
func decodeEnvelope(body []byte) (*Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed response envelope: %w", err)
	}

	raw := bytes.TrimSpace(env.Data.Response)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		if env.Data.Message == "" {
			return nil, fmt.Errorf("response envelope carried neither response nor message")
		}
		return nil, &BusinessError{Message: env.Data.Message}
	}

	res := &Result{Message: env.Data.Message}
	if err := json.Unmarshal(raw, &res.Fields); err != nil {
		// Some endpoints acknowledge with a bare scalar (e.g. true).
		var scalar interface{}
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return nil, fmt.Errorf("malformed response payload: %w", err)
		}
		res.Fields = map[string]interface{}{"response": scalar}
	}
	return res, nil
}
