package eduwire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// payloadShape discriminates the tolerated server response shapes so that an
// unexpected shape fails loudly instead of being silently misparsed.
type payloadShape int

const (
	shapeEmpty payloadShape = iota
	shapeBare              // bare array, object, or scalar payload
	shapeEnvelope          // {success, data, message} wrapper
)

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// detectShape classifies a response body into one of the known shapes.
func detectShape(body []byte) (payloadShape, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return shapeEmpty, nil
	}

	if trimmed[0] != '{' {
		// Arrays and scalars are always bare payloads.
		return shapeBare, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return shapeEmpty, fmt.Errorf("malformed response object: %w", err)
	}

	raw, hasSuccess := probe["success"]
	if !hasSuccess {
		return shapeBare, nil
	}

	// A "success" key marks the envelope; anything non-boolean there is a
	// shape this client does not know.
	var success bool
	if err := json.Unmarshal(raw, &success); err != nil {
		return shapeEmpty, fmt.Errorf("unrecognized response shape: non-boolean success field")
	}
	return shapeEnvelope, nil
}

// normalizePayload unwraps one level of server envelope if present and
// returns the payload as-is otherwise. A {success: false} envelope on a
// successful HTTP status is reported as an error with the envelope's message.
func normalizePayload(body []byte) (json.RawMessage, error) {
	shape, err := detectShape(body)
	if err != nil {
		return nil, err
	}

	switch shape {
	case shapeEmpty:
		return nil, nil
	case shapeBare:
		return json.RawMessage(bytes.TrimSpace(body)), nil
	case shapeEnvelope:
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("malformed response envelope: %w", err)
		}
		if env.Success != nil && !*env.Success {
			msg := env.Message
			if msg == "" {
				msg = env.Error
			}
			if msg == "" {
				msg = "request reported failure"
			}
			return nil, fmt.Errorf("%s", msg)
		}
		if env.Data != nil {
			return env.Data, nil
		}
		// Envelope without data carries nothing beyond the flag.
		return nil, nil
	default:
		return nil, fmt.Errorf("unrecognized response shape")
	}
}
