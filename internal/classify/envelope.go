package classify

import (
	"encoding/json"
)

// wrapperField is the key under which the source bus nests a re-encoded
// event record. Production traffic arrives double-encoded under this key;
// self-contained test messages arrive as the record directly. Both shapes
// are normalized to a single eventRecord before classification.
const wrapperField = "oslo.message"

// eventRecord is the decoded event as emitted by the compute platform,
// after any wrapper has been removed.
type eventRecord struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// decodeEnvelope decodes a raw message body into an eventRecord, handling
// both the direct and the wrapped shape. The returned bool reports whether
// the record was nested inside a wrapper, which callers only use for
// diagnostics.
func decodeEnvelope(body []byte) (eventRecord, bool, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return eventRecord{}, false, err
	}

	if raw, ok := outer[wrapperField]; ok {
		// The wrapper value is a JSON string holding the encoded record.
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return eventRecord{}, true, err
		}

		var rec eventRecord
		if err := json.Unmarshal([]byte(inner), &rec); err != nil {
			return eventRecord{}, true, err
		}
		return rec, true, nil
	}

	var rec eventRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return eventRecord{}, false, err
	}
	return rec, false, nil
}

// payloadData extracts the field substructure from a record payload. The
// versioned notification format nests fields under "nova_object.data"; the
// unversioned format carries them directly. An absent or non-object payload
// yields an empty map: missing fields never fail classification.
func payloadData(payload json.RawMessage) map[string]any {
	if len(payload) == 0 {
		return map[string]any{}
	}

	var outer map[string]any
	if err := json.Unmarshal(payload, &outer); err != nil {
		return map[string]any{}
	}

	if data, ok := outer["nova_object.data"].(map[string]any); ok {
		return data
	}
	return outer
}

// stringField returns the first non-empty string value among the given keys.
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstIPAddress digs the primary address out of the versioned
// ip_addresses list, tolerating any missing level.
func firstIPAddress(data map[string]any) string {
	list, ok := data["ip_addresses"].([]any)
	if !ok || len(list) == 0 {
		return ""
	}

	entry, ok := list[0].(map[string]any)
	if !ok {
		return ""
	}
	if nested, ok := entry["nova_object.data"].(map[string]any); ok {
		entry = nested
	}

	return stringField(entry, "address")
}

// faultInfo extracts the exception class and human-readable message from a
// fault substructure, handling both the versioned and the flat shape. The
// second return reports whether a fault field was present at all, which the
// success check consults.
func faultInfo(data map[string]any) (exception, message string, present bool) {
	raw, ok := data["fault"]
	if !ok || raw == nil {
		return "", "", false
	}

	fault, ok := raw.(map[string]any)
	if !ok {
		return "", "", true
	}
	if nested, ok := fault["nova_object.data"].(map[string]any); ok {
		fault = nested
	}

	exception = stringField(fault, "exception")
	message = stringField(fault, "exception_message", "message")
	return exception, message, true
}
