// Package redact is the only sanctioned path for logging payloads that may
// touch patient data. Keys are allow-listed: anything not explicitly safe is
// either replaced by a marker (known PII) or dropped.
package redact

import (
	"bytes"
	"encoding/json"
)

const (
	Marker            = "[REDACTED]"
	MaxDepthMarker    = "[MAX_DEPTH]"
	UnknownTypeMarker = "[UNKNOWN_TYPE]"

	MaxDepth = 5
)

var piiKeys = map[string]struct{}{
	"email":            {},
	"phone":            {},
	"dateOfBirth":      {},
	"dob":              {},
	"callTranscript":   {},
	"transcript":       {},
	"callRecordingUrl": {},
	"recordingUrl":     {},
	"emergencyContact": {},
	"password":         {},
	"notes":            {},
	"body":             {},
	"message":          {},
	"address":          {},
	"postcode":         {},
	"name":             {},
	"fullName":         {},
}

var safeKeys = map[string]struct{}{
	"id":            {},
	"status":        {},
	"source":        {},
	"practiceId":    {},
	"userId":        {},
	"role":          {},
	"type":          {},
	"createdAt":     {},
	"updatedAt":     {},
	"count":         {},
	"action":        {},
	"resource":      {},
	"leadId":        {},
	"interactionId": {},
	"eventId":       {},
	"attempt":       {},
}

// IsPII reports whether key is on the deny list.
func IsPII(key string) bool {
	_, ok := piiKeys[key]
	return ok
}

// IsSafe reports whether key is on the allow list.
func IsSafe(key string) bool {
	_, ok := safeKeys[key]
	return ok
}

// Redact returns a copy of payload that is safe to log.
func Redact(payload any) any {
	return redactValue(payload, 0)
}

func redactValue(value any, depth int) any {
	if depth > MaxDepth {
		return MaxDepthMarker
	}

	switch cast := value.(type) {
	case nil:
		return nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return cast
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, redactValue(item, depth+1))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(cast))
		for key, item := range cast {
			switch {
			case IsPII(key):
				out[key] = Marker
			case IsSafe(key):
				out[key] = redactValue(item, depth+1)
			}
		}
		return out
	default:
		normalized, ok := normalize(cast)
		if !ok {
			return UnknownTypeMarker
		}
		return redactValue(normalized, depth)
	}
}

// normalize converts structs, typed maps and slices into their JSON shape so
// that struct tags decide the key names seen by the allow list.
func normalize(value any) (any, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}
