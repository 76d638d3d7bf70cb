package workflow

import (
	"bytes"
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// NormalizePayload defaults an empty payload to {} and otherwise requires a JSON object.
func NormalizePayload(p json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(p)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !isJSONObject(p) {
		return nil, Validationf("payload must be a JSON object")
	}
	return p, nil
}

// MergePayload applies an RFC 7396 merge patch. A null member removes the key.
func MergePayload(payload, patch json.RawMessage) (json.RawMessage, error) {
	if !isJSONObject(patch) {
		return nil, Validationf("patch must be a JSON object")
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage(`{}`)
	}
	merged, err := jsonpatch.MergePatch(payload, patch)
	if err != nil {
		return nil, Validationf("apply patch: %v", err)
	}
	return merged, nil
}

func isJSONObject(p json.RawMessage) bool {
	t := bytes.TrimSpace(p)
	return len(t) > 0 && t[0] == '{' && json.Valid(t)
}
