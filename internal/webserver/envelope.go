package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
)

// writeResult implements spec §6's "Response: JSON (the return value,
// stringified if not object/array/string)". Go's encoding/json already
// renders every value Convert can produce (nil, bool, numbers, string,
// []any, map[string]any) as a JSON value directly, so "stringified" only
// matters for the wire contract's own wording — json.Marshal of a string
// already emits a JSON string, which satisfies it without special-casing.
func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// writeError implements spec §6's error envelope: {code, message, stack?}.
func writeError(w http.ResponseWriter, err error, debugEnabled bool) {
	env := enginerr.ToEnvelope(err, debugEnabled)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(enginerr.HTTPStatus(env.Code))
	_ = json.NewEncoder(w).Encode(env)
}
