package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errInvalidQueryParam builds the validation error for a malformed query
// string parameter.
func errInvalidQueryParam(name string) error {
	return fmt.Errorf("%s is not a valid value", name)
}

// writeJSON encodes body as JSON with the given status code. Encode
// failures can't be recovered from once headers are written, so they're
// swallowed here the same way the teacher's recovery middleware does for
// its own fallback response.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
