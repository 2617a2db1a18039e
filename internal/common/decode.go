package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DecodeJSON strictly decodes the request body into dst. Unknown fields and trailing
// data are rejected as bad requests.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return BadRequest("request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("request body is required", err)
		}
		return BadRequest("invalid payload", err)
	}
	if dec.More() {
		return BadRequest("invalid payload", errors.New("unexpected trailing data"))
	}
	return nil
}
