package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/dcontext"
)

// writeJSON marshals v as the response body with status and the JSON
// content type, logging (not failing the request further) on encode
// error — by the time Encode is writing, the status line is already
// sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		dcontext.GetLogger(dcontext.Background()).WithError(err).Warn("failed to encode response body")
	}
}

// writeError maps err onto the JSON error envelope §6 defines,
// classifying it via apierr.Error when possible and falling back to a
// bare 500 for anything unclassified that escaped a component.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		writeJSON(w, apiErr.HTTPStatus(), apiErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, &apierr.Error{Err: err.Error()})
}

// decodeJSON decodes the request body into v, reporting a Validation
// error on malformed JSON rather than letting a raw encoding/json error
// escape as an unclassified 500.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return apierr.Validation("request body is required")
		}
		return apierr.Validation("malformed request body: %v", err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return data, nil
}
