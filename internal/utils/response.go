package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"CapIot.telemetry/internal/models"
)

// RespondWithError sends a JSON error response using the APIError model.
// The status code comes from the APIError.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends payload as JSON with the given status code. A
// payload that cannot be encoded is answered with a 500 instead.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	if payload == nil {
		writer.WriteHeader(statusCode)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		apiErr := models.InternalError()
		body, _ = json.Marshal(apiErr)
		statusCode = apiErr.StatusCode
	}
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(append(body, '\n'))
}

var errTrailingData = errors.New("unexpected data after JSON body")

// DecodeJSON decodes the request body into dst and rejects trailing data.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
