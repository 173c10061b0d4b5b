package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// envelope is the uniform response body: the HTTP status and a success flag
// are duplicated into the payload alongside either data or a message.
type envelope struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, envelope{Status: status, Data: data, Success: status < 400})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, envelope{Status: status, Message: message, Success: status < 400})
}

func writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = &RequestError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeMessage(w, reqErr.Status, reqErr.Message)
}

// WriteError renders any error as a JSON envelope, honoring RequestError
// status codes. It is used by middleware outside this package.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, err)
}

func writeStorageError(w http.ResponseWriter, err error) {
	writeError(w, storageError(err))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeMessage(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return ValidationError("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return ValidationError("invalid request body: %v", err)
	}
	return nil
}
