package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"connection/pkg/platform/sentinel"
)

// Error is an HTTP-facing error with an explicit status and code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// BadRequest reports invalid caller input.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

// WriteJSON writes v with status. Encoding failures are dropped since the
// header is already sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the JSON error envelope. Internal errors
// never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	var herr *Error
	switch {
	case errors.As(err, &herr):
		status, code = herr.Status, herr.Code
	case errors.Is(err, sentinel.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrInvalidKey):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, sentinel.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, sentinel.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	}

	body := map[string]string{"error": code}
	if status != http.StatusInternalServerError {
		if herr != nil {
			body["error_description"] = herr.Message
		} else {
			body["error_description"] = err.Error()
		}
	}
	WriteJSON(w, status, body)
}
