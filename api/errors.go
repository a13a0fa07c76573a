package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/transparencyx/chaintrace/common/errs"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrDatabase), errors.Is(err, errs.ErrArchive):
		return http.StatusInternalServerError
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrMalformedTrace):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrWarehouse):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"error": ...}. Client errors carry their message; server side
// failures are logged and answered with a fixed text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := http.StatusText(status)
	var typed *errs.Error
	if status < http.StatusInternalServerError {
		if errors.As(err, &typed) {
			msg = typed.Message
			if field, ok := typed.Context["field"].(string); ok {
				msg = field + ": " + msg
			}
		}
	} else {
		log.Error("api request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
		switch status {
		case http.StatusBadGateway:
			msg = "Chain node unavailable"
		case http.StatusServiceUnavailable:
			msg = "Warehouse unavailable"
		default:
			msg = "Internal server error"
		}
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("write response failed", "err", err)
	}
}
