package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"hackhub/internal/apperr"
)

type problem struct {
	Code    string `json:"code"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
}

// statusFor maps an error code onto the HTTP status returned to clients.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case apperr.CodePartialFailure:
		return http.StatusMultiStatus
	case apperr.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, item, msg string) {
	writeJSON(w, status, problem{Code: code, Item: item, Message: msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= 500 {
		s.log.Error().Err(err).Str("code", string(code)).Msg("request failed")
		if code == apperr.CodeInternal {
			msg = "internal error"
		}
	}
	writeProblem(w, status, string(code), apperr.ItemOf(err), msg)
}
