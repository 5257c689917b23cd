package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jrsteele09/tutorhub-auth/auth"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 16 << 10
)

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps err onto the error taxonomy. Internal causes are logged and
// never written to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var throttled *auth.ThrottledError
	if errors.As(err, &throttled) {
		writeThrottled(w, int(throttled.RetryAfter.Seconds()), "too many attempts")
		return
	}

	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: kind.String(), Message: apperrors.PublicMessage(err)})
}

func writeThrottled(w http.ResponseWriter, retryAfter int, msg string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "throttled", Message: msg, RetryAfter: retryAfter})
}

// decodeJSON reads a single JSON object from a size limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperrors.Public(apperrors.Wrapf(apperrors.ErrValidation, "decode body: %v", err), "request body must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperrors.Public(apperrors.ErrValidation, "request body must be a single JSON object")
	}
	return nil
}
