package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"quota-platform/internal/services"
)

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	respondWithJSON(w, code, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation_error":
		return http.StatusBadRequest
	case "insufficient_balance", "invalid_state", "concurrency_conflict":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondWithServiceError writes err using its stable error code. Internal
// errors are logged and hidden from the client.
func respondWithServiceError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	kind := services.ErrorKind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
		respondWithError(w, status, kind, "An internal error occurred")
		return
	}

	logger.Debug().Err(err).Str("kind", kind).Msg(msg)
	body := map[string]interface{}{
		"error":   kind,
		"message": err.Error(),
	}
	var insufficient *services.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		body["holder"] = insufficient.Holder
		body["resource"] = insufficient.Resource
		body["available"] = insufficient.Available
		body["requested"] = insufficient.Requested
	}
	respondWithJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_"+name, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
