package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"gitea.kood.tech/petrkubec/match-me/engine/logging"
	"gitea.kood.tech/petrkubec/match-me/engine/matching"
	"gitea.kood.tech/petrkubec/match-me/engine/metrics"
)

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps matching errors onto status codes and error codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *matching.ValidationError
		quota *matching.QuotaExceededError
	)
	switch {
	case errors.As(err, &quota):
		w.Header().Set("Retry-After", strconv.Itoa(secondsUntilMidnightUTC(time.Now())))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":  "quota_exceeded",
			"action": quota.Action,
			"limit":  quota.Limit,
		})
	case errors.As(err, &verr):
		code := "invalid_request"
		switch verr.Field {
		case "decision":
			code = "invalid_decision"
		case "target":
			code = "invalid_target"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "detail": verr.Reason})
	case errors.Is(err, matching.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, matching.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable")
	default:
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func secondsUntilMidnightUTC(now time.Time) int {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int(next.Sub(now).Seconds())
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads a bounded body into dst and validates its tags.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// queryInt returns def when the parameter is absent and an error when it is
// present but not an integer.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &matching.ValidationError{Field: name, Reason: "not an integer"}
	}
	return n, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websockets.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// instrument records request latency under the route pattern.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordAPIRequest(r.Method, route, rec.status, time.Since(start))
	})
}
